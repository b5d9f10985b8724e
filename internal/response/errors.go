package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrWrongPassword      ErrCode = "WRONG_PASSWORD"
	ErrSignupDisabled     ErrCode = "SIGNUP_DISABLED"

	// ─── Password reset ────────────────────────────────────────────────
	ErrResetTooSoon      ErrCode = "RESET_RESEND_TOO_SOON"
	ErrInvalidResetCode  ErrCode = "INVALID_RESET_CODE"
	ErrInvalidResetToken ErrCode = "INVALID_RESET_TOKEN"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotOwnRecord      ErrCode = "NOT_OWN_RECORD"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Test-specific ─────────────────────────────────────────────────
	ErrInvalidPasscode   ErrCode = "INVALID_PASSCODE"
	ErrTestNotOpen       ErrCode = "TEST_NOT_OPEN"
	ErrNotTestAuthor     ErrCode = "NOT_TEST_AUTHOR"
	ErrNoOpenAttempt     ErrCode = "NO_OPEN_ATTEMPT"
	ErrAttemptFinalized  ErrCode = "ATTEMPT_FINALIZED"
	ErrAttemptInProgress ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrAnswerMismatch    ErrCode = "ANSWER_NOT_IN_QUESTION"
	ErrWrongQuestionType ErrCode = "WRONG_QUESTION_TYPE"
	ErrMonitorOffline    ErrCode = "MONITOR_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect username or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrWrongPassword:
		return "Your current password is incorrect."
	case ErrSignupDisabled:
		return "Registration is closed on this server."

	// ─── Password reset ────────────────────────────────────────────────
	case ErrResetTooSoon:
		return "A reset code was sent recently. Please wait before asking again."
	case ErrInvalidResetCode:
		return "The reset code is wrong or has expired."
	case ErrInvalidResetToken:
		return "This reset link is no longer valid. Please start again."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrNotOwnRecord:
		return "You can only access your own records."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Test-specific ─────────────────────────────────────────────────
	case ErrInvalidPasscode:
		return "No test matches this passcode."
	case ErrTestNotOpen:
		return "This test is not open right now."
	case ErrNotTestAuthor:
		return "You are not the author of this test."
	case ErrNoOpenAttempt:
		return "You have no attempt in progress for this test."
	case ErrAttemptFinalized:
		return "This attempt has already been submitted."
	case ErrAttemptInProgress:
		return "Results are available once the attempt is submitted."
	case ErrAnswerMismatch:
		return "The answer does not belong to this question."
	case ErrWrongQuestionType:
		return "This question does not accept that kind of answer."
	case ErrMonitorOffline:
		return "Live monitoring is not available on this server."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
