package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/repository"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
)

// statusFor maps a domain error to its HTTP status and API code.
// Unknown errors are internal.
func statusFor(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, response.ErrSessionInvalidated
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrTestNotOpen):
		return http.StatusForbidden, response.ErrTestNotOpen
	case errors.Is(err, service.ErrNotTestAuthor):
		return http.StatusForbidden, response.ErrNotTestAuthor
	case errors.Is(err, service.ErrWrongPassword):
		return http.StatusBadRequest, response.ErrWrongPassword
	case errors.Is(err, service.ErrSignupDisabled):
		return http.StatusForbidden, response.ErrSignupDisabled
	case errors.Is(err, service.ErrResendTooSoon):
		return http.StatusTooManyRequests, response.ErrResetTooSoon
	case errors.Is(err, service.ErrInvalidResetCode):
		return http.StatusBadRequest, response.ErrInvalidResetCode
	case errors.Is(err, service.ErrInvalidResetToken):
		return http.StatusBadRequest, response.ErrInvalidResetToken
	case errors.Is(err, service.ErrDuplicatePasscode),
		errors.Is(err, repository.ErrDuplicateUsername),
		errors.Is(err, repository.ErrDuplicateEmail):
		return http.StatusConflict, response.ErrConflict
	case errors.Is(err, service.ErrNoOpenAttempt):
		return http.StatusConflict, response.ErrNoOpenAttempt
	case errors.Is(err, service.ErrAttemptFinalized):
		return http.StatusConflict, response.ErrAttemptFinalized
	case errors.Is(err, service.ErrAttemptInProgress):
		return http.StatusConflict, response.ErrAttemptInProgress
	case errors.Is(err, service.ErrAnswerMismatch):
		return http.StatusBadRequest, response.ErrAnswerMismatch
	case errors.Is(err, service.ErrWrongQuestionKind):
		return http.StatusBadRequest, response.ErrWrongQuestionType
	case errors.Is(err, service.ErrInvalidRole):
		return http.StatusBadRequest, response.ErrValidation
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the envelope for err. Internal errors are logged with the
// request id; domain errors are expected traffic and are not.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	if errors.Is(err, service.ErrNoCorrectAnswer) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"questions": err.Error(),
		})
		return
	}

	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString(response.ContextKeyRequestID)).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
