package model

import "time"

// Role enumerates account roles.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// User represents a teacher or student account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	FullName     string    `json:"fullname"`
	Email        *string   `json:"email"`
	DateOfBirth  string    `json:"date_of_birth,omitempty"` // DateLayout, empty when unknown
	CreatedAt    time.Time `json:"created_at"`
}

// DateLayout is the wire format of calendar days.
const DateLayout = "2006-01-02"

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// LoginResponse is returned on successful login. The token is also set as a cookie.
type LoginResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Token    string `json:"token"`
}

// SignupRequest is the payload for self-registration.
type SignupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=128"`
	Role     Role   `json:"role" binding:"required,oneof=STUDENT TEACHER"`
	FullName string `json:"fullname" binding:"max=255"`
	Email    string `json:"email" binding:"omitempty,email,max=255"`
}

// UpdateProfileRequest replaces the editable profile fields. Empty email or
// date of birth clears them.
type UpdateProfileRequest struct {
	FullName    string `json:"fullname" binding:"max=255"`
	Email       string `json:"email" binding:"omitempty,email,max=255"`
	DateOfBirth string `json:"date_of_birth" binding:"omitempty,datetime=2006-01-02"`
}

// ChangePasswordRequest is the payload for a logged-in password change.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=128"`
}

// PasswordResetRequest asks for a reset code to be mailed. Sending it again
// after the cooldown replaces the previous code.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email,max=255"`
}

// VerifyResetCodeRequest exchanges a mailed code for a reset token.
type VerifyResetCodeRequest struct {
	Email string `json:"email" binding:"required,email,max=255"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// ResetTokenResponse carries the single-use token returned by code verification.
type ResetTokenResponse struct {
	ResetToken string `json:"resetToken"`
}

// ConfirmResetRequest sets a new password with a reset token.
type ConfirmResetRequest struct {
	ResetToken  string `json:"resetToken" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=128"`
}

// PasswordReset is a pending reset code for one account. Nonce is set once
// the code is verified and identifies the reset token issued for it.
type PasswordReset struct {
	UserID    int64
	CodeHash  string
	Attempts  int
	Nonce     string
	SentAt    time.Time
	ExpiresAt time.Time
}
