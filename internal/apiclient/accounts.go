package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/stemsi/examflow/internal/model"
)

// Signup registers an account. It does not log in.
func (c *Client) Signup(ctx context.Context, req model.SignupRequest) (*model.User, error) {
	const op = "sign up"
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, MissingContext(op, "Username and password are required.")
	}
	var out model.User
	if err := c.do(ctx, op, http.MethodPost, "/users", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns the profile of the logged-in account userID.
func (c *Client) Profile(ctx context.Context, userID int64) (*model.User, error) {
	const op = "fetch profile"
	if err := requireID(op, "user", userID); err != nil {
		return nil, err
	}
	var out model.User
	if err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile replaces the profile fields of the logged-in account.
func (c *Client) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileRequest) (*model.User, error) {
	const op = "update profile"
	if err := requireID(op, "user", userID); err != nil {
		return nil, err
	}
	var out model.User
	if err := c.do(ctx, op, http.MethodPut, fmt.Sprintf("/users/%d", userID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the password of the logged-in account.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	const op = "change password"
	if oldPassword == "" || newPassword == "" {
		return MissingContext(op, "Both the current and the new password are required.")
	}
	req := model.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}
	return c.do(ctx, op, http.MethodPut, "/users/change-password", req, nil)
}

// RequestPasswordReset asks for a reset code to be mailed to email. Calling it
// again resends a fresh code once the server's cooldown has passed.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "request password reset"
	email = strings.TrimSpace(email)
	if email == "" {
		return MissingContext(op, "Please enter your email address.")
	}
	return c.do(ctx, op, http.MethodPost, "/auth/password-reset", model.PasswordResetRequest{Email: email}, nil)
}

// VerifyResetCode exchanges a mailed code for a reset token.
func (c *Client) VerifyResetCode(ctx context.Context, email, code string) (string, error) {
	const op = "verify reset code"
	email, code = strings.TrimSpace(email), strings.TrimSpace(code)
	if email == "" || code == "" {
		return "", MissingContext(op, "Please enter the code from the email.")
	}
	var out model.ResetTokenResponse
	req := model.VerifyResetCodeRequest{Email: email, Code: code}
	if err := c.do(ctx, op, http.MethodPost, "/auth/password-reset/verify", req, &out); err != nil {
		return "", err
	}
	return out.ResetToken, nil
}

// ConfirmPasswordReset sets a new password with a reset token.
func (c *Client) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	const op = "reset password"
	if resetToken == "" || newPassword == "" {
		return MissingContext(op, "A new password is required.")
	}
	req := model.ConfirmResetRequest{ResetToken: resetToken, NewPassword: newPassword}
	return c.do(ctx, op, http.MethodPost, "/auth/password-reset/confirm", req, nil)
}
