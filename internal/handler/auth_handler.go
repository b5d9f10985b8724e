package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
	"github.com/stemsi/examflow/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService  *service.AuthService
	resetService *service.PasswordResetService
	cfg          *config.Config
	log          zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, resetService *service.PasswordResetService, cfg *config.Config, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		resetService: resetService,
		cfg:          cfg,
		log:          log.With().Str("component", "auth_handler").Logger(),
	}
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, token, maxAge, "/", "", h.cfg.CookieSecure, true)
}

// Login godoc
// POST /auth/login
// Validates username + password, sets the session cookie and returns the token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	h.setSessionCookie(c, token, int(h.cfg.JWTExpiry.Seconds()))
	response.Success(c, http.StatusOK, model.LoginResponse{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Token:    token,
	})
}

// Logout godoc
// POST /auth/logout
// Revokes the current token and clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Revoke(c.Request.Context(), claims); err != nil {
		fail(c, h.log, err)
		return
	}

	h.setSessionCookie(c, "", -1)
	response.OK(c, http.StatusOK, "Logged out.")
}

// Me godoc
// GET /users/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.authService.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// Signup godoc
// POST /users
// Registers an account. The caller logs in separately.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req model.SignupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, err := h.authService.Signup(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// Profile godoc
// GET /users/:userId
// Behind RequireOwner("userId").
func (h *AuthHandler) Profile(c *gin.Context) {
	id, _ := validator.ParamID(c, "userId")
	user, err := h.authService.Me(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// UpdateProfile godoc
// PUT /users/:userId
// Behind RequireOwner("userId").
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	id, _ := validator.ParamID(c, "userId")

	var req model.UpdateProfileRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), id, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// ChangePassword godoc
// PUT /users/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ChangePasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
		fail(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, "Password changed.")
}

// RequestPasswordReset godoc
// POST /auth/password-reset
// Mails a reset code. Calling it again after the cooldown resends a new one.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req model.PasswordResetRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.resetService.SendCode(c.Request.Context(), req.Email); err != nil {
		fail(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, "If the address is registered, a reset code is on its way.")
}

// VerifyResetCode godoc
// POST /auth/password-reset/verify
func (h *AuthHandler) VerifyResetCode(c *gin.Context) {
	var req model.VerifyResetCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, err := h.resetService.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, model.ResetTokenResponse{ResetToken: token})
}

// ConfirmPasswordReset godoc
// POST /auth/password-reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req model.ConfirmResetRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.resetService.Confirm(c.Request.Context(), req.ResetToken, req.NewPassword); err != nil {
		fail(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, "Password updated. Please log in.")
}
