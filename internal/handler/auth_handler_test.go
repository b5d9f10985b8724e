package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/repository"
	"github.com/stemsi/examflow/internal/service"
	"github.com/stemsi/examflow/internal/validator"
)

func init() {
	validator.Setup()
}

type fakeUsers struct {
	byID map[int64]*model.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUsers) Create(ctx context.Context, u *model.User) error {
	if _, err := f.GetByUsername(ctx, u.Username); err == nil {
		return repository.ErrDuplicateUsername
	}
	u.ID = int64(len(f.byID) + 1)
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, id int64, fullName string, email *string, dob *time.Time) (*model.User, error) {
	u, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.FullName, u.Email, u.DateOfBirth = fullName, email, ""
	if dob != nil {
		u.DateOfBirth = dob.Format(model.DateLayout)
	}
	return u, nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id int64, hash string) error {
	u, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

type fakeResets map[int64]model.PasswordReset

func (f fakeResets) Get(_ context.Context, userID int64) (*model.PasswordReset, error) {
	pr, ok := f[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &pr, nil
}

func (f fakeResets) Save(_ context.Context, pr *model.PasswordReset) error {
	f[pr.UserID] = *pr
	return nil
}

func (f fakeResets) Delete(_ context.Context, userID int64) error {
	delete(f, userID)
	return nil
}

type lastMail struct{ to, body string }

func (m *lastMail) Send(_ context.Context, to, _, body string) error {
	m.to, m.body = to, body
	return nil
}

type accountEnv struct {
	router *gin.Engine
	auth   *service.AuthService
	mail   *lastMail
}

func newAccountEnv() *accountEnv {
	cfg := &config.Config{
		JWTSecret: "test-secret", JWTExpiry: time.Hour, BcryptCost: 4, CookieName: "token",
		SignupEnabled: true, ResetCodeTTL: 10 * time.Minute, ResetResendAfter: time.Minute, ResetMaxAttempts: 5,
	}
	auth := service.NewAuthService(cfg, &fakeUsers{byID: map[int64]*model.User{}}, nil, zerolog.Nop())
	mail := &lastMail{}
	reset := service.NewPasswordResetService(cfg, auth, fakeResets{}, mail, zerolog.Nop())
	h := NewAuthHandler(auth, reset, cfg, zerolog.Nop())

	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.POST("/auth/password-reset", h.RequestPasswordReset)
	r.POST("/auth/password-reset/verify", h.VerifyResetCode)
	r.POST("/auth/password-reset/confirm", h.ConfirmPasswordReset)
	r.POST("/users", h.Signup)
	api := r.Group("/", middleware.RequireAuth(auth, cfg.CookieName))
	api.PUT("/users/change-password", h.ChangePassword)
	api.GET("/users/:userId", middleware.RequireOwner("userId"), h.Profile)
	api.PUT("/users/:userId", middleware.RequireOwner("userId"), h.UpdateProfile)

	return &accountEnv{router: r, auth: auth, mail: mail}
}

func (e *accountEnv) call(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *accountEnv) signup(t *testing.T, req model.SignupRequest) (*model.User, string) {
	t.Helper()
	w := e.call(t, http.MethodPost, "/users", "", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", w.Code, w.Body.String())
	}
	var u model.User
	if err := json.Unmarshal(decodeEnvelope(t, w)["data"], &u); err != nil {
		t.Fatalf("data: %v", err)
	}
	token, err := e.auth.GenerateToken(&u)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return &u, token
}

func codeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var code string
	if err := json.Unmarshal(decodeEnvelope(t, w)["code"], &code); err != nil {
		t.Fatalf("code: %v", err)
	}
	return code
}

func TestSignupHandler(t *testing.T) {
	env := newAccountEnv()
	u, _ := env.signup(t, model.SignupRequest{
		Username: "ana", Password: "secret1", Role: model.RoleStudent, FullName: "Ana Putri", Email: "ana@example.com",
	})
	if u.ID == 0 || u.Role != model.RoleStudent || u.FullName != "Ana Putri" {
		t.Fatalf("user = %+v", u)
	}

	tests := []struct {
		name   string
		body   model.SignupRequest
		status int
		field  string
	}{
		{"duplicate", model.SignupRequest{Username: "ana", Password: "secret1", Role: model.RoleStudent}, http.StatusConflict, ""},
		{"unknown role", model.SignupRequest{Username: "bob", Password: "secret1", Role: "ADMIN"}, http.StatusBadRequest, "role"},
		{"bad email", model.SignupRequest{Username: "bob", Password: "secret1", Role: model.RoleTeacher, Email: "bob"}, http.StatusBadRequest, "email"},
		{"short password", model.SignupRequest{Username: "bob", Password: "abc", Role: model.RoleTeacher}, http.StatusBadRequest, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.call(t, http.MethodPost, "/users", "", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.field == "" {
				return
			}
			var fields map[string]string
			if err := json.Unmarshal(decodeEnvelope(t, w)["fields"], &fields); err != nil {
				t.Fatalf("fields: %v", err)
			}
			if fields[tt.field] == "" {
				t.Errorf("fields = %v, want an entry for %s", fields, tt.field)
			}
		})
	}
}

func TestProfileHandlers(t *testing.T) {
	env := newAccountEnv()
	ana, token := env.signup(t, model.SignupRequest{Username: "ana", Password: "secret1", Role: model.RoleStudent})
	other, _ := env.signup(t, model.SignupRequest{Username: "bob", Password: "secret1", Role: model.RoleTeacher})
	own := fmt.Sprintf("/users/%d", ana.ID)

	if w := env.call(t, http.MethodGet, own, token, nil); w.Code != http.StatusOK {
		t.Fatalf("own profile status = %d", w.Code)
	}
	if w := env.call(t, http.MethodGet, fmt.Sprintf("/users/%d", other.ID), token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("other profile status = %d, want 403", w.Code)
	}

	update := model.UpdateProfileRequest{FullName: "Ana Putri", Email: "ana@example.com", DateOfBirth: "2008-05-17"}
	w := env.call(t, http.MethodPut, own, token, update)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	var got model.User
	if err := json.Unmarshal(decodeEnvelope(t, w)["data"], &got); err != nil {
		t.Fatalf("data: %v", err)
	}
	if got.FullName != "Ana Putri" || got.Email == nil || *got.Email != "ana@example.com" || got.DateOfBirth != "2008-05-17" {
		t.Errorf("profile = %+v", got)
	}

	bad := model.UpdateProfileRequest{DateOfBirth: "17/05/2008"}
	if w := env.call(t, http.MethodPut, own, token, bad); w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", w.Code)
	}
}

func TestChangePasswordHandler(t *testing.T) {
	env := newAccountEnv()
	_, token := env.signup(t, model.SignupRequest{Username: "ana", Password: "secret1", Role: model.RoleStudent})

	w := env.call(t, http.MethodPut, "/users/change-password", token,
		model.ChangePasswordRequest{OldPassword: "nope", NewPassword: "secret2"})
	if w.Code != http.StatusBadRequest || codeOf(t, w) != "WRONG_PASSWORD" {
		t.Fatalf("wrong password: status = %d body = %s", w.Code, w.Body.String())
	}

	w = env.call(t, http.MethodPut, "/users/change-password", token,
		model.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"})
	if w.Code != http.StatusOK {
		t.Fatalf("change status = %d: %s", w.Code, w.Body.String())
	}

	login := env.call(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Username: "ana", Password: "secret2"})
	if login.Code != http.StatusOK {
		t.Fatalf("login with new password status = %d", login.Code)
	}
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func TestPasswordResetHandlers(t *testing.T) {
	env := newAccountEnv()
	env.signup(t, model.SignupRequest{Username: "ana", Password: "secret1", Role: model.RoleStudent, Email: "ana@example.com"})

	ask := model.PasswordResetRequest{Email: "ana@example.com"}
	if w := env.call(t, http.MethodPost, "/auth/password-reset", "", ask); w.Code != http.StatusOK {
		t.Fatalf("request status = %d: %s", w.Code, w.Body.String())
	}
	code := sixDigits.FindString(env.mail.body)
	if env.mail.to != "ana@example.com" || code == "" {
		t.Fatalf("mail = %+v", env.mail)
	}

	w := env.call(t, http.MethodPost, "/auth/password-reset", "", ask)
	if w.Code != http.StatusTooManyRequests || codeOf(t, w) != "RESET_RESEND_TOO_SOON" {
		t.Fatalf("resend status = %d body = %s", w.Code, w.Body.String())
	}

	unknown := model.PasswordResetRequest{Email: "nobody@example.com"}
	if w := env.call(t, http.MethodPost, "/auth/password-reset", "", unknown); w.Code != http.StatusOK {
		t.Fatalf("unknown address status = %d, want 200", w.Code)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	w = env.call(t, http.MethodPost, "/auth/password-reset/verify", "", model.VerifyResetCodeRequest{Email: "ana@example.com", Code: wrong})
	if w.Code != http.StatusBadRequest || codeOf(t, w) != "INVALID_RESET_CODE" {
		t.Fatalf("wrong code status = %d body = %s", w.Code, w.Body.String())
	}

	w = env.call(t, http.MethodPost, "/auth/password-reset/verify", "", model.VerifyResetCodeRequest{Email: "ana@example.com", Code: code})
	if w.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", w.Code, w.Body.String())
	}
	var tok model.ResetTokenResponse
	if err := json.Unmarshal(decodeEnvelope(t, w)["data"], &tok); err != nil || tok.ResetToken == "" {
		t.Fatalf("reset token: %v %+v", err, tok)
	}

	confirm := model.ConfirmResetRequest{ResetToken: tok.ResetToken, NewPassword: "brandnew1"}
	if w := env.call(t, http.MethodPost, "/auth/password-reset/confirm", "", confirm); w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", w.Code, w.Body.String())
	}
	w = env.call(t, http.MethodPost, "/auth/password-reset/confirm", "", confirm)
	if w.Code != http.StatusBadRequest || codeOf(t, w) != "INVALID_RESET_TOKEN" {
		t.Fatalf("reused token status = %d body = %s", w.Code, w.Body.String())
	}

	login := env.call(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Username: "ana", Password: "brandnew1"})
	if login.Code != http.StatusOK {
		t.Fatalf("login after reset status = %d", login.Code)
	}
}
