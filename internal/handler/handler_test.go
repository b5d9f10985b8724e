package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/repository"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
		{service.ErrTokenRevoked, http.StatusUnauthorized, response.ErrSessionInvalidated},
		{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
		{service.ErrTestNotOpen, http.StatusForbidden, response.ErrTestNotOpen},
		{service.ErrNotTestAuthor, http.StatusForbidden, response.ErrNotTestAuthor},
		{service.ErrDuplicatePasscode, http.StatusConflict, response.ErrConflict},
		{repository.ErrDuplicateUsername, http.StatusConflict, response.ErrConflict},
		{service.ErrNoOpenAttempt, http.StatusConflict, response.ErrNoOpenAttempt},
		{service.ErrAttemptFinalized, http.StatusConflict, response.ErrAttemptFinalized},
		{service.ErrAttemptInProgress, http.StatusConflict, response.ErrAttemptInProgress},
		{service.ErrAnswerMismatch, http.StatusBadRequest, response.ErrAnswerMismatch},
		{service.ErrWrongQuestionKind, http.StatusBadRequest, response.ErrWrongQuestionType},
		{service.ErrInvalidRole, http.StatusBadRequest, response.ErrValidation},
		{service.ErrWrongPassword, http.StatusBadRequest, response.ErrWrongPassword},
		{service.ErrSignupDisabled, http.StatusForbidden, response.ErrSignupDisabled},
		{service.ErrResendTooSoon, http.StatusTooManyRequests, response.ErrResetTooSoon},
		{service.ErrInvalidResetCode, http.StatusBadRequest, response.ErrInvalidResetCode},
		{service.ErrInvalidResetToken, http.StatusBadRequest, response.ErrInvalidResetToken},
		{repository.ErrDuplicateEmail, http.StatusConflict, response.ErrConflict},
		{fmt.Errorf("store choice: %w", service.ErrAttemptFinalized), http.StatusConflict, response.ErrAttemptFinalized},
		{errors.New("connection reset"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := statusFor(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("statusFor = (%d, %s), want (%d, %s)", status, code, tt.status, tt.code)
			}
		})
	}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func TestFailNoCorrectAnswerReportsField(t *testing.T) {
	r := gin.New()
	r.POST("/tests", func(c *gin.Context) {
		fail(c, zerolog.Nop(), fmt.Errorf("question 2: %w", service.ErrNoCorrectAnswer))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tests", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var fields map[string]string
	if err := json.Unmarshal(decodeEnvelope(t, w)["fields"], &fields); err != nil {
		t.Fatalf("fields: %v", err)
	}
	if fields["questions"] == "" {
		t.Errorf("fields = %v, want a questions entry", fields)
	}
}

func TestHealth(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("refused") })

	tests := []struct {
		name   string
		deps   map[string]Pinger
		status int
		want   map[string]string
	}{
		{"all up", map[string]Pinger{"postgres": up, "redis": up}, http.StatusOK,
			map[string]string{"postgres": "up", "redis": "up"}},
		{"redis disabled", map[string]Pinger{"postgres": up, "redis": nil}, http.StatusOK,
			map[string]string{"postgres": "up", "redis": "disabled"}},
		{"postgres down", map[string]Pinger{"postgres": down, "redis": up}, http.StatusServiceUnavailable,
			map[string]string{"postgres": "down", "redis": "up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler(tt.deps, zerolog.Nop())
			r := gin.New()
			r.GET("/health", h.Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}

			var report healthReport
			if err := json.Unmarshal(decodeEnvelope(t, w)["data"], &report); err != nil {
				t.Fatalf("data: %v", err)
			}
			for name, state := range tt.want {
				if report.Dependencies[name] != state {
					t.Errorf("%s = %q, want %q", name, report.Dependencies[name], state)
				}
			}
		})
	}
}

func TestUpgraderOrigin(t *testing.T) {
	up := buildUpgrader([]string{"https://exam.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://exam.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws/tests/1/monitor", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := up.CheckOrigin(r); got != tt.want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
