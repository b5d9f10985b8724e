package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stemsi/examflow/internal/model"
)

func TestAccountCalls(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   map[string]interface{}
		call   func(*Client) error
	}{
		{
			name: "signup", method: http.MethodPost, path: "/users",
			body: map[string]interface{}{"username": "ana", "password": "secret1", "role": "STUDENT", "fullname": "Ana", "email": "ana@example.com"},
			call: func(c *Client) error {
				_, err := c.Signup(context.Background(), model.SignupRequest{
					Username: " ana ", Password: "secret1", Role: model.RoleStudent, FullName: "Ana", Email: "ana@example.com",
				})
				return err
			},
		},
		{
			name: "profile", method: http.MethodGet, path: "/users/7",
			call: func(c *Client) error {
				_, err := c.Profile(context.Background(), 7)
				return err
			},
		},
		{
			name: "update profile", method: http.MethodPut, path: "/users/7",
			body: map[string]interface{}{"fullname": "Ana Putri", "email": "", "date_of_birth": "2008-05-17"},
			call: func(c *Client) error {
				_, err := c.UpdateProfile(context.Background(), 7, model.UpdateProfileRequest{FullName: "Ana Putri", DateOfBirth: "2008-05-17"})
				return err
			},
		},
		{
			name: "change password", method: http.MethodPut, path: "/users/change-password",
			body: map[string]interface{}{"oldPassword": "secret1", "newPassword": "secret2"},
			call: func(c *Client) error { return c.ChangePassword(context.Background(), "secret1", "secret2") },
		},
		{
			name: "request reset", method: http.MethodPost, path: "/auth/password-reset",
			body: map[string]interface{}{"email": "ana@example.com"},
			call: func(c *Client) error { return c.RequestPasswordReset(context.Background(), " ana@example.com ") },
		},
		{
			name: "verify code", method: http.MethodPost, path: "/auth/password-reset/verify",
			body: map[string]interface{}{"email": "ana@example.com", "code": "123456"},
			call: func(c *Client) error {
				_, err := c.VerifyResetCode(context.Background(), "ana@example.com", "123456")
				return err
			},
		},
		{
			name: "confirm reset", method: http.MethodPost, path: "/auth/password-reset/confirm",
			body: map[string]interface{}{"resetToken": "tok", "newPassword": "brandnew1"},
			call: func(c *Client) error { return c.ConfirmPasswordReset(context.Background(), "tok", "brandnew1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != tt.method || r.URL.Path != tt.path {
					t.Errorf("%s %s, want %s %s", r.Method, r.URL.Path, tt.method, tt.path)
				}
				if tt.body != nil {
					var got map[string]interface{}
					if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
						t.Errorf("decode body: %v", err)
					}
					for k, v := range tt.body {
						if got[k] != v {
							t.Errorf("body[%s] = %v, want %v", k, got[k], v)
						}
					}
				}
				writeEnvelope(w, http.StatusOK, map[string]interface{}{
					"status": "OK",
					"data":   map[string]interface{}{"id": 7, "username": "ana", "resetToken": "tok"},
				})
			})
			if err := tt.call(c); err != nil {
				t.Fatalf("call: %v", err)
			}
		})
	}
}

func TestVerifyResetCode_ReturnsToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"status": "OK", "data": map[string]interface{}{"resetToken": "abc.def.ghi"},
		})
	})
	token, err := c.VerifyResetCode(context.Background(), "ana@example.com", "123456")
	if err != nil || token != "abc.def.ghi" {
		t.Fatalf("VerifyResetCode = %q, %v", token, err)
	}
}

func TestResendTooSoonSurfacesServerMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusTooManyRequests, map[string]interface{}{
			"status": "ERROR", "code": "RESET_RESEND_TOO_SOON",
			"message": "A reset code was sent recently. Please wait before asking again.",
		})
	})
	err := c.RequestPasswordReset(context.Background(), "ana@example.com")
	if KindOf(err) != KindHTTPStatus {
		t.Fatalf("kind = %v (err %v)", KindOf(err), err)
	}
	if got := UserMessage(err); got != "A reset code was sent recently. Please wait before asking again." {
		t.Fatalf("UserMessage = %q", got)
	}
}

func TestAccountCalls_MissingInputMakesNoRequest(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	ctx := context.Background()

	errs := []error{
		func() error { _, err := c.Signup(ctx, model.SignupRequest{Username: "  ", Password: "x"}); return err }(),
		func() error { _, err := c.Profile(ctx, 0); return err }(),
		c.ChangePassword(ctx, "", "secret2"),
		c.RequestPasswordReset(ctx, " "),
		func() error { _, err := c.VerifyResetCode(ctx, "ana@example.com", ""); return err }(),
		c.ConfirmPasswordReset(ctx, "", "brandnew1"),
	}
	for i, err := range errs {
		if !errors.Is(err, ErrMissingContext) {
			t.Errorf("call %d: err = %v, want ErrMissingContext", i, err)
		}
	}
	if called {
		t.Fatal("server must not be called")
	}
}
