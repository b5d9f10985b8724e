package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/repository"
)

type memUsers struct {
	byName map[string]*model.User
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	for _, u := range m.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if u, ok := m.byName[username]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.byName {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	if _, ok := m.byName[u.Username]; ok {
		return repository.ErrDuplicateUsername
	}
	if u.Email != nil {
		if _, err := m.GetByEmail(context.Background(), *u.Email); err == nil {
			return repository.ErrDuplicateEmail
		}
	}
	u.ID = int64(len(m.byName) + 1)
	m.byName[u.Username] = u
	return nil
}

func (m *memUsers) UpdateProfile(ctx context.Context, id int64, fullName string, email *string, dob *time.Time) (*model.User, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if email != nil {
		if other, err := m.GetByEmail(ctx, *email); err == nil && other.ID != id {
			return nil, repository.ErrDuplicateEmail
		}
	}
	u.FullName, u.Email, u.DateOfBirth = fullName, email, ""
	if dob != nil {
		u.DateOfBirth = dob.Format(model.DateLayout)
	}
	return u, nil
}

func (m *memUsers) UpdatePassword(ctx context.Context, id int64, hash string) error {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func newAuthService() *AuthService {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, BcryptCost: 4, SignupEnabled: true}
	return NewAuthService(cfg, &memUsers{byName: map[string]*model.User{}}, nil, zerolog.Nop())
}

func TestAuthService_LoginAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()

	if _, err := svc.CreateUser(ctx, "ana", "secret1", model.RoleStudent); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, token, err := svc.Login(ctx, "ana", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != model.RoleStudent || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()
	_, _ = svc.CreateUser(ctx, "ana", "secret1", model.RoleStudent)

	for _, tc := range []struct{ user, pass string }{{"ana", "wrong"}, {"bob", "secret1"}} {
		if _, _, err := svc.Login(ctx, tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%s) = %v, want ErrInvalidCredentials", tc.user, err)
		}
	}

	if _, err := svc.CreateUser(ctx, "root", "secret1", model.Role("ADMIN")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("CreateUser with bad role = %v", err)
	}
}

func TestAuthService_RejectsForeignSignature(t *testing.T) {
	svc := newAuthService()
	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour}, nil, nil, zerolog.Nop())

	token, err := other.GenerateToken(&model.User{ID: 1, Role: model.RoleTeacher})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestAuthService_Signup(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()

	u, err := svc.Signup(ctx, model.SignupRequest{
		Username: " ana ", Password: "secret1", Role: model.RoleStudent,
		FullName: "Ana Putri", Email: " Ana@Example.COM ",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if u.Username != "ana" || u.Email == nil || *u.Email != "ana@example.com" || u.FullName != "Ana Putri" {
		t.Fatalf("user = %+v", u)
	}
	if _, _, err := svc.Login(ctx, "ana", "secret1"); err != nil {
		t.Fatalf("Login after signup: %v", err)
	}

	tests := []struct {
		name string
		req  model.SignupRequest
		want error
	}{
		{"taken username", model.SignupRequest{Username: "ana", Password: "secret1", Role: model.RoleStudent}, repository.ErrDuplicateUsername},
		{"taken email", model.SignupRequest{Username: "bob", Password: "secret1", Role: model.RoleTeacher, Email: "ANA@example.com"}, repository.ErrDuplicateEmail},
		{"bad role", model.SignupRequest{Username: "cat", Password: "secret1", Role: "ADMIN"}, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Signup(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("Signup = %v, want %v", err, tt.want)
			}
		})
	}

	svc.cfg.SignupEnabled = false
	if _, err := svc.Signup(ctx, model.SignupRequest{Username: "dan", Password: "secret1", Role: model.RoleStudent}); !errors.Is(err, ErrSignupDisabled) {
		t.Fatalf("Signup while disabled = %v", err)
	}
}

func TestAuthService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()
	ana, _ := svc.CreateUser(ctx, "ana", "secret1", model.RoleStudent)
	bob, _ := svc.Signup(ctx, model.SignupRequest{Username: "bob", Password: "secret1", Role: model.RoleStudent, Email: "bob@example.com"})

	u, err := svc.UpdateProfile(ctx, ana.ID, model.UpdateProfileRequest{
		FullName: " Ana Putri ", Email: "ANA@example.com", DateOfBirth: "2008-05-17",
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.FullName != "Ana Putri" || *u.Email != "ana@example.com" || u.DateOfBirth != "2008-05-17" {
		t.Fatalf("profile = %+v", u)
	}

	cleared, err := svc.UpdateProfile(ctx, ana.ID, model.UpdateProfileRequest{FullName: "Ana"})
	if err != nil {
		t.Fatalf("UpdateProfile clear: %v", err)
	}
	if cleared.Email != nil || cleared.DateOfBirth != "" {
		t.Errorf("empty fields must clear, got %+v", cleared)
	}

	if _, err := svc.UpdateProfile(ctx, ana.ID, model.UpdateProfileRequest{Email: *bob.Email}); !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Errorf("taking another user's email = %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, 99, model.UpdateProfileRequest{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user = %v, want ErrNotFound", err)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()
	ana, _ := svc.CreateUser(ctx, "ana", "secret1", model.RoleStudent)

	if err := svc.ChangePassword(ctx, ana.ID, "wrong", "secret2"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong current password = %v, want ErrWrongPassword", err)
	}
	if err := svc.ChangePassword(ctx, ana.ID, "secret1", "secret2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, _, err := svc.Login(ctx, "ana", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
	if _, _, err := svc.Login(ctx, "ana", "secret2"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}
