package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrInvalidRole        = errors.New("invalid role")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrSignupDisabled     = errors.New("self-registration is disabled")
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
}

// UserStore is the account persistence AuthService needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	UpdateProfile(ctx context.Context, id int64, fullName string, email *string, dob *time.Time) (*model.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// AuthService handles authentication, JWT and logout revocation.
type AuthService struct {
	cfg   *config.Config
	users UserStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewAuthService creates a new AuthService. rdb may be nil, which disables
// logout revocation.
func NewAuthService(cfg *config.Config, users UserStore, rdb *redis.Client, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:   cfg,
		users: users,
		rdb:   rdb,
		log:   log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if err := s.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, "", err
	}

	token, err := s.GenerateToken(u)
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("User logged in")
	return u, token, nil
}

// GenerateToken creates a signed JWT for u.
func (s *AuthService) GenerateToken(u *model.User) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, ErrInvalidRole
	}

	return claims, nil
}

// Revoke marks the token's id as logged out until the token would expire.
func (s *AuthService) Revoke(ctx context.Context, claims *Claims) error {
	if s.rdb == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, config.CacheKey.RevokedTokenKey(claims.ID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// CheckRevoked returns ErrTokenRevoked for a logged-out token id.
func (s *AuthService) CheckRevoked(ctx context.Context, jti string) error {
	if s.rdb == nil || jti == "" {
		return nil
	}
	n, err := s.rdb.Exists(ctx, config.CacheKey.RevokedTokenKey(jti)).Result()
	if err != nil {
		return fmt.Errorf("check revocation: %w", err)
	}
	if n > 0 {
		return ErrTokenRevoked
	}
	return nil
}

// Me returns the account behind a token.
func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateUser hashes the password and stores a new account.
func (s *AuthService) CreateUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	return s.create(ctx, &model.User{Username: username, Role: role}, password)
}

// Signup registers an account from the public signup form.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (*model.User, error) {
	if !s.cfg.SignupEnabled {
		return nil, ErrSignupDisabled
	}
	u, err := s.create(ctx, &model.User{
		Username: req.Username,
		Role:     req.Role,
		FullName: strings.TrimSpace(req.FullName),
		Email:    normalizeEmail(req.Email),
	}, req.Password)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("User signed up")
	return u, nil
}

func (s *AuthService) create(ctx context.Context, u *model.User, password string) (*model.User, error) {
	if !u.Role.Valid() {
		return nil, ErrInvalidRole
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.Username = strings.TrimSpace(u.Username)
	u.PasswordHash = hash
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProfile replaces the profile fields of an account.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileRequest) (*model.User, error) {
	var dob *time.Time
	if req.DateOfBirth != "" {
		d, err := time.Parse(model.DateLayout, req.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("date of birth: %w", err)
		}
		dob = &d
	}

	u, err := s.users.UpdateProfile(ctx, userID, strings.TrimSpace(req.FullName), normalizeEmail(req.Email), dob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// ChangePassword replaces the password of a logged-in account after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.CheckPassword(u.PasswordHash, oldPassword); err != nil {
		return ErrWrongPassword
	}
	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Msg("Password changed")
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := s.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// normalizeEmail lowercases an address; empty means none.
func normalizeEmail(email string) *string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	return &email
}
