package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/mailer"
	"github.com/stemsi/examflow/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Password reset errors.
var (
	ErrResendTooSoon     = errors.New("reset code was sent recently")
	ErrInvalidResetCode  = errors.New("reset code is invalid or expired")
	ErrInvalidResetToken = errors.New("reset token is invalid or expired")
)

const resetAudience = "password-reset"

// ResetStore persists pending reset codes.
type ResetStore interface {
	Get(ctx context.Context, userID int64) (*model.PasswordReset, error)
	Save(ctx context.Context, pr *model.PasswordReset) error
	Delete(ctx context.Context, userID int64) error
}

// PasswordResetService runs the forgotten-password flow: a six digit code is
// mailed, exchanging it yields a reset token, and the token sets the new
// password once.
type PasswordResetService struct {
	cfg    *config.Config
	auth   *AuthService
	resets ResetStore
	mail   mailer.Mailer
	log    zerolog.Logger
	now    func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(cfg *config.Config, auth *AuthService, resets ResetStore, mail mailer.Mailer, log zerolog.Logger) *PasswordResetService {
	return &PasswordResetService{
		cfg:    cfg,
		auth:   auth,
		resets: resets,
		mail:   mail,
		log:    log.With().Str("component", "reset_service").Logger(),
		now:    time.Now,
	}
}

// SendCode mails a fresh code to the account registered under email,
// replacing any earlier one. Unknown addresses succeed silently so the
// endpoint does not reveal which addresses exist.
func (s *PasswordResetService) SendCode(ctx context.Context, email string) error {
	u, err := s.lookup(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Debug().Msg("Reset requested for unknown address")
			return nil
		}
		return err
	}

	now := s.now()
	prev, err := s.resets.Get(ctx, u.ID)
	switch {
	case err == nil:
		if now.Before(prev.SentAt.Add(s.cfg.ResetResendAfter)) {
			return ErrResendTooSoon
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("get reset: %w", err)
	}

	code, err := newResetCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash reset code: %w", err)
	}

	pr := &model.PasswordReset{
		UserID:    u.ID,
		CodeHash:  string(hash),
		SentAt:    now,
		ExpiresAt: now.Add(s.cfg.ResetCodeTTL),
	}
	if err := s.resets.Save(ctx, pr); err != nil {
		return fmt.Errorf("save reset: %w", err)
	}

	body := fmt.Sprintf("Hello %s,\n\nYour password reset code is %s. It expires in %s.\n\nIf you did not ask for it, ignore this message.\n",
		u.Username, code, s.cfg.ResetCodeTTL)
	if err := s.mail.Send(ctx, *u.Email, "Your examflow password reset code", body); err != nil {
		_ = s.resets.Delete(ctx, u.ID)
		return fmt.Errorf("mail reset code: %w", err)
	}

	s.log.Info().Int64("user_id", u.ID).Msg("Reset code sent")
	return nil
}

// VerifyCode checks a mailed code and returns a reset token. A code is
// dropped after ResetMaxAttempts wrong guesses.
func (s *PasswordResetService) VerifyCode(ctx context.Context, email, code string) (string, error) {
	u, err := s.lookup(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidResetCode
		}
		return "", err
	}

	pr, err := s.pending(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			return "", ErrInvalidResetCode
		}
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(pr.CodeHash), []byte(code)) != nil {
		pr.Attempts++
		if pr.Attempts >= s.cfg.ResetMaxAttempts {
			err = s.resets.Delete(ctx, u.ID)
		} else {
			err = s.resets.Save(ctx, pr)
		}
		if err != nil {
			return "", fmt.Errorf("record failed attempt: %w", err)
		}
		return "", ErrInvalidResetCode
	}

	now := s.now()
	pr.Nonce = uuid.New().String()
	pr.ExpiresAt = now.Add(s.cfg.ResetCodeTTL)
	if err := s.resets.Save(ctx, pr); err != nil {
		return "", fmt.Errorf("save reset: %w", err)
	}

	claims := jwt.RegisteredClaims{
		ID:        pr.Nonce,
		Subject:   strconv.FormatInt(u.ID, 10),
		Audience:  jwt.ClaimStrings{resetAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(pr.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return token, nil
}

// Confirm sets the new password and consumes the reset token.
func (s *PasswordResetService) Confirm(ctx context.Context, token, newPassword string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithAudience(resetAudience), jwt.WithTimeFunc(s.now))
	if err != nil {
		return ErrInvalidResetToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return ErrInvalidResetToken
	}

	pr, err := s.pending(ctx, userID)
	if err != nil {
		return err
	}
	if pr.Nonce == "" || pr.Nonce != claims.ID {
		return ErrInvalidResetToken
	}

	if err := s.auth.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	if err := s.resets.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete reset: %w", err)
	}
	s.log.Info().Int64("user_id", userID).Msg("Password reset")
	return nil
}

func (s *PasswordResetService) lookup(ctx context.Context, email string) (*model.User, error) {
	addr := normalizeEmail(email)
	if addr == nil {
		return nil, pgx.ErrNoRows
	}
	u, err := s.auth.users.GetByEmail(ctx, *addr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// pending returns the unexpired reset of userID. Expired rows are removed.
func (s *PasswordResetService) pending(ctx context.Context, userID int64) (*model.PasswordReset, error) {
	pr, err := s.resets.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidResetToken
		}
		return nil, fmt.Errorf("get reset: %w", err)
	}
	if !s.now().Before(pr.ExpiresAt) {
		if err := s.resets.Delete(ctx, userID); err != nil {
			return nil, fmt.Errorf("delete expired reset: %w", err)
		}
		return nil, ErrInvalidResetToken
	}
	return pr, nil
}

func newResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
