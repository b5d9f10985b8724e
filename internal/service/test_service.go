package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/repository"
)

// Domain Errors
var (
	ErrNotFound          = errors.New("not found")
	ErrTestNotOpen       = errors.New("test is outside its open window")
	ErrNotTestAuthor     = errors.New("not the author of this test")
	ErrDuplicatePasscode = errors.New("passcode already in use")
	ErrNoCorrectAnswer   = errors.New("choice question has no correct answer")
)

const (
	passcodeLength   = 8
	passcodeAttempts = 3
	passcodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// TestStore is the test persistence TestService needs.
type TestStore interface {
	GetByID(ctx context.Context, id int64) (*model.TestDescriptor, error)
	GetByPasscode(ctx context.Context, passcode string) (*model.TestDescriptor, error)
	ListByTeacher(ctx context.Context, teacherID int64) ([]model.TestDescriptor, error)
	Create(ctx context.Context, teacherID int64, req *model.CreateTestRequest) (*model.TestDescriptor, error)
	Questions(ctx context.Context, testID int64) ([]model.Question, error)
}

// TestService handles tests, passcode lookup and its Redis cache.
type TestService struct {
	tests TestStore
	rdb   *redis.Client
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewTestService creates a new TestService. rdb may be nil, which disables the
// passcode cache.
func NewTestService(tests TestStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *TestService {
	return &TestService{
		tests: tests,
		rdb:   rdb,
		ttl:   ttl,
		now:   time.Now,
		log:   log.With().Str("component", "test_service").Logger(),
	}
}

// NormalizePasscode trims and upper-cases a passcode.
func NormalizePasscode(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

// ResolvePasscode returns the test behind a passcode if it is open now.
func (s *TestService) ResolvePasscode(ctx context.Context, passcode string) (*model.TestDescriptor, error) {
	passcode = NormalizePasscode(passcode)
	if passcode == "" {
		return nil, ErrNotFound
	}

	t, err := s.cachedByPasscode(ctx, passcode)
	if err != nil {
		return nil, err
	}
	if !t.IsOpen(s.now()) {
		return nil, ErrTestNotOpen
	}
	return t, nil
}

func (s *TestService) cachedByPasscode(ctx context.Context, passcode string) (*model.TestDescriptor, error) {
	key := config.CacheKey.PasscodeKey(passcode)

	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var t model.TestDescriptor
			if err := json.Unmarshal(raw, &t); err == nil {
				return &t, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Passcode cache read failed")
		}
	}

	t, err := s.tests.GetByPasscode(ctx, passcode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get test by passcode: %w", err)
	}

	if s.rdb != nil && s.ttl > 0 {
		if raw, err := json.Marshal(t); err == nil {
			if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				s.log.Warn().Err(err).Msg("Passcode cache write failed")
			}
		}
	}
	return t, nil
}

// GetByID retrieves a test.
func (s *TestService) GetByID(ctx context.Context, id int64) (*model.TestDescriptor, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	return t, nil
}

// Authorize returns the test if teacherID authored it.
func (s *TestService) Authorize(ctx context.Context, testID, teacherID int64) (*model.TestDescriptor, error) {
	t, err := s.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.TeacherID != teacherID {
		return nil, ErrNotTestAuthor
	}
	return t, nil
}

// Questions returns a test's questions for a student, without answer keys.
func (s *TestService) Questions(ctx context.Context, testID int64) ([]model.Question, error) {
	return s.tests.Questions(ctx, testID)
}

// ListByTeacher retrieves a teacher's tests.
func (s *TestService) ListByTeacher(ctx context.Context, teacherID int64) ([]model.TestDescriptor, error) {
	return s.tests.ListByTeacher(ctx, teacherID)
}

// Create validates and stores a new test. An empty passcode is generated.
func (s *TestService) Create(ctx context.Context, teacherID int64, req *model.CreateTestRequest) (*model.TestDescriptor, error) {
	for i, q := range req.Questions {
		if len(q.Answers) == 0 {
			continue
		}
		if !hasCorrect(q.Answers) {
			return nil, fmt.Errorf("question %d: %w", i+1, ErrNoCorrectAnswer)
		}
	}

	generated := req.Passcode == ""
	req.Passcode = NormalizePasscode(req.Passcode)

	for attempt := 1; ; attempt++ {
		if generated {
			code, err := GeneratePasscode(passcodeLength)
			if err != nil {
				return nil, err
			}
			req.Passcode = code
		}

		t, err := s.tests.Create(ctx, teacherID, req)
		if err == nil {
			s.log.Info().
				Int64("test_id", t.ID).
				Int64("teacher_id", teacherID).
				Int("questions", len(req.Questions)).
				Msg("Test created")
			return t, nil
		}
		if !errors.Is(err, repository.ErrDuplicatePasscode) {
			return nil, err
		}
		if !generated || attempt >= passcodeAttempts {
			return nil, ErrDuplicatePasscode
		}
	}
}

func hasCorrect(answers []model.CreateAnswerRequest) bool {
	for _, a := range answers {
		if a.IsCorrect {
			return true
		}
	}
	return false
}

// GeneratePasscode returns a random code of n characters from an alphabet
// without look-alike glyphs.
func GeneratePasscode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate passcode: %w", err)
	}
	for i, b := range buf {
		buf[i] = passcodeAlphabet[int(b)%len(passcodeAlphabet)]
	}
	return string(buf), nil
}
