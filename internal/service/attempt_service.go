package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/repository"
)

var (
	ErrNoOpenAttempt     = errors.New("no open attempt")
	ErrAttemptFinalized  = errors.New("attempt already finalized")
	ErrAttemptInProgress = errors.New("attempt still in progress")
	ErrAnswerMismatch    = errors.New("answer does not belong to question")
	ErrWrongQuestionKind = errors.New("question type does not accept this answer")
)

// maxStartSkew bounds how far a client-reported start time may differ from
// the server clock before the server's own time is used.
const maxStartSkew = 2 * time.Minute

// ResultStore is the attempt persistence AttemptService needs.
type ResultStore interface {
	Open(ctx context.Context, studentID, testID int64, start time.Time) (*model.ResultRecord, bool, error)
	GetOpen(ctx context.Context, studentID, testID int64) (*model.ResultRecord, error)
	GetLatest(ctx context.Context, studentID, testID int64) (*model.ResultRecord, error)
	AttemptForQuestion(ctx context.Context, studentID, questionID int64) (*repository.AttemptRef, error)
	AnswerBelongs(ctx context.Context, questionID, answerID int64) (bool, error)
	SetChoice(ctx context.Context, resultID, questionID, answerID int64) error
	SetText(ctx context.Context, resultID, questionID int64, text string) error
	Finalize(ctx context.Context, studentID, testID int64, end time.Time) (*model.ResultRecord, error)
	FinalizeExpired(ctx context.Context, grace time.Duration, limit int) ([]model.ResultRecord, error)
	Detail(ctx context.Context, rec *model.ResultRecord) (*model.ResultDetail, error)
	ListByStudent(ctx context.Context, studentID int64) ([]model.PastResult, error)
	ListByTest(ctx context.Context, testID int64) ([]model.TestResultRow, error)
}

// TestLookup resolves tests by ID.
type TestLookup interface {
	GetByID(ctx context.Context, id int64) (*model.TestDescriptor, error)
}

// Publisher receives attempt transitions for live monitoring.
type Publisher interface {
	Publish(ctx context.Context, ev model.MonitorEvent)
}

// AttemptService handles opening, answering and finalizing attempts.
type AttemptService struct {
	results ResultStore
	tests   TestLookup
	pub     Publisher
	now     func() time.Time
	log     zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(results ResultStore, tests TestLookup, pub Publisher, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		results: results,
		tests:   tests,
		pub:     pub,
		now:     time.Now,
		log:     log.With().Str("component", "attempt_service").Logger(),
	}
}

func (s *AttemptService) publish(ctx context.Context, ev model.MonitorEvent) {
	if s.pub == nil {
		return
	}
	ev.At = s.now().UTC()
	s.pub.Publish(ctx, ev)
}

// Open starts an attempt, or returns the one already open for (student, test).
func (s *AttemptService) Open(ctx context.Context, studentID, testID int64, start time.Time) (*model.ResultRecord, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}

	now := s.now()
	if !t.IsOpen(now) {
		return nil, ErrTestNotOpen
	}
	if d := now.Sub(start); d > maxStartSkew || d < -maxStartSkew {
		s.log.Debug().
			Int64("student_id", studentID).
			Time("client_start", start).
			Msg("Client start time outside tolerated skew, using server time")
		start = now
	}

	rec, created, err := s.results.Open(ctx, studentID, testID, start)
	if err != nil {
		return nil, fmt.Errorf("open attempt: %w", err)
	}

	if created {
		s.log.Info().Int64("student_id", studentID).Int64("test_id", testID).Msg("Attempt opened")
		s.publish(ctx, model.MonitorEvent{Type: model.EventStarted, TestID: testID, StudentID: studentID})
	}
	return rec, nil
}

// RequireOpen returns ErrNoOpenAttempt unless the student has an open attempt.
func (s *AttemptService) RequireOpen(ctx context.Context, studentID, testID int64) error {
	if _, err := s.results.GetOpen(ctx, studentID, testID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoOpenAttempt
		}
		return fmt.Errorf("get open attempt: %w", err)
	}
	return nil
}

func (s *AttemptService) attemptFor(ctx context.Context, studentID, questionID int64, kind model.QuestionKind) (*repository.AttemptRef, error) {
	ref, err := s.results.AttemptForQuestion(ctx, studentID, questionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoOpenAttempt
		}
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	if ref.Finalized {
		return nil, ErrAttemptFinalized
	}
	if ref.Kind != kind {
		return nil, ErrWrongQuestionKind
	}
	return ref, nil
}

// SetChoice records (overwrites) the student's choice for a question.
func (s *AttemptService) SetChoice(ctx context.Context, studentID, questionID, answerID int64) error {
	ref, err := s.attemptFor(ctx, studentID, questionID, model.KindChoice)
	if err != nil {
		return err
	}

	ok, err := s.results.AnswerBelongs(ctx, questionID, answerID)
	if err != nil {
		return fmt.Errorf("check answer: %w", err)
	}
	if !ok {
		return ErrAnswerMismatch
	}

	if err := s.results.SetChoice(ctx, ref.ResultID, questionID, answerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptFinalized
		}
		return fmt.Errorf("store choice: %w", err)
	}

	s.publish(ctx, model.MonitorEvent{Type: model.EventAnswered, TestID: ref.TestID, StudentID: studentID, QuestionID: questionID})
	return nil
}

// SetText records (overwrites) the student's free-text response.
func (s *AttemptService) SetText(ctx context.Context, studentID, questionID int64, text string) error {
	ref, err := s.attemptFor(ctx, studentID, questionID, model.KindFreeText)
	if err != nil {
		return err
	}

	if err := s.results.SetText(ctx, ref.ResultID, questionID, text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptFinalized
		}
		return fmt.Errorf("store text: %w", err)
	}

	s.publish(ctx, model.MonitorEvent{Type: model.EventAnswered, TestID: ref.TestID, StudentID: studentID, QuestionID: questionID})
	return nil
}

// Finalize closes the open attempt and scores it. Finalizing an attempt that
// is already closed returns the stored record, so a client retrying after a
// lost response still succeeds.
func (s *AttemptService) Finalize(ctx context.Context, studentID, testID int64, end time.Time) (*model.ResultRecord, error) {
	rec, err := s.results.Finalize(ctx, studentID, testID, end)
	if err == nil {
		s.log.Info().
			Int64("student_id", studentID).
			Int64("test_id", testID).
			Msg("Attempt finalized")
		s.publish(ctx, model.MonitorEvent{
			Type: model.EventSubmitted, TestID: testID, StudentID: studentID, TotalScore: rec.TotalScore,
		})
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	latest, err := s.results.GetLatest(ctx, studentID, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoOpenAttempt
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return latest, nil
}

// ExpireAbandoned finalizes attempts whose deadline passed more than grace ago.
func (s *AttemptService) ExpireAbandoned(ctx context.Context, grace time.Duration, limit int) (int, error) {
	recs, err := s.results.FinalizeExpired(ctx, grace, limit)
	if err != nil {
		return 0, fmt.Errorf("finalize expired: %w", err)
	}
	for _, rec := range recs {
		s.publish(ctx, model.MonitorEvent{
			Type: model.EventExpired, TestID: rec.TestID, StudentID: rec.StudentID, TotalScore: rec.TotalScore,
		})
	}
	return len(recs), nil
}

// Detail returns the denormalized result of the student's latest attempt.
// Answer keys are only revealed once the attempt is closed.
func (s *AttemptService) Detail(ctx context.Context, testID, studentID int64) (*model.ResultDetail, error) {
	rec, err := s.results.GetLatest(ctx, studentID, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if rec.Open() {
		return nil, ErrAttemptInProgress
	}
	return s.results.Detail(ctx, rec)
}

// PastResults lists a student's attempts.
func (s *AttemptService) PastResults(ctx context.Context, studentID int64) ([]model.PastResult, error) {
	return s.results.ListByStudent(ctx, studentID)
}

// TestResults lists every attempt at a test.
func (s *AttemptService) TestResults(ctx context.Context, testID int64) ([]model.TestResultRow, error) {
	return s.results.ListByTest(ctx, testID)
}
