// Package attempt runs one timed test attempt: the countdown, answer capture
// and the exactly-once submission that ends it.
package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/anchor"
	"github.com/stemsi/examflow/internal/model"
)

// Options tunes an Attempt. Zero values pick defaults: system clock, 1s tick,
// 2s debounce, auto-confirm and no navigation.
type Options struct {
	Clock     Clock
	Confirmer Confirmer
	Navigator Navigator
	// Anchors, when set, has the session anchor removed after submission.
	Anchors anchor.Store
	Logger  zerolog.Logger
	Tick    time.Duration
	Quiet   time.Duration
	// OnTick receives the time left on every countdown tick.
	OnTick func(left time.Duration)
	// OnState receives every state transition, outside the attempt's lock.
	OnState func(State)
}

// Attempt is a running test session.
type Attempt struct {
	session   model.TestSession
	questions []model.Question
	backend   Backend
	rec       *Recorder
	countdown *Countdown
	opts      Options
	log       zerolog.Logger

	mu      sync.Mutex
	state   State
	lastErr error
	done    chan struct{}
}

func New(session model.TestSession, questions []model.Question, backend Backend, opts Options) *Attempt {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	log := opts.Logger.With().
		Str("component", "attempt").
		Int64("test_id", session.TestID).
		Logger()

	return &Attempt{
		session:   session,
		questions: questions,
		backend:   backend,
		rec:       NewRecorder(backend, session.StudentID, questions, opts.Quiet, opts.Logger),
		countdown: NewCountdown(opts.Clock, session.EndTime, opts.Tick),
		opts:      opts,
		log:       log,
		state:     Running,
		done:      make(chan struct{}),
	}
}

func (a *Attempt) Session() model.TestSession { return a.session }

func (a *Attempt) Questions() []model.Question { return a.questions }

func (a *Attempt) Recorder() *Recorder { return a.rec }

// Remaining is the time left, recomputed from the clock.
func (a *Attempt) Remaining() time.Duration { return a.countdown.Remaining() }

// Done is closed once the attempt is Submitted.
func (a *Attempt) Done() <-chan struct{} { return a.done }

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the error of the last failed submission.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Unanswered counts questions without a recorded answer.
func (a *Attempt) Unanswered() int {
	n := len(a.questions) - a.rec.Answered()
	if n < 0 {
		return 0
	}
	return n
}

// Select records a choice answer.
func (a *Attempt) Select(ctx context.Context, questionID, answerID int64) error {
	return a.rec.Select(ctx, questionID, answerID)
}

// Type buffers free text for a question.
func (a *Attempt) Type(questionID int64, text string) error {
	return a.rec.Type(questionID, text)
}

// Run drives the countdown until expiry, submission or ctx cancellation. On
// expiry it submits without confirmation and returns the submission error.
func (a *Attempt) Run(ctx context.Context) error {
	if !a.countdown.Run(ctx, a.done, a.opts.OnTick) {
		return ctx.Err()
	}
	return a.expire(ctx)
}

// Submit is the student's manual submission. With unanswered questions the
// Confirmer is asked first; declining returns ErrDeclined and changes nothing.
func (a *Attempt) Submit(ctx context.Context) error {
	if a.State() != Running {
		return ErrNotRunning
	}

	if unanswered := a.Unanswered(); unanswered > 0 && a.opts.Confirmer != nil {
		ok, err := a.opts.Confirmer.Confirm(ctx, Prompt{Unanswered: unanswered, Total: len(a.questions)})
		if err != nil {
			return err
		}
		if !ok {
			a.log.Debug().Int("unanswered", unanswered).Msg("Submission declined")
			return ErrDeclined
		}
	}

	// The countdown may have expired while the prompt was open.
	if !a.transition(Running, Submitting) {
		return ErrNotRunning
	}
	return a.finalize(ctx)
}

// Retry repeats a failed submission.
func (a *Attempt) Retry(ctx context.Context) error {
	if !a.transition(SubmitFailed, Submitting) {
		return ErrNothingToRetry
	}
	return a.finalize(ctx)
}

func (a *Attempt) expire(ctx context.Context) error {
	if !a.transition(Running, Expired) {
		return nil
	}
	a.log.Info().Msg("Time is up, submitting")
	if !a.transition(Expired, Submitting) {
		return nil
	}
	return a.finalize(ctx)
}

// transition moves from -> to atomically and reports whether it happened.
func (a *Attempt) transition(from, to State) bool {
	a.mu.Lock()
	if a.state != from {
		a.mu.Unlock()
		return false
	}
	a.state = to
	a.mu.Unlock()

	if a.opts.OnState != nil {
		a.opts.OnState(to)
	}
	return true
}

// finalize runs only in Submitting; the transition into it is the guard that
// keeps submissions to one in flight.
func (a *Attempt) finalize(ctx context.Context) error {
	a.rec.seal()
	if err := a.rec.Flush(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Some text answers could not be saved before submission")
	}

	end := a.opts.Clock.Now()
	err := a.backend.FinalizeResult(ctx, a.session.StudentID, a.session.TestID, end)

	a.mu.Lock()
	if err != nil {
		a.state = SubmitFailed
		a.lastErr = err
		a.mu.Unlock()
		a.log.Error().Err(err).Msg("Submission failed")
		if a.opts.OnState != nil {
			a.opts.OnState(SubmitFailed)
		}
		return err
	}
	a.state = Submitted
	a.lastErr = nil
	close(a.done)
	a.mu.Unlock()

	a.log.Info().Time("end_time", end).Msg("Attempt submitted")
	if a.opts.OnState != nil {
		a.opts.OnState(Submitted)
	}

	if a.opts.Anchors != nil {
		if err := a.opts.Anchors.Delete(ctx, a.session.StudentID, a.session.TestID); err != nil {
			a.log.Warn().Err(err).Msg("Failed to clear session anchor")
		}
	}
	if a.opts.Navigator != nil {
		a.opts.Navigator.Navigate(ResultPath(a.session.TestID))
	}
	return nil
}
