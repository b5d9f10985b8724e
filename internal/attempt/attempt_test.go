package attempt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/anchor"
	"github.com/stemsi/examflow/internal/model"
)

func TestAttempt_AutoSubmitAtExpiry(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(t0)
	be := newFakeBackend()
	nav := &recordingNavigator{}
	anchors := anchor.NewMemoryStore(time.Minute, clock.Now)

	desc := &model.TestDescriptor{ID: 42, Title: "Algebra", DurationMinutes: 2, Passcode: "MATH123", QuestionCount: 1}
	session, err := NewStarter(be, anchors, clock, zerolog.Nop()).Start(ctx, 7, desc)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !session.EndTime.Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("EndTime = %v", session.EndTime)
	}

	confirms := 0
	a := New(*session, []model.Question{choiceQuestion(1, 10, 11)}, be, Options{
		Clock: clock,
		Confirmer: ConfirmFunc(func(context.Context, Prompt) (bool, error) {
			confirms++
			return true, nil
		}),
		Navigator: nav,
		Anchors:   anchors,
		Tick:      time.Millisecond,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	clock.Advance(125 * time.Second)

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("attempt did not auto-submit")
	}

	if a.State() != Submitted {
		t.Fatalf("state = %v, want submitted", a.State())
	}
	if n := be.finalizeCount(); n != 1 {
		t.Fatalf("finalize calls = %d, want 1", n)
	}
	if !be.finalizes[0].Equal(t0.Add(125 * time.Second)) {
		t.Fatalf("endTime = %v", be.finalizes[0])
	}
	if confirms != 0 {
		t.Fatal("auto-submit must not ask for confirmation")
	}
	if got := nav.visited(); len(got) != 1 || got[0] != "/student/results/42" {
		t.Fatalf("navigated to %v", got)
	}
	if _, err := anchors.Load(ctx, 7, 42); !errors.Is(err, anchor.ErrNotFound) {
		t.Fatal("anchor should be cleared after submission")
	}

	if err := a.Submit(ctx); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Submit after auto-submit = %v, want ErrNotRunning", err)
	}
	if n := be.finalizeCount(); n != 1 {
		t.Fatalf("finalize calls = %d after extra submit", n)
	}
}

func TestAttempt_ManualAndExpiryRaceFinalizeOnce(t *testing.T) {
	for i := 0; i < 25; i++ {
		clock := NewManualClock(t0)
		be := newFakeBackend()
		be.finalizeGate = make(chan struct{})
		session := model.TestSession{TestID: 42, StudentID: 7, StartTime: t0, EndTime: t0.Add(time.Second)}
		a := New(session, nil, be, Options{Clock: clock, Tick: time.Millisecond})

		clock.Advance(2 * time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _ = a.Run(context.Background()) }()
		go func() { defer wg.Done(); _ = a.Submit(context.Background()) }()

		time.Sleep(5 * time.Millisecond)
		close(be.finalizeGate)
		wg.Wait()

		if n := be.finalizeCount(); n != 1 {
			t.Fatalf("iteration %d: finalize calls = %d, want 1", i, n)
		}
		if a.State() != Submitted {
			t.Fatalf("iteration %d: state = %v", i, a.State())
		}
	}
}

func TestAttempt_PromptStatesUnansweredCount(t *testing.T) {
	ctx := context.Background()
	be := newFakeBackend()
	qs := []model.Question{
		choiceQuestion(1, 10, 11),
		choiceQuestion(2, 20, 21),
		choiceQuestion(3, 30, 31),
		choiceQuestion(4, 40, 41),
		textQuestion(5),
	}
	session := model.TestSession{TestID: 42, StudentID: 7, StartTime: t0, EndTime: t0.Add(time.Hour)}

	var prompt Prompt
	a := New(session, qs, be, Options{
		Clock: NewManualClock(t0),
		Confirmer: ConfirmFunc(func(_ context.Context, p Prompt) (bool, error) {
			prompt = p
			return false, nil
		}),
	})

	if err := a.Select(ctx, 1, 10); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := a.Type(5, "my answer"); err != nil {
		t.Fatalf("Type: %v", err)
	}

	if err := a.Submit(ctx); !errors.Is(err, ErrDeclined) {
		t.Fatalf("Submit = %v, want ErrDeclined", err)
	}
	if prompt.Unanswered != 3 || prompt.Total != 5 {
		t.Fatalf("prompt = %+v, want 3 of 5", prompt)
	}
	if !strings.Contains(prompt.Message(), "3 unanswered") {
		t.Fatalf("prompt message %q does not state the count", prompt.Message())
	}
	if n := be.finalizeCount(); n != 0 {
		t.Fatalf("finalize calls = %d after decline, want 0", n)
	}
	if a.State() != Running {
		t.Fatalf("state = %v after decline, want running", a.State())
	}
}

func TestAttempt_FlushesTextBeforeFinalize(t *testing.T) {
	ctx := context.Background()
	be := newFakeBackend()
	session := model.TestSession{TestID: 42, StudentID: 7, StartTime: t0, EndTime: t0.Add(time.Hour)}
	a := New(session, []model.Question{textQuestion(5)}, be, Options{Clock: NewManualClock(t0), Quiet: time.Hour})

	if err := a.Type(5, "last words"); err != nil {
		t.Fatalf("Type: %v", err)
	}
	if err := a.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	calls := be.calls()
	if len(calls) != 2 || calls[0] != "text 5=last words" || calls[1] != "finalize" {
		t.Fatalf("calls = %v, want text then finalize", calls)
	}
	if err := a.Type(5, "too late"); !errors.Is(err, ErrSealed) {
		t.Fatalf("Type after submit = %v, want ErrSealed", err)
	}
}

func TestAttempt_SubmitFailedThenRetry(t *testing.T) {
	ctx := context.Background()
	be := newFakeBackend()
	be.finalizeErrs = []error{errors.New("server down")}
	nav := &recordingNavigator{}
	var states []State
	session := model.TestSession{TestID: 42, StudentID: 7, StartTime: t0, EndTime: t0.Add(time.Hour)}
	a := New(session, nil, be, Options{
		Clock:     NewManualClock(t0),
		Navigator: nav,
		OnState:   func(s State) { states = append(states, s) },
	})

	if err := a.Submit(ctx); err == nil {
		t.Fatal("expected submission error")
	}
	if a.State() != SubmitFailed || a.Err() == nil {
		t.Fatalf("state = %v err = %v, want submit_failed", a.State(), a.Err())
	}

	time.Sleep(20 * time.Millisecond)
	if n := be.finalizeCount(); n != 1 {
		t.Fatalf("finalize calls = %d, failures must not retry on their own", n)
	}
	if len(nav.visited()) != 0 {
		t.Fatal("navigated after a failed submission")
	}

	if err := a.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if a.State() != Submitted || be.finalizeCount() != 2 {
		t.Fatalf("state = %v calls = %d after retry", a.State(), be.finalizeCount())
	}
	if err := a.Retry(ctx); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("second Retry = %v", err)
	}

	want := []State{Submitting, SubmitFailed, Submitting, Submitted}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestStarter_ResumesAnchoredSession(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(t0)
	be := newFakeBackend()
	st := NewStarter(be, anchor.NewMemoryStore(time.Minute, clock.Now), clock, zerolog.Nop())
	desc := &model.TestDescriptor{ID: 42, DurationMinutes: 2, Passcode: "MATH123"}

	first, err := st.Start(ctx, 7, desc)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Advance(30 * time.Second)
	second, err := st.Start(ctx, 7, desc)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if len(be.opens) != 1 {
		t.Fatalf("open calls = %d, want 1", len(be.opens))
	}
	if !second.StartTime.Equal(first.StartTime) || !second.EndTime.Equal(first.EndTime) {
		t.Fatalf("resumed session %+v differs from %+v", second, first)
	}
	if got := second.Remaining(clock.Now()); got != 90*time.Second {
		t.Fatalf("remaining after resume = %v, want 90s", got)
	}
}

func TestStarter_Failures(t *testing.T) {
	ctx := context.Background()

	be := newFakeBackend()
	be.openErr = errors.New("rejected")
	clock := NewManualClock(t0)
	anchors := anchor.NewMemoryStore(time.Minute, clock.Now)
	st := NewStarter(be, anchors, clock, zerolog.Nop())

	if _, err := st.Start(ctx, 7, &model.TestDescriptor{ID: 42, DurationMinutes: 2}); err == nil {
		t.Fatal("expected open rejection")
	}
	if _, err := anchors.Load(ctx, 7, 42); !errors.Is(err, anchor.ErrNotFound) {
		t.Fatal("anchor saved for a rejected session")
	}

	if _, err := st.Start(ctx, 0, &model.TestDescriptor{ID: 42, DurationMinutes: 2}); err == nil {
		t.Fatal("expected missing student error")
	}
	if _, err := st.Start(ctx, 7, nil); err == nil {
		t.Fatal("expected missing descriptor error")
	}
}
