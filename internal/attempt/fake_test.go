package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stemsi/examflow/internal/model"
)

type textWrite struct {
	questionID int64
	text       string
}

// fakeBackend records every call in order.
type fakeBackend struct {
	mu        sync.Mutex
	opens     []time.Time
	choices   map[int64]int64
	texts     []textWrite
	finalizes []time.Time
	log       []string

	openErr      error
	choiceErr    error
	finalizeErrs []error
	finalizeGate chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{choices: make(map[int64]int64)}
}

func (f *fakeBackend) OpenResult(_ context.Context, _, _ int64, start time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opens = append(f.opens, start)
	return nil
}

func (f *fakeBackend) FetchQuestions(context.Context, int64) ([]model.Question, error) {
	return nil, nil
}

func (f *fakeBackend) SetChoice(_ context.Context, _, questionID, answerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.choiceErr != nil {
		return f.choiceErr
	}
	f.choices[questionID] = answerID
	f.log = append(f.log, fmt.Sprintf("choice %d=%d", questionID, answerID))
	return nil
}

func (f *fakeBackend) SubmitText(_ context.Context, _, questionID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, textWrite{questionID, text})
	f.log = append(f.log, fmt.Sprintf("text %d=%s", questionID, text))
	return nil
}

func (f *fakeBackend) FinalizeResult(_ context.Context, _, _ int64, end time.Time) error {
	if f.finalizeGate != nil {
		<-f.finalizeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizes = append(f.finalizes, end)
	f.log = append(f.log, "finalize")
	if len(f.finalizeErrs) > 0 {
		err := f.finalizeErrs[0]
		f.finalizeErrs = f.finalizeErrs[1:]
		return err
	}
	return nil
}

func (f *fakeBackend) finalizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finalizes)
}

func (f *fakeBackend) textWrites() []textWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]textWrite(nil), f.texts...)
}

func (f *fakeBackend) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func choiceQuestion(id int64, answers ...int64) model.Question {
	q := model.Question{ID: id, Content: fmt.Sprintf("Q%d", id), Score: 1, Kind: model.KindChoice}
	for _, a := range answers {
		q.Answers = append(q.Answers, model.Answer{ID: a, Content: fmt.Sprintf("A%d", a)})
	}
	return q
}

func textQuestion(id int64) model.Question {
	return model.Question{ID: id, Content: fmt.Sprintf("Q%d", id), Score: 1, Kind: model.KindFreeText}
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
