package attempt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/model"
)

// DefaultQuiet is the free-text debounce period.
const DefaultQuiet = 2 * time.Second

const backgroundFlushTimeout = 30 * time.Second

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrUnknownAnswer   = errors.New("answer does not belong to question")
	ErrWrongKind       = errors.New("operation does not match question type")
	ErrSealed          = errors.New("answers are closed for this attempt")
)

// Recorder captures answers for one attempt. Choice selections are written
// immediately. Free text is buffered per question and written once typing has
// been quiet for the debounce period.
type Recorder struct {
	w         AnswerWriter
	studentID int64
	questions map[int64]model.Question
	quiet     time.Duration
	log       zerolog.Logger

	// choiceMu orders choice writes so the server sees them in local order.
	choiceMu sync.Mutex
	// flushMu serializes text flushes.
	flushMu sync.Mutex

	mu      sync.Mutex
	choices map[int64]int64
	texts   map[int64]string
	pending map[int64]string
	timer   *time.Timer
	sealed  bool
}

func NewRecorder(w AnswerWriter, studentID int64, questions []model.Question, quiet time.Duration, log zerolog.Logger) *Recorder {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	byID := make(map[int64]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &Recorder{
		w:         w,
		studentID: studentID,
		questions: byID,
		quiet:     quiet,
		log:       log.With().Str("component", "recorder").Logger(),
		choices:   make(map[int64]int64),
		texts:     make(map[int64]string),
		pending:   make(map[int64]string),
	}
}

func (r *Recorder) question(questionID int64, kind model.QuestionKind) (model.Question, error) {
	q, ok := r.questions[questionID]
	if !ok {
		return q, fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
	}
	if q.Kind != kind {
		return q, fmt.Errorf("%w: question %d is %s", ErrWrongKind, questionID, q.Kind)
	}
	return q, nil
}

// Select records answerID for a choice question. The local selection changes
// before the write; if the write fails, and nothing newer replaced it, the
// previous selection is restored.
func (r *Recorder) Select(ctx context.Context, questionID, answerID int64) error {
	q, err := r.question(questionID, model.KindChoice)
	if err != nil {
		return err
	}
	if !q.HasAnswer(answerID) {
		return fmt.Errorf("%w: answer %d, question %d", ErrUnknownAnswer, answerID, questionID)
	}

	r.choiceMu.Lock()
	defer r.choiceMu.Unlock()

	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		return ErrSealed
	}
	prev, had := r.choices[questionID]
	r.choices[questionID] = answerID
	r.mu.Unlock()

	if err := r.w.SetChoice(ctx, r.studentID, questionID, answerID); err != nil {
		r.mu.Lock()
		if r.choices[questionID] == answerID {
			if had {
				r.choices[questionID] = prev
			} else {
				delete(r.choices, questionID)
			}
		}
		r.mu.Unlock()
		r.log.Warn().Err(err).Int64("question_id", questionID).Msg("Choice write failed, selection rolled back")
		return err
	}
	return nil
}

// Type buffers the latest text for a free-text question and restarts the
// quiet-period timer.
func (r *Recorder) Type(questionID int64, text string) error {
	if _, err := r.question(questionID, model.KindFreeText); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}

	r.texts[questionID] = text
	r.pending[questionID] = text
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.quiet, r.flushInBackground)
	return nil
}

func (r *Recorder) flushInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundFlushTimeout)
	defer cancel()
	if err := r.Flush(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Debounced text flush failed, will retry on next flush")
	}
}

// Flush writes every buffered text not yet acknowledged and waits for the
// writes. Failed entries stay buffered unless newer text replaced them.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	batch := r.pending
	r.pending = make(map[int64]string)
	r.mu.Unlock()

	var errs []error
	for questionID, text := range batch {
		if err := r.w.SubmitText(ctx, r.studentID, questionID, text); err != nil {
			errs = append(errs, fmt.Errorf("question %d: %w", questionID, err))
			r.mu.Lock()
			if _, newer := r.pending[questionID]; !newer {
				r.pending[questionID] = text
			}
			r.mu.Unlock()
			continue
		}
		r.log.Debug().Int64("question_id", questionID).Msg("Text answer saved")
	}
	return errors.Join(errs...)
}

// Pending reports how many text answers are buffered but not yet written.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Selection returns the locally selected answer for a choice question.
func (r *Recorder) Selection(questionID int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.choices[questionID]
	return id, ok
}

// Text returns the latest local text for a free-text question.
func (r *Recorder) Text(questionID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.texts[questionID]
}

// Answered counts questions with a selection or non-blank text.
func (r *Recorder) Answered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.choices)
	for _, t := range r.texts {
		if strings.TrimSpace(t) != "" {
			n++
		}
	}
	return n
}

// seal rejects further edits. Buffered text can still be flushed.
func (r *Recorder) seal() {
	r.mu.Lock()
	r.sealed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
}
