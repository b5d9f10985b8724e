package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/examflow/internal/model"
)

// Opener opens the server-side result record.
type Opener interface {
	OpenResult(ctx context.Context, studentID, testID int64, start time.Time) error
}

// AnswerWriter records answers. Both calls overwrite.
type AnswerWriter interface {
	SetChoice(ctx context.Context, studentID, questionID, answerID int64) error
	SubmitText(ctx context.Context, studentID, questionID int64, text string) error
}

// Finalizer closes the result record.
type Finalizer interface {
	FinalizeResult(ctx context.Context, studentID, testID int64, end time.Time) error
}

// Backend is everything an attempt needs from the server.
// *apiclient.Client satisfies it.
type Backend interface {
	Opener
	AnswerWriter
	Finalizer
	FetchQuestions(ctx context.Context, testID int64) ([]model.Question, error)
}

// Prompt is shown before a manual submission with unanswered questions.
type Prompt struct {
	Unanswered int
	Total      int
}

// Message states the unanswered count.
func (p Prompt) Message() string {
	noun := "questions"
	if p.Unanswered == 1 {
		noun = "question"
	}
	return fmt.Sprintf("You have %d unanswered %s out of %d. Submit anyway?", p.Unanswered, noun, p.Total)
}

// Confirmer asks the student to confirm a manual submission.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) { return f(ctx, p) }

// Navigator receives the destination after a successful submission.
type Navigator interface {
	Navigate(path string)
}

// NavigateFunc adapts a function to Navigator.
type NavigateFunc func(path string)

func (f NavigateFunc) Navigate(path string) { f(path) }

// ResultPath is where a submitted attempt navigates.
func ResultPath(testID int64) string {
	return fmt.Sprintf("/student/results/%d", testID)
}
