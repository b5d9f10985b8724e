package model

import (
	"encoding/json"
	"fmt"
)

// QuestionKind tags the capability a question exposes to the student.
type QuestionKind string

const (
	KindChoice   QuestionKind = "CHOICE"
	KindFreeText QuestionKind = "FREE_TEXT"
)

// Answer is a choice as shown to the student. Correctness is withheld.
type Answer struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// ScoredAnswer is a choice with its correctness flag, exposed after submission.
type ScoredAnswer struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"iscorrect"`
}

// Question is a single test item.
type Question struct {
	ID      int64        `json:"id"`
	Content string       `json:"content"`
	Score   float64      `json:"score"`
	Kind    QuestionKind `json:"type"`
	Answers []Answer     `json:"answers"`
}

// KindFor derives the tag for a question that arrived without one.
func KindFor(answerCount int) QuestionKind {
	if answerCount > 0 {
		return KindChoice
	}
	return KindFreeText
}

// HasAnswer reports whether answerID is one of q's choices.
func (q Question) HasAnswer(answerID int64) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes a question and settles its kind at the boundary.
// Backends that omit "type" get it derived from the answer list once, here.
func (q *Question) UnmarshalJSON(b []byte) error {
	type wire Question
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	switch w.Kind {
	case "":
		w.Kind = KindFor(len(w.Answers))
	case KindChoice:
		if len(w.Answers) == 0 {
			return fmt.Errorf("question %d: choice question without answers", w.ID)
		}
	case KindFreeText:
	default:
		return fmt.Errorf("question %d: unknown type %q", w.ID, w.Kind)
	}

	*q = Question(w)
	return nil
}
