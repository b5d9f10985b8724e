package model

import "time"

// TestDescriptor describes a test instance a student can join by passcode.
type TestDescriptor struct {
	ID              int64     `json:"id"`
	TeacherID       int64     `json:"teacherid,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"testtime"`
	TimeOpen        time.Time `json:"timeopen"`
	TimeClose       time.Time `json:"timeclose"`
	Passcode        string    `json:"passcode"`
	QuestionCount   int       `json:"numberquestion"`
}

// Duration returns the allotted answering time.
func (t TestDescriptor) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// IsOpen reports whether now falls inside the open/close window.
// A zero bound is treated as unbounded.
func (t TestDescriptor) IsOpen(now time.Time) bool {
	if !t.TimeOpen.IsZero() && now.Before(t.TimeOpen) {
		return false
	}
	if !t.TimeClose.IsZero() && now.After(t.TimeClose) {
		return false
	}
	return true
}

// CreateTestRequest is the payload for a teacher creating a test with its questions.
type CreateTestRequest struct {
	Title           string                  `json:"title" yaml:"title" binding:"required,min=3,max=255"`
	Description     string                  `json:"description" yaml:"description" binding:"max=2000"`
	DurationMinutes int                     `json:"testtime" yaml:"testtime" binding:"required,min=1,max=480"`
	TimeOpen        time.Time               `json:"timeopen" yaml:"timeopen" binding:"required"`
	TimeClose       time.Time               `json:"timeclose" yaml:"timeclose" binding:"required,gtfield=TimeOpen"`
	Passcode        string                  `json:"passcode" yaml:"passcode" binding:"omitempty,alphanum,min=4,max=20"`
	Questions       []CreateQuestionRequest `json:"questions" yaml:"questions" binding:"required,min=1,dive"`
}

// CreateQuestionRequest describes one question inside CreateTestRequest.
// A question with no answers is a free-text item.
type CreateQuestionRequest struct {
	Content string                `json:"content" yaml:"content" binding:"required,min=1,max=2000"`
	Score   float64               `json:"score" yaml:"score" binding:"min=0,max=1000"`
	Answers []CreateAnswerRequest `json:"answers" yaml:"answers" binding:"dive"`
}

// CreateAnswerRequest describes one answer choice.
type CreateAnswerRequest struct {
	Content   string `json:"content" yaml:"content" binding:"required,min=1,max=1000"`
	IsCorrect bool   `json:"iscorrect" yaml:"iscorrect"`
}
