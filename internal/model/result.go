package model

import "time"

// ResultRecord is one student's attempt at one test.
type ResultRecord struct {
	ID         int64      `json:"id"`
	StudentID  int64      `json:"studentid"`
	TestID     int64      `json:"testid"`
	StartTime  time.Time  `json:"starttime"`
	EndTime    *time.Time `json:"endtime"`
	TotalScore *float64   `json:"totalscore"`
}

// Open reports whether the attempt has not been finalized.
func (r ResultRecord) Open() bool {
	return r.EndTime == nil
}

// OpenResultRequest begins an attempt.
type OpenResultRequest struct {
	TestID    int64     `json:"testId" binding:"required,min=1"`
	StartTime time.Time `json:"startTime" binding:"required"`
}

// FinalizeResultRequest closes an attempt.
type FinalizeResultRequest struct {
	TestID  int64     `json:"testId" binding:"required,min=1"`
	EndTime time.Time `json:"endTime" binding:"required"`
}

// TextAnswerRequest records a free-text response.
type TextAnswerRequest struct {
	QuestionID int64  `json:"questionId" binding:"required,min=1"`
	Answer     string `json:"answer" binding:"max=10000"`
}

// ResultSummary is the attempt part of ResultDetail.
type ResultSummary struct {
	TotalScore *float64   `json:"totalscore"`
	StartTime  time.Time  `json:"starttime"`
	EndTime    *time.Time `json:"endtime"`
}

// ResultQuestion is a question joined with the student's response and its correctness.
type ResultQuestion struct {
	ID            int64          `json:"id"`
	Content       string         `json:"content"`
	Score         float64        `json:"score"`
	Kind          QuestionKind   `json:"type"`
	AnswerID      *int64         `json:"answerid"`
	AnswerContent string         `json:"answercontent,omitempty"`
	IsCorrect     bool           `json:"iscorrect"`
	Answers       []ScoredAnswer `json:"answers"`
}

// ResultDetail is the denormalized post-submission view of an attempt.
type ResultDetail struct {
	Title     string           `json:"title"`
	Result    ResultSummary    `json:"result"`
	Questions []ResultQuestion `json:"questions"`
}

// PastResult is one row of a student's result history.
type PastResult struct {
	TestID     int64      `json:"testid"`
	Title      string     `json:"title"`
	TotalScore *float64   `json:"totalscore"`
	StartTime  time.Time  `json:"starttime"`
	EndTime    *time.Time `json:"endtime"`
}

// TestResultRow is one row of a teacher's per-test result listing.
type TestResultRow struct {
	StudentID  int64      `json:"studentid"`
	Username   string     `json:"username"`
	TotalScore *float64   `json:"totalscore"`
	StartTime  time.Time  `json:"starttime"`
	EndTime    *time.Time `json:"endtime"`
}
