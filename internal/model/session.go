package model

import "time"

// TestSession is the client-side anchor of a running attempt.
type TestSession struct {
	TestID        int64     `json:"testId"`
	StudentID     int64     `json:"studentId"`
	Title         string    `json:"title"`
	Passcode      string    `json:"passcode"`
	QuestionCount int       `json:"numberOfQuestion"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
}

// Duration returns the full length of the session.
func (s TestSession) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Remaining returns max(0, end - now).
func (s TestSession) Remaining(now time.Time) time.Duration {
	left := s.EndTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
