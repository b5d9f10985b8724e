package model

import "time"

// MonitorEventType enumerates live attempt events.
type MonitorEventType string

const (
	EventStarted   MonitorEventType = "started"
	EventAnswered  MonitorEventType = "answered"
	EventSubmitted MonitorEventType = "submitted"
	EventExpired   MonitorEventType = "expired"
)

// MonitorEvent is published for every attempt transition a teacher can watch.
type MonitorEvent struct {
	Type       MonitorEventType `json:"type"`
	TestID     int64            `json:"testId"`
	StudentID  int64            `json:"studentId"`
	QuestionID int64            `json:"questionId,omitempty"`
	TotalScore *float64         `json:"totalscore,omitempty"`
	At         time.Time        `json:"at"`
}
