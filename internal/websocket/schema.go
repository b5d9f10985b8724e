package websocket

import "github.com/stemsi/examflow/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSnapshot Event = "snapshot"
	EventAttempt  Event = "attempt"
	EventPing     Event = "ping"
	EventPong     Event = "pong"
)

// SnapshotMessage is sent once on connect with the current attempt rows.
type SnapshotMessage struct {
	Event   Event                 `json:"event"`
	TestID  int64                 `json:"testId"`
	Results []model.TestResultRow `json:"results"`
}

// AttemptMessage carries one live attempt transition. It is also the payload
// published on the test's Redis channel, so the handler forwards it as is.
type AttemptMessage struct {
	Event   Event              `json:"event"`
	Attempt model.MonitorEvent `json:"attempt"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

type PingMessage struct {
	Event Event `json:"event"`
}

// Frame is the union of every server message, for clients decoding the stream.
type Frame struct {
	Event   Event                 `json:"event"`
	TestID  int64                 `json:"testId,omitempty"`
	Results []model.TestResultRow `json:"results,omitempty"`
	Attempt *model.MonitorEvent   `json:"attempt,omitempty"`
	Error   string                `json:"error,omitempty"`
}
