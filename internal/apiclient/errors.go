package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindTransport means the request never produced a response.
	KindTransport Kind = iota + 1
	// KindHTTPStatus means the server answered with a non-2xx status.
	KindHTTPStatus
	// KindApplication means a 2xx response whose envelope status is not "OK",
	// or whose body could not be decoded.
	KindApplication
	// KindMissingContext means a required input (passcode, test id, logged-in
	// student) was absent, so no request was made.
	KindMissingContext
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindApplication:
		return "application"
	case KindMissingContext:
		return "missing_context"
	default:
		return "unknown"
	}
}

// ErrMissingContext is matched by errors.Is for every KindMissingContext error.
var ErrMissingContext = errors.New("missing session context")

// Error is returned by every Client method.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	// Message is the server-provided message, when there was one.
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.Message != "" {
			return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case KindApplication:
		if e.Message != "" {
			return fmt.Sprintf("%s: %s", e.Op, e.Message)
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMissingContext) match without wrapping the sentinel.
func (e *Error) Is(target error) bool {
	return target == ErrMissingContext && e.Kind == KindMissingContext
}

// UserMessage is the single string shown to the user for this failure.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindTransport:
		return "Could not reach the exam server. Check your connection and try again."
	case KindHTTPStatus:
		if e.Message != "" {
			return e.Message
		}
		switch e.StatusCode {
		case http.StatusUnauthorized:
			return "Your session has expired. Please log in again."
		case http.StatusForbidden:
			return "You are not allowed to do that."
		case http.StatusNotFound:
			return "Not found."
		}
		return fmt.Sprintf("The exam server returned an error (%d).", e.StatusCode)
	case KindApplication:
		if e.Message != "" {
			return e.Message
		}
		return "The exam server sent an unexpected response."
	case KindMissingContext:
		if e.Message != "" {
			return e.Message
		}
		return "Required information is missing. Please start again."
	}
	return "An unexpected error occurred."
}

// MissingContext builds a KindMissingContext error with a user-facing message.
func MissingContext(op, message string) *Error {
	return &Error{Kind: KindMissingContext, Op: op, Message: message}
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// UserMessage normalizes any error into a user-facing string. It is the one
// place component boundaries turn failures into text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return "An unexpected error occurred."
}
