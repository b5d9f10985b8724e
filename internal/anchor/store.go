// Package anchor persists the (testId, passcode, startTime, endTime) anchor of
// a running attempt so a restarted client resumes the same countdown.
package anchor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stemsi/examflow/internal/model"
)

// ErrNotFound is returned by Load when no anchor exists for the pair.
var ErrNotFound = errors.New("anchor not found")

// Store keeps session anchors keyed by (studentId, testId).
type Store interface {
	Load(ctx context.Context, studentID, testID int64) (*model.TestSession, error)
	Save(ctx context.Context, s model.TestSession) error
	Delete(ctx context.Context, studentID, testID int64) error
}

type key struct {
	student int64
	test    int64
}

// MemoryStore is a process-local Store. Like RedisStore, an anchor is kept
// until grace after the session's end time and then reads as ErrNotFound.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[key]model.TestSession
	grace    time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore. now may be nil for the wall clock.
func NewMemoryStore(grace time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{sessions: make(map[key]model.TestSession), grace: grace, now: now}
}

func (m *MemoryStore) Load(_ context.Context, studentID, testID int64) (*model.TestSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{studentID, testID}
	s, ok := m.sessions[k]
	if !ok {
		return nil, ErrNotFound
	}
	if m.now().After(s.EndTime.Add(m.grace)) {
		delete(m.sessions, k)
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s model.TestSession) error {
	m.mu.Lock()
	m.sessions[key{s.StudentID, s.TestID}] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, studentID, testID int64) error {
	m.mu.Lock()
	delete(m.sessions, key{studentID, testID})
	m.mu.Unlock()
	return nil
}
