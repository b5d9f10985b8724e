package anchor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stemsi/examflow/internal/model"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	st := NewMemoryStore(time.Minute, func() time.Time { return now })

	if _, err := st.Load(ctx, 1, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	start := now
	s := model.TestSession{TestID: 42, StudentID: 1, Passcode: "MATH123", StartTime: start, EndTime: start.Add(2 * time.Minute)}
	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(ctx, 1, 42)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.EndTime.Equal(s.EndTime) || got.Passcode != "MATH123" {
		t.Fatalf("Load = %+v", got)
	}

	if _, err := st.Load(ctx, 2, 42); !errors.Is(err, ErrNotFound) {
		t.Fatal("anchors must be keyed by student as well as test")
	}

	if err := st.Delete(ctx, 1, 42); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Load(ctx, 1, 42); !errors.Is(err, ErrNotFound) {
		t.Fatal("anchor survived Delete")
	}
}

func TestMemoryStoreExpiresAfterGrace(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start
	st := NewMemoryStore(time.Minute, func() time.Time { return now })

	s := model.TestSession{TestID: 42, StudentID: 1, StartTime: start, EndTime: start.Add(2 * time.Minute)}
	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	tests := []struct {
		name  string
		at    time.Time
		found bool
	}{
		{"running", start.Add(time.Minute), true},
		{"past end within grace", start.Add(150 * time.Second), true},
		{"at end plus grace", start.Add(3 * time.Minute), true},
		{"after grace", start.Add(3*time.Minute + time.Second), false},
		{"stays gone", start.Add(time.Minute), false},
	}
	for _, tt := range tests {
		now = tt.at
		_, err := st.Load(ctx, 1, 42)
		if tt.found && err != nil {
			t.Errorf("%s: Load = %v, want anchor", tt.name, err)
		}
		if !tt.found && !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: Load = %v, want ErrNotFound", tt.name, err)
		}
	}
}
