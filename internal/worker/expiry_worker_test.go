package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type batchExpirer struct {
	batches []int
	calls   int
	grace   time.Duration
	err     error
}

func (e *batchExpirer) ExpireAbandoned(_ context.Context, grace time.Duration, limit int) (int, error) {
	e.grace = grace
	if e.err != nil {
		return 0, e.err
	}
	if e.calls >= len(e.batches) {
		return 0, nil
	}
	n := e.batches[e.calls]
	e.calls++
	if n > limit {
		n = limit
	}
	return n, nil
}

func TestExpiryWorker_Sweep(t *testing.T) {
	tests := []struct {
		name      string
		batches   []int
		err       error
		wantTotal int
		wantCalls int
	}{
		{name: "nothing expired", batches: nil, wantTotal: 0, wantCalls: 0},
		{name: "single partial batch", batches: []int{3}, wantTotal: 3, wantCalls: 1},
		{name: "full batch then remainder", batches: []int{sweepLimit, 5}, wantTotal: sweepLimit + 5, wantCalls: 2},
		{name: "store error stops the sweep", err: errors.New("db down"), wantTotal: 0, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &batchExpirer{batches: tt.batches, err: tt.err}
			w := NewExpiryWorker(e, time.Minute, 90*time.Second, zerolog.Nop())

			if got := w.Sweep(context.Background()); got != tt.wantTotal {
				t.Fatalf("Sweep() = %d, want %d", got, tt.wantTotal)
			}
			if e.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", e.calls, tt.wantCalls)
			}
			if e.grace != 90*time.Second {
				t.Fatalf("grace = %v, want 90s", e.grace)
			}
		})
	}
}

func TestExpiryWorker_StartStopsOnCancel(t *testing.T) {
	w := NewExpiryWorker(&batchExpirer{}, time.Millisecond, time.Second, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
