package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// sweepLimit caps how many attempts one sweep finalizes.
const sweepLimit = 200

// Expirer finalizes attempts whose deadline passed more than grace ago.
type Expirer interface {
	ExpireAbandoned(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// ExpiryWorker periodically closes attempts a client never finalized, so an
// abandoned attempt is scored and stops accepting answers.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(expirer Expirer, interval, grace time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs batches until no expired attempt is left.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := w.expirer.ExpireAbandoned(ctx, w.grace, sweepLimit)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
			break
		}
		total += n
		if n < sweepLimit {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("expired", total).Msg("Finalized abandoned attempts")
	}
	return total
}
