package attempt

import (
	"context"
	"time"
)

// DefaultTick is the display refresh interval.
const DefaultTick = time.Second

// Countdown reports the time left until end. Every reading is recomputed from
// the clock, so a suspended process shows the correct value on its next tick.
type Countdown struct {
	clock Clock
	end   time.Time
	tick  time.Duration
}

func NewCountdown(clock Clock, end time.Time, tick time.Duration) *Countdown {
	if clock == nil {
		clock = SystemClock
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Countdown{clock: clock, end: end, tick: tick}
}

// Remaining returns max(0, end - now).
func (c *Countdown) Remaining() time.Duration {
	left := c.end.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Run calls onTick with the time left, once immediately and then every tick,
// until the time left reaches zero (returns true), stop is closed or ctx ends
// (returns false).
func (c *Countdown) Run(ctx context.Context, stop <-chan struct{}, onTick func(time.Duration)) bool {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		left := c.Remaining()
		if onTick != nil {
			onTick(left)
		}
		if left <= 0 {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		case <-ticker.C:
		}
	}
}
