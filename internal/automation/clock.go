package automation

import (
	"context"
	"time"
)

// Clock abstracts time so polling loops run without wall-clock waits in tests
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall clock
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Tick runs one polling step and declares how long to sleep before the next.
// Returning stop ends the loop.
type Tick func(ctx context.Context) (sleep time.Duration, stop bool)

// Loop runs tick until it stops, ctx ends or maxTicks ticks have run
// (maxTicks <= 0 means no ceiling).
func Loop(ctx context.Context, clock Clock, maxTicks int, tick Tick) error {
	for i := 0; maxTicks <= 0 || i < maxTicks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sleep, stop := tick(ctx)
		if stop {
			return nil
		}
		if err := clock.Sleep(ctx, sleep); err != nil {
			return err
		}
	}
	return nil
}
