package service

import (
	"context"
	"time"
)

// Scheduler runs fn repeatedly until ctx is done
type Scheduler interface {
	Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context))
}

// TickerScheduler runs fn inline on a time.Ticker, so runs never overlap.
// Ticks that arrive while fn is busy are dropped by the ticker.
type TickerScheduler struct {
	// Immediate runs fn once before the first tick
	Immediate bool
}

// Every blocks until ctx is cancelled
func (s TickerScheduler) Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if s.Immediate {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
