package data

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

// rateLimitedRoom throttles outbound messages of a room.
// A burst of triggers in one tick is spread out instead of hitting the
// platform's posting limits.
type rateLimitedRoom struct {
	repo.RoomRepo
	limiter *rate.Limiter
}

// rateLimitedSinceRoom keeps FetchSince visible through the wrapper
type rateLimitedSinceRoom struct {
	*rateLimitedRoom
	since repo.SinceFetcher
}

// NewRateLimitedRoom wraps room so SendMessage waits for the limiter.
// perSecond <= 0 returns room unchanged.
func NewRateLimitedRoom(room repo.RoomRepo, perSecond float64) repo.RoomRepo {
	if perSecond <= 0 {
		return room
	}
	limited := &rateLimitedRoom{
		RoomRepo: room,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}
	if since, ok := room.(repo.SinceFetcher); ok {
		return &rateLimitedSinceRoom{rateLimitedRoom: limited, since: since}
	}
	return limited
}

// SendMessage waits for a send slot, then posts.
// When the slot would come after the ctx deadline it returns
// repo.ErrSendThrottled without waiting.
func (r *rateLimitedRoom) SendMessage(ctx context.Context, roomID, text string, opts repo.SendOptions) (string, error) {
	res := r.limiter.Reserve()
	delay := res.Delay()
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		res.Cancel()
		return "", fmt.Errorf("next slot in %s: %w", delay.Round(time.Millisecond), repo.ErrSendThrottled)
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			res.Cancel()
			return "", fmt.Errorf("send rate limit: %w", ctx.Err())
		}
	}
	return r.RoomRepo.SendMessage(ctx, roomID, text, opts)
}

func (r *rateLimitedSinceRoom) FetchSince(ctx context.Context, roomID, afterID string, max int) ([]domain.Message, error) {
	return r.since.FetchSince(ctx, roomID, afterID, max)
}
