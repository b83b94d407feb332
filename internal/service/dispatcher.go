package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
	"github.com/devricklin/mention-dispatch/internal/biz/usecase"
	"github.com/devricklin/mention-dispatch/internal/metrics"
	"github.com/devricklin/mention-dispatch/internal/webhook"
)

// Fetch backoff parameters
const (
	BackoffInitial    = 2 * time.Second
	BackoffMultiplier = 2
	BackoffMax        = 60 * time.Second
)

// cleanupInterval is how often old journal records are pruned
const cleanupInterval = 6 * time.Hour

// ErrBackingOff is returned by Tick while waiting out a fetch backoff
var ErrBackingOff = errors.New("dispatch tick skipped: backing off after fetch failure")

// DispatcherConfig contains dispatcher configuration
type DispatcherConfig struct {
	Platform        string
	Room            string
	Persona         string
	Generative      bool
	PollInterval    time.Duration
	FreshnessWindow time.Duration
	TickTimeout     time.Duration
	Retention       time.Duration // Journal retention, 0 keeps everything
}

// Status is a snapshot of the dispatch loop, safe to read from other goroutines
type Status struct {
	Platform      string          `json:"platform"`
	Room          string          `json:"room"`
	Persona       string          `json:"persona"`
	Generative    bool            `json:"generative"`
	Self          domain.Identity `json:"self"`
	SeenSize      int             `json:"seen_size"`
	Ticks         int64           `json:"ticks"`
	Replies       int64           `json:"replies"`
	SendFailures  int64           `json:"send_failures"`
	FetchFailures int64           `json:"fetch_failures"`
	BackoffSkips  int64           `json:"backoff_skips"`
	LastTickAt    time.Time       `json:"last_tick_at"`
	LastError     string          `json:"last_error,omitempty"`
	BackoffUntil  time.Time       `json:"backoff_until,omitempty"`
}

// Dispatcher drives the dispatch usecase on a schedule
type Dispatcher struct {
	uc        *usecase.DispatchUsecase
	config    DispatcherConfig
	metrics   *metrics.Metrics
	forwarder *webhook.Forwarder
	journal   repo.JournalRepo
	logger    *slog.Logger
	now       func() time.Time

	backoff      *backoff.ExponentialBackOff
	backoffUntil time.Time

	mu     sync.RWMutex
	status Status
}

// NewDispatcher creates a new dispatcher. m may be nil.
func NewDispatcher(
	uc *usecase.DispatchUsecase,
	config DispatcherConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = BackoffInitial
	b.Multiplier = BackoffMultiplier
	b.MaxInterval = BackoffMax
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // Keep retrying forever
	b.Reset()

	d := &Dispatcher{
		uc:      uc,
		config:  config,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		backoff: b,
		status: Status{
			Platform:   config.Platform,
			Room:       config.Room,
			Persona:    config.Persona,
			Generative: config.Generative,
		},
	}
	uc.OnReply(d.handleReply)
	return d
}

// SetForwarder enables the reply webhook (optional)
func (d *Dispatcher) SetForwarder(f *webhook.Forwarder) {
	d.forwarder = f
}

// SetJournal enables journal retention cleanup (optional)
func (d *Dispatcher) SetJournal(j repo.JournalRepo) {
	d.journal = j
}

// SetClock replaces the time source used for backoff deadlines
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Start initializes the usecase and publishes the bot identity
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.uc.Init(ctx, d.config.Room); err != nil {
		return err
	}
	d.mu.Lock()
	d.status.Self = d.uc.Self()
	d.status.SeenSize = d.uc.SeenLen()
	d.mu.Unlock()
	return nil
}

// Run ticks on the scheduler and prunes the journal until ctx is done
func (d *Dispatcher) Run(ctx context.Context, sched Scheduler) {
	if d.journal != nil && d.config.Retention > 0 {
		go sched.Every(ctx, cleanupInterval, d.Cleanup)
	}

	d.logger.Info("dispatch loop started",
		"room", d.config.Room,
		"interval", d.config.PollInterval,
		"freshness", d.config.FreshnessWindow,
	)
	sched.Every(ctx, d.config.PollInterval, func(ctx context.Context) {
		d.Tick(ctx)
	})
	d.logger.Info("dispatch loop stopped")
}

// Tick runs one poll under the per-tick timeout.
// Consecutive fetch failures back off exponentially; ticks inside the
// backoff window return ErrBackingOff without touching the room.
func (d *Dispatcher) Tick(ctx context.Context) (*usecase.TickResult, error) {
	now := d.now()
	if now.Before(d.backoffUntil) {
		d.countTick(metrics.TickBackoff)
		d.publishSkipped(now)
		return nil, ErrBackingOff
	}

	tickCtx, cancel := context.WithTimeout(ctx, d.config.TickTimeout)
	defer cancel()

	start := time.Now()
	result, err := d.uc.PollOnce(tickCtx, d.config.Room, d.config.FreshnessWindow)
	if d.metrics != nil {
		d.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}

	var fetchErr *usecase.FetchError
	if errors.As(err, &fetchErr) {
		wait := d.backoff.NextBackOff()
		d.backoffUntil = now.Add(wait)
		d.logger.Warn("fetch failed, backing off", "room", d.config.Room, "retry_in", wait, "error", err)
		d.countTick(metrics.TickFetchError)
		d.publish(now, nil, err, true)
		return nil, err
	}

	d.backoff.Reset()
	d.backoffUntil = time.Time{}

	outcome := metrics.TickOK
	switch {
	case errors.Is(err, repo.ErrSendThrottled):
		outcome = metrics.TickThrottled
		d.logger.Warn("tick stopped by send throttling", "room", d.config.Room, "error", err)
	case err != nil:
		outcome = metrics.TickInterrupted
		d.logger.Warn("tick interrupted", "room", d.config.Room, "error", err)
	}
	d.countTick(outcome)
	d.countResult(result)
	d.publish(now, result, err, false)

	if result != nil {
		level := slog.LevelDebug
		if len(result.Dispatches) > 0 {
			level = slog.LevelInfo
		}
		d.logger.Log(ctx, level, "tick complete",
			"fetched", result.Fetched,
			"replied", result.Replied(),
			"send_failures", result.SendFailures(),
			"stale", result.Stale,
			"seen", d.uc.SeenLen(),
		)
	}
	return result, err
}

// Cleanup deletes journal records older than the retention window
func (d *Dispatcher) Cleanup(ctx context.Context) {
	if d.journal == nil || d.config.Retention <= 0 {
		return
	}
	count, err := d.journal.CleanupOld(ctx, d.now().Add(-d.config.Retention))
	if err != nil {
		d.logger.Warn("journal cleanup failed", "error", err)
		return
	}
	if count > 0 {
		d.logger.Info("journal cleaned up", "deleted", count)
	}
}

// Status returns the latest snapshot
func (d *Dispatcher) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Dispatcher) publish(at time.Time, result *usecase.TickResult, err error, fetchFailed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status.Ticks++
	d.status.LastTickAt = at
	d.status.SeenSize = d.uc.SeenLen()
	d.status.BackoffUntil = d.backoffUntil
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
	}
	if fetchFailed {
		d.status.FetchFailures++
	}
	if result != nil {
		d.status.Replies += int64(result.Replied())
		d.status.SendFailures += int64(result.SendFailures())
	}
}

// publishSkipped records a tick skipped during backoff.
// The last error stays the fetch failure that caused the backoff.
func (d *Dispatcher) publishSkipped(at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.status.Ticks++
	d.status.BackoffSkips++
	d.status.LastTickAt = at
}

func (d *Dispatcher) countTick(outcome string) {
	if d.metrics != nil {
		d.metrics.Ticks.WithLabelValues(outcome).Inc()
	}
}

func (d *Dispatcher) countResult(result *usecase.TickResult) {
	if d.metrics == nil || result == nil {
		return
	}
	d.metrics.Skipped.WithLabelValues("self").Add(float64(result.SelfSkipped))
	d.metrics.Skipped.WithLabelValues("seen").Add(float64(result.AlreadySeen))
	d.metrics.Skipped.WithLabelValues("stale").Add(float64(result.Stale))
	d.metrics.Skipped.WithLabelValues("not_triggered").Add(float64(result.NotTriggered))
	d.metrics.SeenSize.Set(float64(d.uc.SeenLen()))
}

// handleReply counts the attempt and forwards it to the webhook
func (d *Dispatcher) handleReply(ctx context.Context, r usecase.Dispatch) {
	status := string(repo.DispatchStatusSent)
	evType := webhook.EventReplySent
	errText := ""
	if r.Err != nil {
		status = string(repo.DispatchStatusFailed)
		evType = webhook.EventReplyFailed
		errText = r.Err.Error()
	}
	if d.metrics != nil {
		d.metrics.Replies.WithLabelValues(status).Inc()
	}

	if d.forwarder == nil {
		return
	}
	// Detached from the tick deadline
	fwdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := d.forwarder.Forward(fwdCtx, webhook.Event{
		Type:      evType,
		Platform:  d.config.Platform,
		Room:      r.RoomID,
		MessageID: r.MessageID,
		AuthorID:  r.AuthorID,
		Trigger:   r.Trigger,
		Reply:     r.Reply.Text,
		ReplyID:   r.ReplyID,
		InReplyTo: r.Reply.InReplyTo,
		Error:     errText,
		Timestamp: d.now(),
	})
	if err != nil {
		d.logger.Warn("webhook forward failed", "message_id", r.MessageID, "error", err)
		if d.metrics != nil {
			d.metrics.WebhookFailures.Inc()
		}
	}
}
