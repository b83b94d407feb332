package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

const (
	DefaultFetchLimit      = 10
	DefaultFetchMax        = 100
	DefaultFreshnessWindow = 5 * time.Minute
	DefaultSendTimeout     = 10 * time.Second
)

// ErrNotInitialized is returned by PollOnce before Init succeeded
var ErrNotInitialized = errors.New("dispatch usecase not initialized")

// FetchError is returned when recent messages could not be fetched.
// Nothing is marked seen when it occurs.
type FetchError struct {
	RoomID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch messages from %s: %v", e.RoomID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DispatchConfig contains dispatch loop configuration
type DispatchConfig struct {
	FetchLimit  int           // Messages per fetch when no last-seen id is known
	FetchMax    int           // Cap for paging forward from the last-seen id
	Handles     []string      // Case-insensitive trigger handles, e.g. "@echo"
	PersistSeen bool          // Warm the seen set from the journal on Init
	SendTimeout time.Duration // Bound for one reply send, outliving the tick deadline
}

// Dispatch is the outcome of replying to one triggering message
type Dispatch struct {
	RoomID    string
	MessageID string
	AuthorID  string
	Trigger   string // Request text with mention tokens stripped
	Reply     domain.Reply
	ReplyID   string
	Err       error
}

// TickResult summarizes one PollOnce call
type TickResult struct {
	Fetched      int
	SelfSkipped  int
	AlreadySeen  int
	Stale        int
	NotTriggered int
	Dispatches   []Dispatch
}

// Replied returns the number of replies delivered
func (r *TickResult) Replied() int {
	n := 0
	for _, d := range r.Dispatches {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// SendFailures returns the number of replies that could not be delivered
func (r *TickResult) SendFailures() int {
	return len(r.Dispatches) - r.Replied()
}

// DispatchUsecase detects directed mentions in a room and replies to them
// at most once per message id. Not safe for concurrent use: ticks must not
// overlap.
type DispatchUsecase struct {
	room      repo.RoomRepo
	generator ReplyGenerator
	journal   repo.JournalRepo
	seen      *domain.SeenSet
	config    DispatchConfig
	logger    *slog.Logger
	now       func() time.Time
	onReply   func(ctx context.Context, d Dispatch)

	self       domain.Identity
	trigger    *domain.Trigger
	lastSeenID map[string]string
	ready      bool
}

// NewDispatchUsecase creates a new dispatch usecase
func NewDispatchUsecase(
	room repo.RoomRepo,
	generator ReplyGenerator,
	seen *domain.SeenSet,
	config DispatchConfig,
	logger *slog.Logger,
) *DispatchUsecase {
	if seen == nil {
		seen = domain.NewSeenSet(domain.DefaultSeenCapacity)
	}
	if config.FetchLimit <= 0 {
		config.FetchLimit = DefaultFetchLimit
	}
	if config.FetchMax < config.FetchLimit {
		config.FetchMax = DefaultFetchMax
		if config.FetchMax < config.FetchLimit {
			config.FetchMax = config.FetchLimit
		}
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchUsecase{
		room:       room,
		generator:  generator,
		seen:       seen,
		config:     config,
		logger:     logger,
		now:        time.Now,
		lastSeenID: make(map[string]string),
	}
}

// SetJournal enables the dispatch journal (optional)
func (uc *DispatchUsecase) SetJournal(j repo.JournalRepo) {
	uc.journal = j
}

// SetClock replaces the time source
func (uc *DispatchUsecase) SetClock(now func() time.Time) {
	uc.now = now
}

// OnReply sets a callback invoked after every reply attempt
func (uc *DispatchUsecase) OnReply(fn func(ctx context.Context, d Dispatch)) {
	uc.onReply = fn
}

// Init fetches the bot identity once and prepares the trigger
func (uc *DispatchUsecase) Init(ctx context.Context, roomID string) error {
	self, err := uc.room.SelfIdentity(ctx)
	if err != nil {
		return fmt.Errorf("get self identity: %w", err)
	}
	uc.self = self
	uc.trigger = domain.NewTrigger(self, uc.config.Handles)
	uc.ready = true

	uc.logger.Info("dispatch initialized",
		"self", self.FormatDisplay(),
		"triggers", uc.trigger.Tokens(),
	)

	if uc.config.PersistSeen && uc.journal != nil {
		ids, err := uc.journal.RecentMessageIDs(ctx, roomID, uc.seen.Capacity())
		if err != nil {
			uc.logger.Warn("failed to warm seen set from journal", "error", err)
			return nil
		}
		for _, id := range ids {
			uc.seen.Add(id)
		}
		uc.logger.Info("seen set warmed from journal", "ids", len(ids))
	}
	return nil
}

// Self returns the identity resolved by Init
func (uc *DispatchUsecase) Self() domain.Identity {
	return uc.self
}

// SeenLen returns the current size of the seen set
func (uc *DispatchUsecase) SeenLen() int {
	return uc.seen.Len()
}

// PollOnce runs one dispatch tick against a room.
// Messages older than freshness are marked seen without a reply.
func (uc *DispatchUsecase) PollOnce(ctx context.Context, roomID string, freshness time.Duration) (*TickResult, error) {
	if !uc.ready {
		return nil, ErrNotInitialized
	}

	msgs, err := uc.fetch(ctx, roomID)
	if err != nil {
		return nil, &FetchError{RoomID: roomID, Err: err}
	}

	result := &TickResult{Fetched: len(msgs)}
	ordered := chronological(msgs)
	now := uc.now()

	for i := range ordered {
		msg := &ordered[i]

		if msg.IsFromSelf(uc.self) {
			uc.seen.Add(msg.ID)
			result.SelfSkipped++
			continue
		}
		if uc.seen.Contains(msg.ID) {
			result.AlreadySeen++
			continue
		}
		if msg.IsStale(now, freshness) {
			uc.seen.Add(msg.ID)
			result.Stale++
			continue
		}
		if !uc.trigger.Match(msg.Text) {
			uc.seen.Add(msg.ID)
			result.NotTriggered++
			continue
		}

		// Tick deadline hit: leave the rest unseen for the next tick
		if err := ctx.Err(); err != nil {
			uc.trackLastSeen(roomID, ordered[:i])
			return result, err
		}

		d := uc.dispatch(ctx, roomID, msg)
		if errors.Is(d.Err, repo.ErrSendThrottled) {
			// Nothing was posted: retry this one and the rest next tick
			uc.trackLastSeen(roomID, ordered[:i])
			return result, d.Err
		}
		uc.seen.Add(msg.ID)
		result.Dispatches = append(result.Dispatches, d)
	}

	uc.seen.Trim()
	uc.trackLastSeen(roomID, ordered)
	return result, nil
}

// fetch pages forward from the last seen id when the room supports it
func (uc *DispatchUsecase) fetch(ctx context.Context, roomID string) ([]domain.Message, error) {
	if since, ok := uc.room.(repo.SinceFetcher); ok {
		if after := uc.lastSeenID[roomID]; after != "" {
			return since.FetchSince(ctx, roomID, after, uc.config.FetchMax)
		}
	}
	return uc.room.FetchRecent(ctx, roomID, uc.config.FetchLimit)
}

func (uc *DispatchUsecase) trackLastSeen(roomID string, processed []domain.Message) {
	if len(processed) == 0 {
		return
	}
	uc.lastSeenID[roomID] = processed[len(processed)-1].ID
}

// dispatch generates and sends the reply for one triggering message
func (uc *DispatchUsecase) dispatch(ctx context.Context, roomID string, msg *domain.Message) Dispatch {
	d := Dispatch{
		RoomID:    roomID,
		MessageID: msg.ID,
		AuthorID:  msg.AuthorID,
		Trigger:   uc.trigger.Strip(msg.Text),
	}

	d.Reply.Text = uc.generator.Generate(ctx, d.Trigger)
	if uc.room.SupportsThreads() {
		d.Reply.InReplyTo = msg.ID
	}

	// A reply that was generated gets sent even if the tick deadline passed meanwhile
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.config.SendTimeout)
	defer cancel()

	d.ReplyID, d.Err = uc.room.SendMessage(sendCtx, roomID, d.Reply.Text, repo.SendOptions{
		InReplyTo: d.Reply.InReplyTo,
	})
	if errors.Is(d.Err, repo.ErrSendThrottled) {
		uc.logger.Warn("reply throttled, deferring to next tick", "room", roomID, "message_id", msg.ID)
		return d
	}
	if d.Err != nil {
		// Still marked seen by the caller: never double-reply
		uc.logger.Error("failed to send reply", "room", roomID, "message_id", msg.ID, "error", d.Err)
	} else {
		uc.logger.Info("reply sent", "room", roomID, "message_id", msg.ID, "reply_id", d.ReplyID)
	}

	uc.record(ctx, &d)
	if uc.onReply != nil {
		uc.onReply(ctx, d)
	}
	return d
}

func (uc *DispatchUsecase) record(ctx context.Context, d *Dispatch) {
	if uc.journal == nil {
		return
	}
	rec := &repo.DispatchRecord{
		RoomID:    d.RoomID,
		MessageID: d.MessageID,
		ReplyID:   d.ReplyID,
		ReplyText: d.Reply.Text,
		Status:    repo.DispatchStatusSent,
		CreatedAt: uc.now(),
	}
	if d.Err != nil {
		rec.Status = repo.DispatchStatusFailed
		rec.Error = d.Err.Error()
	}
	// A cancelled tick context must not lose the record
	if err := uc.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		uc.logger.Warn("failed to journal dispatch", "message_id", d.MessageID, "error", err)
	}
}

// chronological returns msgs oldest first.
// Input is newest first; equal timestamps keep their reversed order.
func chronological(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
