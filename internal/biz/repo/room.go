package repo

import (
	"context"
	"errors"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
)

// ErrSendThrottled is returned by SendMessage when no send slot frees up
// before the context deadline. Nothing was posted.
var ErrSendThrottled = errors.New("send throttled")

// SendOptions controls how a message is posted
type SendOptions struct {
	InReplyTo string // Thread parent message id, ignored by rooms without threads
}

// RoomRepo is the chat room interface
// Responsible for reading recent messages and posting replies
type RoomRepo interface {
	// FetchRecent gets the most recent messages, newest first
	FetchRecent(ctx context.Context, roomID string, limit int) ([]domain.Message, error)

	// SendMessage posts text to the room and returns the new message id
	SendMessage(ctx context.Context, roomID, text string, opts SendOptions) (string, error)

	// SelfIdentity gets the bot's own identity
	SelfIdentity(ctx context.Context) (domain.Identity, error)

	// SupportsThreads reports whether SendOptions.InReplyTo is honored
	SupportsThreads() bool
}

// SinceFetcher is implemented by rooms that can page forward from a known id.
// Messages are returned newest first, capped at max.
type SinceFetcher interface {
	FetchSince(ctx context.Context, roomID, afterID string, max int) ([]domain.Message, error)
}

// RoomResolver is implemented by rooms that can look up a room id by name
type RoomResolver interface {
	ResolveRoom(ctx context.Context, nameOrID string) (string, error)
}
