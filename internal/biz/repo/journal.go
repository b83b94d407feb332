package repo

import (
	"context"
	"time"
)

// DispatchStatus is the outcome of one dispatch attempt
type DispatchStatus string

const (
	DispatchStatusSent   DispatchStatus = "sent"
	DispatchStatusFailed DispatchStatus = "failed"
)

// DispatchRecord is one journaled reply attempt
type DispatchRecord struct {
	RoomID    string
	MessageID string
	ReplyID   string
	ReplyText string
	Status    DispatchStatus
	Error     string
	CreatedAt time.Time
}

// JournalRepo is the dispatch journal interface
// Responsible for dispatch persistence (SQLite)
type JournalRepo interface {
	// Record saves a dispatch attempt
	Record(ctx context.Context, rec *DispatchRecord) error

	// RecentMessageIDs lists the newest journaled message ids of a room, oldest first
	RecentMessageIDs(ctx context.Context, roomID string, limit int) ([]string, error)

	// List lists the newest dispatch records of a room
	List(ctx context.Context, roomID string, limit int) ([]*DispatchRecord, error)

	// CleanupOld deletes records created before the given time
	CleanupOld(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
