package domain

import "time"

// Message represents a chat message fetched from a room
type Message struct {
	ID        string // Remote id, sortable, used as the dedup key
	RoomID    string
	AuthorID  string
	Text      string
	Timestamp time.Time
}

// IsFromSelf checks if the message was authored by the bot itself
func (m *Message) IsFromSelf(self Identity) bool {
	return self.ID != "" && m.AuthorID == self.ID
}

// IsStale checks if the message is older than the freshness window at now
func (m *Message) IsStale(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return m.Timestamp.Before(now.Add(-window))
}

// Reply represents an outbound message produced for a detected trigger
type Reply struct {
	Text      string
	InReplyTo string // Triggering message id, empty if the room has no threads
}
