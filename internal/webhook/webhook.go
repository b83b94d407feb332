package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DeliveryHeader carries a unique id per POST so receivers can dedupe retries
const DeliveryHeader = "X-Delivery-ID"

// Event is the JSON body posted for every reply attempt
type Event struct {
	Type      string    `json:"type"`
	Platform  string    `json:"platform"`
	Room      string    `json:"room"`
	MessageID string    `json:"message_id"`
	AuthorID  string    `json:"author_id"`
	Trigger   string    `json:"trigger"`
	Reply     string    `json:"reply"`
	ReplyID   string    `json:"reply_id,omitempty"`
	InReplyTo string    `json:"in_reply_to,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types
const (
	EventReplySent   = "reply.sent"
	EventReplyFailed = "reply.failed"
)

// Forwarder posts reply events to an n8n (or any JSON) webhook
type Forwarder struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	newID      func() string
}

// NewForwarder creates a new forwarder
func NewForwarder(url string, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Forward posts the event and returns its delivery id
func (f *Forwarder) Forward(ctx context.Context, ev Event) (string, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	deliveryID := f.newID()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, deliveryID)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return deliveryID, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return deliveryID, fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(respBody))
	}

	f.logger.Debug("webhook delivered", "delivery_id", deliveryID, "type", ev.Type, "message_id", ev.MessageID)
	return deliveryID, nil
}
