package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

// Mock implementations

type sentMessage struct {
	roomID string
	text   string
	opts   repo.SendOptions
}

type mockRoomRepo struct {
	self     domain.Identity
	history  []domain.Message // newest first
	fetchErr error
	sendErr  error
	threads  bool

	mu      sync.Mutex
	sent    []sentMessage
	fetches int
}

func (m *mockRoomRepo) FetchRecent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.history) > limit {
		return m.history[:limit], nil
	}
	return m.history, nil
}

func (m *mockRoomRepo) SendMessage(ctx context.Context, roomID, text string, opts repo.SendOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, sentMessage{roomID: roomID, text: text, opts: opts})
	return fmt.Sprintf("reply-%d", len(m.sent)), nil
}

func (m *mockRoomRepo) SelfIdentity(ctx context.Context) (domain.Identity, error) {
	return m.self, nil
}

func (m *mockRoomRepo) SupportsThreads() bool {
	return m.threads
}

// mockSinceRoom also pages forward from a known id
type mockSinceRoom struct {
	mockRoomRepo
	sinceCalls []string
}

func (m *mockSinceRoom) FetchSince(ctx context.Context, roomID, afterID string, max int) ([]domain.Message, error) {
	m.sinceCalls = append(m.sinceCalls, afterID)
	var out []domain.Message
	for _, msg := range m.history {
		if msg.ID == afterID {
			break
		}
		out = append(out, msg)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

type echoGenerator struct {
	calls []string
}

func (g *echoGenerator) Generate(ctx context.Context, triggerText string) string {
	g.calls = append(g.calls, triggerText)
	return "re: " + triggerText
}

type mockCompletionRepo struct {
	reply  string
	err    error
	system string
	user   string
}

func (m *mockCompletionRepo) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	m.system = systemPrompt
	m.user = userMessage
	return m.reply, m.err
}

// hangingCompletion blocks until its context is done
type hangingCompletion struct{}

func (hangingCompletion) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// throttledRoom refuses sends once its budget is spent, like a rate
// limiter whose next slot lies past the deadline
type throttledRoom struct {
	*mockRoomRepo
	budget int
}

func (r *throttledRoom) SendMessage(ctx context.Context, roomID, text string, opts repo.SendOptions) (string, error) {
	if r.budget <= 0 {
		return "", fmt.Errorf("next slot in 1s: %w", repo.ErrSendThrottled)
	}
	r.budget--
	return r.mockRoomRepo.SendMessage(ctx, roomID, text, opts)
}

type mockJournalRepo struct {
	records []*repo.DispatchRecord
	ids     []string
}

func (m *mockJournalRepo) Record(ctx context.Context, rec *repo.DispatchRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *mockJournalRepo) RecentMessageIDs(ctx context.Context, roomID string, limit int) ([]string, error) {
	return m.ids, nil
}

func (m *mockJournalRepo) List(ctx context.Context, roomID string, limit int) ([]*repo.DispatchRecord, error) {
	return m.records, nil
}

func (m *mockJournalRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockJournalRepo) Close() error {
	return nil
}

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newestFirst reverses chronological messages into API order
func newestFirst(msgs ...domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
