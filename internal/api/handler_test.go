package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
	"github.com/devricklin/mention-dispatch/internal/metrics"
	"github.com/devricklin/mention-dispatch/internal/service"
)

// MockRoomRepo implements repo.RoomRepo for testing
type MockRoomRepo struct {
	messages  []domain.Message
	fetchErr  error
	sentText  string
	sentOpts  repo.SendOptions
	lastLimit int
}

func (m *MockRoomRepo) FetchRecent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	m.lastLimit = limit
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.messages) > limit {
		return m.messages[:limit], nil
	}
	return m.messages, nil
}

func (m *MockRoomRepo) SendMessage(ctx context.Context, roomID, text string, opts repo.SendOptions) (string, error) {
	m.sentText = text
	m.sentOpts = opts
	return "msg-42", nil
}

func (m *MockRoomRepo) SelfIdentity(ctx context.Context) (domain.Identity, error) {
	return domain.Identity{ID: "UBOT"}, nil
}

func (m *MockRoomRepo) SupportsThreads() bool { return true }

type staticStatus service.Status

func (s staticStatus) Status() service.Status { return service.Status(s) }

type MockJournalRepo struct {
	records []*repo.DispatchRecord
}

func (m *MockJournalRepo) Record(ctx context.Context, rec *repo.DispatchRecord) error { return nil }
func (m *MockJournalRepo) RecentMessageIDs(ctx context.Context, roomID string, limit int) ([]string, error) {
	return nil, nil
}
func (m *MockJournalRepo) List(ctx context.Context, roomID string, limit int) ([]*repo.DispatchRecord, error) {
	return m.records, nil
}
func (m *MockJournalRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
func (m *MockJournalRepo) Close() error { return nil }

func newTestServer(room *MockRoomRepo) *Server {
	return NewServer(room, "C123", staticStatus{Room: "C123", Persona: "Echo", SeenSize: 3, Replies: 1}, 0, nil)
}

func TestHandleStatus(t *testing.T) {
	server := newTestServer(&MockRoomRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var status service.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status.Room != "C123" || status.SeenSize != 3 || status.Replies != 1 {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestHandleStatus_SnakeCaseIdentity(t *testing.T) {
	status := staticStatus{Room: "C123", Self: domain.Identity{ID: "UBOT", DisplayName: "Echo", MentionToken: "<@UBOT>"}}
	server := NewServer(&MockRoomRepo{}, "C123", status, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var raw struct {
		Self map[string]string `json:"self"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	want := map[string]string{"id": "UBOT", "display_name": "Echo", "mention_token": "<@UBOT>"}
	for k, v := range want {
		if raw.Self[k] != v {
			t.Errorf("Expected self.%s = %q, got %q (body %s)", k, v, raw.Self[k], w.Body.String())
		}
	}
}

func TestHandleListMessages(t *testing.T) {
	room := &MockRoomRepo{messages: []domain.Message{
		{ID: "2", AuthorID: "U1", Text: "@echo hi"},
		{ID: "1", AuthorID: "U2", Text: "hello"},
	}}
	server := newTestServer(room)

	req := httptest.NewRequest(http.MethodGet, "/api/messages?limit=1", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result struct {
		Room     string    `json:"room"`
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if room.lastLimit != 1 {
		t.Errorf("Expected limit 1, got %d", room.lastLimit)
	}
	if len(result.Messages) != 1 || result.Messages[0].ID != "2" {
		t.Errorf("Unexpected messages: %+v", result.Messages)
	}
}

func TestHandleListMessages_LimitCapped(t *testing.T) {
	room := &MockRoomRepo{}
	server := newTestServer(room)

	req := httptest.NewRequest(http.MethodGet, "/api/messages?limit=5000", nil)
	server.Handler().ServeHTTP(httptest.NewRecorder(), req)

	if room.lastLimit != maxListLimit {
		t.Errorf("Expected limit capped at %d, got %d", maxListLimit, room.lastLimit)
	}
}

func TestHandleListMessages_FetchError(t *testing.T) {
	server := newTestServer(&MockRoomRepo{fetchErr: errors.New("ratelimited")})

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
}

func TestHandleSendMessage(t *testing.T) {
	room := &MockRoomRepo{}
	server := newTestServer(room)

	body, _ := json.Marshal(SendRequest{Text: "deploy done", InReplyTo: "2"})
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp SendResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ID != "msg-42" {
		t.Errorf("Expected id msg-42, got %s", resp.ID)
	}
	if room.sentText != "deploy done" || room.sentOpts.InReplyTo != "2" {
		t.Errorf("Unexpected send: %q %+v", room.sentText, room.sentOpts)
	}
}

func TestHandleSendMessage_Validation(t *testing.T) {
	server := newTestServer(&MockRoomRepo{})

	for _, body := range []string{`{"text":""}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %q, got %d", body, w.Code)
		}
	}
}

func TestHandleMessages_MethodNotAllowed(t *testing.T) {
	server := newTestServer(&MockRoomRepo{})

	req := httptest.NewRequest(http.MethodDelete, "/api/messages", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHandleDispatches(t *testing.T) {
	server := newTestServer(&MockRoomRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/dispatches", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without journal, got %d", w.Code)
	}

	server.SetJournal(&MockJournalRepo{records: []*repo.DispatchRecord{
		{MessageID: "2", ReplyID: "r1", Status: repo.DispatchStatusSent},
	}})
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var result struct {
		Dispatches []Dispatch `json:"dispatches"`
	}
	json.Unmarshal(w.Body.Bytes(), &result)
	if len(result.Dispatches) != 1 || result.Dispatches[0].Status != "sent" {
		t.Errorf("Unexpected dispatches: %+v", result.Dispatches)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := newTestServer(&MockRoomRepo{})
	server.SetMetricsHandler(metrics.New().Handler())
	handler := server.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Expected health ok, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "mention_dispatch_seen_set_size") {
		t.Error("Expected dispatch metrics in /metrics output")
	}
}
