package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
	"github.com/devricklin/mention-dispatch/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// StatusProvider exposes the dispatch loop snapshot
type StatusProvider interface {
	Status() service.Status
}

// Server provides the local HTTP API used by dispatch-mcp and operators
type Server struct {
	room    repo.RoomRepo
	roomID  string
	status  StatusProvider
	journal repo.JournalRepo
	metrics http.Handler
	logger  *slog.Logger

	server *http.Server
	port   int
}

// Message is a room message as returned by the API
type Message struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SendRequest is the body of POST /api/messages
type SendRequest struct {
	Text      string `json:"text"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// SendResponse is the reply of POST /api/messages
type SendResponse struct {
	ID string `json:"id"`
}

// Dispatch is a journaled reply attempt as returned by the API
type Dispatch struct {
	MessageID string    `json:"message_id"`
	ReplyID   string    `json:"reply_id,omitempty"`
	ReplyText string    `json:"reply_text"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewServer creates a new API server
func NewServer(room repo.RoomRepo, roomID string, status StatusProvider, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		room:   room,
		roomID: roomID,
		status: status,
		port:   port,
		logger: logger,
	}
}

// SetJournal enables GET /api/dispatches (optional)
func (s *Server) SetJournal(j repo.JournalRepo) {
	s.journal = j
}

// SetMetricsHandler mounts a Prometheus handler at /metrics (optional)
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/dispatches", s.handleDispatches)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server on localhost
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP API", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListMessages(w, r)
	case http.MethodPost:
		s.handleSendMessage(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	msgs, err := s.room.FetchRecent(r.Context(), s.roomID, limit)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"room":     s.roomID,
		"messages": ConvertMessages(msgs),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	id, err := s.room.SendMessage(r.Context(), s.roomID, req.Text, repo.SendOptions{InReplyTo: req.InReplyTo})
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.logger.Info("message sent via API", "room", s.roomID, "id", id)
	s.writeJSON(w, http.StatusOK, SendResponse{ID: id})
}

func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	records, err := s.journal.List(r.Context(), s.roomID, parseLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	result := make([]Dispatch, len(records))
	for i, rec := range records {
		result[i] = Dispatch{
			MessageID: rec.MessageID,
			ReplyID:   rec.ReplyID,
			ReplyText: rec.ReplyText,
			Status:    string(rec.Status),
			Error:     rec.Error,
			CreatedAt: rec.CreatedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"dispatches": result})
}

// ============ Helpers ============

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// ConvertMessages converts domain messages to API messages
func ConvertMessages(msgs []domain.Message) []Message {
	result := make([]Message, len(msgs))
	for i, m := range msgs {
		result[i] = Message{
			ID:        m.ID,
			AuthorID:  m.AuthorID,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		}
	}
	return result
}
