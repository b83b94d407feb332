package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devricklin/mention-dispatch/internal/api"
	"github.com/devricklin/mention-dispatch/internal/service"
)

// Tool names
const (
	ToolStatus         = "dispatch_status"
	ToolRecentMessages = "dispatch_recent_messages"
	ToolSendMessage    = "dispatch_send_message"
	ToolDispatches     = "dispatch_recent_replies"
)

// Server exposes the dispatch bot as MCP tools over the local API
type Server struct {
	server *mcp.Server
	client *Client
}

// NewServer creates a new MCP server backed by client
func NewServer(client *Client, version string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "mention-dispatch",
			Version: version,
		}, nil),
		client: client,
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdin/stdout until the client disconnects
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCP returns the underlying server, for in-process transports
func (s *Server) MCP() *mcp.Server {
	return s.server
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolStatus,
		Description: "Get the mention dispatch bot status: room, persona, bot identity, seen-set size and reply counters.",
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolRecentMessages,
		Description: "Get the most recent messages of the watched room, newest first.",
	}, s.handleRecentMessages)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSendMessage,
		Description: "Post a message to the watched room as the bot. Optionally reply in the thread of a message id.",
	}, s.handleSendMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolDispatches,
		Description: "List the bot's latest reply attempts from the dispatch journal, including failed sends.",
	}, s.handleDispatches)
}

// StatusInput is the input for dispatch_status
type StatusInput struct{}

// StatusOutput is the output for dispatch_status
type StatusOutput struct {
	Platform      string `json:"platform"`
	Room          string `json:"room"`
	Persona       string `json:"persona"`
	Generative    bool   `json:"generative"`
	BotID         string `json:"bot_id"`
	BotName       string `json:"bot_name"`
	SeenSize      int    `json:"seen_size"`
	Ticks         int64  `json:"ticks"`
	Replies       int64  `json:"replies"`
	SendFailures  int64  `json:"send_failures"`
	FetchFailures int64  `json:"fetch_failures"`
	BackoffSkips  int64  `json:"backoff_skips"`
	LastTickAt    string `json:"last_tick_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	BackoffUntil  string `json:"backoff_until,omitempty"`
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	status, err := s.client.GetStatus(ctx)
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("get status: %w", err)
	}
	return nil, statusOutput(status), nil
}

func statusOutput(st *service.Status) StatusOutput {
	return StatusOutput{
		Platform:      st.Platform,
		Room:          st.Room,
		Persona:       st.Persona,
		Generative:    st.Generative,
		BotID:         st.Self.ID,
		BotName:       st.Self.DisplayName,
		SeenSize:      st.SeenSize,
		Ticks:         st.Ticks,
		Replies:       st.Replies,
		SendFailures:  st.SendFailures,
		FetchFailures: st.FetchFailures,
		BackoffSkips:  st.BackoffSkips,
		LastTickAt:    formatTime(st.LastTickAt),
		LastError:     st.LastError,
		BackoffUntil:  formatTime(st.BackoffUntil),
	}
}

// RecentMessagesInput is the input for dispatch_recent_messages
type RecentMessagesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of messages to return (default 20)"`
}

// MessageInfo is one room message
type MessageInfo struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// RecentMessagesOutput is the output for dispatch_recent_messages
type RecentMessagesOutput struct {
	Messages []MessageInfo `json:"messages"`
}

func (s *Server) handleRecentMessages(ctx context.Context, req *mcp.CallToolRequest, input RecentMessagesInput) (*mcp.CallToolResult, RecentMessagesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	msgs, err := s.client.GetRecentMessages(ctx, limit)
	if err != nil {
		return nil, RecentMessagesOutput{}, fmt.Errorf("get messages: %w", err)
	}
	out := RecentMessagesOutput{Messages: make([]MessageInfo, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, MessageInfo{
			ID:        m.ID,
			AuthorID:  m.AuthorID,
			Text:      m.Text,
			Timestamp: formatTime(m.Timestamp),
		})
	}
	return nil, out, nil
}

// SendMessageInput is the input for dispatch_send_message
type SendMessageInput struct {
	Text      string `json:"text" jsonschema:"The message text to post"`
	InReplyTo string `json:"in_reply_to,omitempty" jsonschema:"Message id to reply to in thread, if the room supports threads"`
}

// SendMessageOutput is the output for dispatch_send_message
type SendMessageOutput struct {
	ID string `json:"id"`
}

func (s *Server) handleSendMessage(ctx context.Context, req *mcp.CallToolRequest, input SendMessageInput) (*mcp.CallToolResult, SendMessageOutput, error) {
	if input.Text == "" {
		return nil, SendMessageOutput{}, fmt.Errorf("text is required")
	}
	id, err := s.client.SendMessage(ctx, input.Text, input.InReplyTo)
	if err != nil {
		return nil, SendMessageOutput{}, fmt.Errorf("send message: %w", err)
	}
	return nil, SendMessageOutput{ID: id}, nil
}

// DispatchesInput is the input for dispatch_recent_replies
type DispatchesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of reply attempts to return (default 20)"`
}

// DispatchInfo is one journaled reply attempt
type DispatchInfo struct {
	MessageID string `json:"message_id"`
	ReplyID   string `json:"reply_id,omitempty"`
	ReplyText string `json:"reply_text"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// DispatchesOutput is the output for dispatch_recent_replies
type DispatchesOutput struct {
	Dispatches []DispatchInfo `json:"dispatches"`
}

func (s *Server) handleDispatches(ctx context.Context, req *mcp.CallToolRequest, input DispatchesInput) (*mcp.CallToolResult, DispatchesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := s.client.GetDispatches(ctx, limit)
	if err != nil {
		return nil, DispatchesOutput{}, fmt.Errorf("get dispatches: %w", err)
	}
	return nil, DispatchesOutput{Dispatches: dispatchInfos(records)}, nil
}

func dispatchInfos(records []api.Dispatch) []DispatchInfo {
	out := make([]DispatchInfo, 0, len(records))
	for _, r := range records {
		out = append(out, DispatchInfo{
			MessageID: r.MessageID,
			ReplyID:   r.ReplyID,
			ReplyText: r.ReplyText,
			Status:    r.Status,
			Error:     r.Error,
			CreatedAt: formatTime(r.CreatedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
