package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devricklin/mention-dispatch/internal/api"
	"github.com/devricklin/mention-dispatch/internal/service"
)

func newTestAPI(t *testing.T) (*httptest.Server, *[]api.SendRequest) {
	t.Helper()
	var sent []api.SendRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(service.Status{Platform: "slack", Room: "C123", Persona: "Echo", SeenSize: 3})
	})
	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req api.SendRequest
			json.NewDecoder(r.Body).Decode(&req)
			sent = append(sent, req)
			json.NewEncoder(w).Encode(api.SendResponse{ID: "m-new"})
			return
		}
		if r.URL.Query().Get("limit") != "5" {
			http.Error(w, "unexpected limit "+r.URL.Query().Get("limit"), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []api.Message{{ID: "m1", AuthorID: "U1", Text: "@echo ping", Timestamp: time.Now()}},
		})
	})
	mux.HandleFunc("/api/dispatches", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"journal disabled"}`, http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &sent
}

func TestClient(t *testing.T) {
	srv, sent := newTestAPI(t)
	client := NewClient(srv.URL + "/")
	ctx := context.Background()

	status, err := client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Room != "C123" || status.SeenSize != 3 {
		t.Errorf("Expected room C123 with 3 seen, got %+v", status)
	}

	msgs, err := client.GetRecentMessages(ctx, 5)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("Expected message m1, got %+v", msgs)
	}

	id, err := client.SendMessage(ctx, "hello", "m1")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if id != "m-new" {
		t.Errorf("Expected id m-new, got %s", id)
	}
	if len(*sent) != 1 || (*sent)[0].InReplyTo != "m1" {
		t.Errorf("Expected one threaded send, got %+v", *sent)
	}

	_, err = client.GetDispatches(ctx, 10)
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("Expected HTTP 404 error, got %v", err)
	}
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	if _, err := s.MCP().Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect failed: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func resultText(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

func TestServerTools(t *testing.T) {
	srv, sent := newTestAPI(t)
	session := connect(t, NewServer(NewClient(srv.URL), "test"))
	ctx := context.Background()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools.Tools) != 4 {
		t.Errorf("Expected 4 tools, got %d", len(tools.Tools))
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: ToolStatus, Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool status failed: %v", err)
	}
	if res.IsError || !strings.Contains(resultText(res), "C123") {
		t.Errorf("Expected status with room C123, got %q", resultText(res))
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: ToolRecentMessages, Arguments: map[string]any{"limit": 5}})
	if err != nil {
		t.Fatalf("CallTool messages failed: %v", err)
	}
	if res.IsError || !strings.Contains(resultText(res), "@echo ping") {
		t.Errorf("Expected recent message text, got %q", resultText(res))
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: ToolSendMessage, Arguments: map[string]any{"text": "hi all"}})
	if err != nil {
		t.Fatalf("CallTool send failed: %v", err)
	}
	if res.IsError || !strings.Contains(resultText(res), "m-new") {
		t.Errorf("Expected new message id, got %q", resultText(res))
	}
	if len(*sent) != 1 || (*sent)[0].Text != "hi all" {
		t.Errorf("Expected one send of 'hi all', got %+v", *sent)
	}
}

func TestServerToolErrors(t *testing.T) {
	srv, sent := newTestAPI(t)
	session := connect(t, NewServer(NewClient(srv.URL), "test"))
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: ToolSendMessage, Arguments: map[string]any{"text": ""}})
	if err != nil {
		t.Fatalf("CallTool send failed: %v", err)
	}
	if !res.IsError {
		t.Error("Expected tool error for empty text")
	}
	if len(*sent) != 0 {
		t.Errorf("Expected no sends, got %d", len(*sent))
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: ToolDispatches, Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool dispatches failed: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(res), "404") {
		t.Errorf("Expected 404 tool error, got %q", resultText(res))
	}
}

func TestDispatchInfos(t *testing.T) {
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	infos := dispatchInfos([]api.Dispatch{
		{MessageID: "m1", ReplyID: "r1", ReplyText: "pong", Status: "sent", CreatedAt: at},
		{MessageID: "m2", Status: "failed", Error: "boom"},
	})

	if len(infos) != 2 {
		t.Fatalf("Expected 2 infos, got %d", len(infos))
	}
	if infos[0].CreatedAt != "2026-10-14T12:00:00Z" {
		t.Errorf("Expected RFC3339 time, got %q", infos[0].CreatedAt)
	}
	if infos[1].CreatedAt != "" || infos[1].Error != "boom" {
		t.Errorf("Expected empty time and error boom, got %+v", infos[1])
	}
}
