package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/repo"
)

func newTestSlack(t *testing.T, mux *http.ServeMux) repo.RoomRepo {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return NewSlackRepo(NewSlackClient("xoxb-test", ts.URL))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestSlackSelfIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth.test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "user": "echo", "user_id": "UBOT", "bot_id": "BBOT"})
	})

	room := newTestSlack(t, mux)
	self, err := room.SelfIdentity(context.Background())
	if err != nil {
		t.Fatalf("SelfIdentity: %v", err)
	}
	if self.ID != "UBOT" {
		t.Errorf("Expected ID UBOT, got %s", self.ID)
	}
	if self.MentionToken != "<@UBOT>" {
		t.Errorf("Expected mention token <@UBOT>, got %s", self.MentionToken)
	}
	if !room.SupportsThreads() {
		t.Error("Expected Slack to support threads")
	}
}

func TestSlackFetchRecent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth.test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "user": "echo", "user_id": "UBOT", "bot_id": "BBOT"})
	})
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("channel"); got != "C123" {
			t.Errorf("Expected channel C123, got %s", got)
		}
		if got := r.FormValue("limit"); got != "10" {
			t.Errorf("Expected limit 10, got %s", got)
		}
		writeJSON(w, map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"type": "message", "user": "U1", "text": "<@UBOT> status?", "ts": "1700000002.000200"},
				{"type": "message", "bot_id": "BBOT", "text": "earlier reply", "ts": "1700000001.000100"},
			},
		})
	})

	room := newTestSlack(t, mux)
	if _, err := room.SelfIdentity(context.Background()); err != nil {
		t.Fatalf("SelfIdentity: %v", err)
	}

	msgs, err := room.FetchRecent(context.Background(), "C123", 10)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "1700000002.000200" || msgs[0].AuthorID != "U1" {
		t.Errorf("Unexpected first message: %+v", msgs[0])
	}
	want := time.Unix(1700000002, 200*int64(time.Microsecond))
	if !msgs[0].Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, msgs[0].Timestamp)
	}
	if msgs[1].AuthorID != "UBOT" {
		t.Errorf("Expected bot-id-only message attributed to self, got %s", msgs[1].AuthorID)
	}
}

func TestSlackFetchSince_Pages(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.FormValue("oldest"); got != "1700000000.000000" {
			t.Errorf("Expected oldest to be the last seen ts, got %q", got)
		}
		if r.FormValue("cursor") == "" {
			writeJSON(w, map[string]any{
				"ok":                true,
				"has_more":          true,
				"messages":          []map[string]any{{"user": "U1", "text": "c", "ts": "1700000003.000000"}},
				"response_metadata": map[string]any{"next_cursor": "page2"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"user": "U1", "text": "b", "ts": "1700000002.000000"},
				{"user": "U1", "text": "a", "ts": "1700000001.000000"},
			},
		})
	})

	room := newTestSlack(t, mux)
	since, ok := room.(repo.SinceFetcher)
	if !ok {
		t.Fatal("Expected Slack room to support FetchSince")
	}

	msgs, err := since.FetchSince(context.Background(), "C123", "1700000000.000000", 100)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 pages, got %d", calls)
	}
	if len(msgs) != 3 || msgs[0].Text != "c" || msgs[2].Text != "a" {
		t.Errorf("Expected newest-first c,b,a, got %+v", msgs)
	}
}

func TestSlackSendMessage_Thread(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("thread_ts"); got != "1700000002.000200" {
			t.Errorf("Expected thread_ts, got %q", got)
		}
		if got := r.FormValue("text"); got != "hello" {
			t.Errorf("Expected text hello, got %q", got)
		}
		writeJSON(w, map[string]any{"ok": true, "channel": "C123", "ts": "1700000003.000300"})
	})

	room := newTestSlack(t, mux)
	id, err := room.SendMessage(context.Background(), "C123", "hello", repo.SendOptions{InReplyTo: "1700000002.000200"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != "1700000003.000300" {
		t.Errorf("Expected reply ts, got %s", id)
	}
}

func TestSlackSendMessage_Error(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": false, "error": "not_in_channel"})
	})

	room := newTestSlack(t, mux)
	if _, err := room.SendMessage(context.Background(), "C123", "hello", repo.SendOptions{}); err == nil {
		t.Error("Expected error for not_in_channel")
	}
}

func TestSlackResolveRoom(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("cursor") == "" {
			writeJSON(w, map[string]any{
				"ok":                true,
				"channels":          []map[string]any{{"id": "C1", "name": "random"}},
				"response_metadata": map[string]any{"next_cursor": "next"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"ok":       true,
			"channels": []map[string]any{{"id": "C9", "name": "general"}},
		})
	})

	room := newTestSlack(t, mux)
	resolver := room.(repo.RoomResolver)

	id, err := resolver.ResolveRoom(context.Background(), "#general")
	if err != nil {
		t.Fatalf("ResolveRoom: %v", err)
	}
	if id != "C9" {
		t.Errorf("Expected C9, got %s", id)
	}

	if id, _ := resolver.ResolveRoom(context.Background(), "C777"); id != "C777" {
		t.Errorf("Expected ids to pass through, got %s", id)
	}

	if _, err := resolver.ResolveRoom(context.Background(), "#missing"); err == nil {
		t.Error("Expected error for unknown channel")
	}
}

func TestParseSlackTS(t *testing.T) {
	if got := parseSlackTS("bogus"); !got.IsZero() {
		t.Errorf("Expected zero time for invalid ts, got %v", got)
	}
	if got := parseSlackTS("1700000000"); !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Expected seconds-only ts to parse, got %v", got)
	}
}
