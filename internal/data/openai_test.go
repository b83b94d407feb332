package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Expected bearer key, got %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" {
			t.Errorf("Expected model test-model, got %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "status?" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}
		writeJSON(w, map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "  All green.  "}}},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	completion := NewOpenAIRepo("sk-test", ts.URL+"/v1/", "test-model")
	got, err := completion.Complete(context.Background(), "You are Echo.", "status?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "All green." {
		t.Errorf("Expected trimmed answer, got %q", got)
	}
}

func TestOpenAIComplete_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "cmpl-2", "choices": []any{}})
	}))
	defer ts.Close()

	completion := NewOpenAIRepo("sk-test", ts.URL, "")
	if _, err := completion.Complete(context.Background(), "sys", "hi"); err == nil {
		t.Error("Expected error when no choices are returned")
	}
}

func TestOpenAIComplete_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer ts.Close()

	completion := NewOpenAIRepo("sk-test", ts.URL, "")
	if _, err := completion.Complete(context.Background(), "sys", "hi"); err == nil {
		t.Error("Expected error on HTTP 500")
	}
}
