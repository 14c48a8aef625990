package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func chatReply(content string) []byte {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	raw, _ := json.Marshal(reply)
	return raw
}

func TestExtractParsesDecisions(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write(chatReply(`[{"case":"0001-22"},{"case":"0002-22"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Model: "gpt-4o-mini", APIKey: "key"}, discardLogger())
	c.client = srv.Client()

	decisions, err := c.Extract(context.Background(), "tjro", []byte("gazette text"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	if string(decisions[0].Payload) != `{"case":"0001-22"}` {
		t.Errorf("payload = %s", decisions[0].Payload)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestExtractHandlesEmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply("[]"))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Model: "m"}, discardLogger())
	c.client = srv.Client()

	decisions, err := c.Extract(context.Background(), "tjro", []byte("no decisions today"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(decisions) != 0 {
		t.Errorf("got %d decisions, want 0", len(decisions))
	}
}

func TestExtractStripsMarkdownFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply("```json\n[{\"case\":\"1\"}]\n```"))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Model: "m"}, discardLogger())
	c.client = srv.Client()

	decisions, err := c.Extract(context.Background(), "tjro", []byte("text"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(decisions) != 1 {
		t.Errorf("got %d decisions, want 1", len(decisions))
	}
}

func TestExtractServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Model: "m"}, discardLogger())
	c.client = srv.Client()

	if _, err := c.Extract(context.Background(), "tjro", []byte("text")); err == nil {
		t.Error("expected error on 429")
	}
}

func TestExtractMisconfigured(t *testing.T) {
	c := NewClient(Config{}, discardLogger())
	if _, err := c.Extract(context.Background(), "tjro", []byte("text")); err == nil {
		t.Error("expected error without endpoint")
	}
}

func TestTruncateAtRuneBoundary(t *testing.T) {
	// "ção" holds two 2-byte runes; cutting mid-rune must back off.
	b := []byte("ação")

	tests := []struct {
		max  int
		want string
	}{
		{len(b), "ação"},
		{len(b) + 10, "ação"},
		{2, "a"},  // byte 2 is inside "ç"
		{3, "aç"}, // byte 3 starts "ã"
		{0, ""},
	}
	for _, tt := range tests {
		got := truncateAtRuneBoundary(b, tt.max)
		if string(got) != tt.want {
			t.Errorf("truncateAtRuneBoundary(max=%d) = %q, want %q", tt.max, got, tt.want)
		}
		if !utf8.Valid(got) {
			t.Errorf("truncateAtRuneBoundary(max=%d) produced invalid UTF-8", tt.max)
		}
	}
}
