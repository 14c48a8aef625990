// Package analysis calls an OpenAI-compatible service to extract judicial
// decisions from gazette content.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"gazeta/internal/domain"
)

const (
	requestTimeout = 2 * time.Minute
	// Gazette editions can run to hundreds of pages; send at most this
	// much content per request.
	maxPromptBytes = 256 * 1024

	defaultSystemPrompt = "You extract judicial decisions from Brazilian official gazettes. " +
		"Reply with a JSON array; one object per decision. Reply with [] when the text holds none."
)

// Config holds extraction service settings.
type Config struct {
	Endpoint     string
	Model        string
	APIKey       string
	SystemPrompt string
}

// Client implements decision extraction over the chat-completions API.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient builds an extraction client from configuration.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Extract sends gazette content to the extraction service and returns the
// decision payloads it reports.
func (c *Client) Extract(ctx context.Context, sourceCode string, content []byte) ([]domain.Decision, error) {
	if c.cfg.Endpoint == "" || c.cfg.Model == "" {
		return nil, fmt.Errorf("extraction client misconfigured")
	}

	content = truncateAtRuneBoundary(content, maxPromptBytes)

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Source: %s\n\n%s", sourceCode, content)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("extraction service %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("extraction response has no choices")
	}

	return parseDecisions(parsed.Choices[0].Message.Content)
}

// truncateAtRuneBoundary caps b at max bytes without splitting a UTF-8
// rune, backing off to the nearest rune start.
func truncateAtRuneBoundary(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}

// parseDecisions splits the model's JSON array reply into one opaque
// payload per decision.
func parseDecisions(reply string) ([]domain.Decision, error) {
	reply = strings.TrimSpace(reply)
	// Models occasionally wrap the array in a markdown fence.
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	var payloads []json.RawMessage
	if err := json.Unmarshal([]byte(reply), &payloads); err != nil {
		return nil, fmt.Errorf("parse decisions: %w", err)
	}

	decisions := make([]domain.Decision, 0, len(payloads))
	for _, payload := range payloads {
		decisions = append(decisions, domain.Decision{Payload: payload})
	}
	return decisions, nil
}
