package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const defaultClaudeURL = "https://api.anthropic.com/v1/messages"

// claudeClient speaks the Anthropic messages wire format. The system prompt
// travels as a top-level field, not a message.
type claudeClient struct {
	baseURL string
	model   string
	apiKey  string
	hc      *http.Client
	log     *logrus.Logger
}

func newClaudeClient(cfg Config, key string, hc *http.Client, log *logrus.Logger) *claudeClient {
	url := cfg.BaseURL
	if url == "" {
		url = defaultClaudeURL
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &claudeClient{baseURL: url, model: model, apiKey: key, hc: hc, log: log}
}

type claudeRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *claudeClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	reqBody := claudeRequest{
		Model:     c.model,
		MaxTokens: 2048,
		System:    system,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", invocationErr("claude", "marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", invocationErr("claude", "building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", &InvocationError{Provider: "claude", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", invocationErr("claude", "reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.WithField("status", resp.StatusCode).Warn("claude request failed")
		return "", invocationErr("claude", "unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed claudeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", invocationErr("claude", "parsing response: %v", err)
	}
	if parsed.Error != nil {
		return "", invocationErr("claude", "api error: %s", parsed.Error.Message)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", invocationErr("claude", "no text block in response")
}
