package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const defaultGrokURL = "https://api.x.ai/v1/chat/completions"

// grokClient speaks the OpenAI-compatible chat completions wire format used
// by the xAI API.
type grokClient struct {
	baseURL string
	model   string
	apiKey  string
	hc      *http.Client
	log     *logrus.Logger
}

func newGrokClient(cfg Config, key string, hc *http.Client, log *logrus.Logger) *grokClient {
	url := cfg.BaseURL
	if url == "" {
		url = defaultGrokURL
	}
	model := cfg.Model
	if model == "" {
		model = "grok-2-latest"
	}
	return &grokClient{baseURL: url, model: model, apiKey: key, hc: hc, log: log}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *grokClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", invocationErr("grok", "marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", invocationErr("grok", "building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", &InvocationError{Provider: "grok", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", invocationErr("grok", "reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.WithField("status", resp.StatusCode).Warn("grok request failed")
		return "", invocationErr("grok", "unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", invocationErr("grok", "parsing response: %v", err)
	}
	if parsed.Error != nil {
		return "", invocationErr("grok", "api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", invocationErr("grok", "empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
