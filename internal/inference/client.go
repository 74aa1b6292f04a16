// Package inference is the HTTP transport to the local model server.
// It speaks the OpenAI-compatible chat-completions dialect that Ollama
// exposes, plus the native generate endpoint used for token counting.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChatMessage is one entry in the conversation sent to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions carries Ollama runtime options.
type ChatOptions struct {
	NumCtx int `json:"num_ctx,omitempty"`
	NumGPU int `json:"num_gpu,omitempty"`
}

// ChatRequest is the chat-completions request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	Format      string        `json:"format,omitempty"`
	Options     *ChatOptions  `json:"options,omitempty"`
}

// ChatResponse is the subset of the chat-completions response we read.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

var errEmptyContent = errors.New("empty message content")

// Config holds transport settings for a Client.
type Config struct {
	Endpoint string
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// Client issues chat-completion requests with a bounded retry budget.
// All transport and protocol faults are absorbed as failed attempts and
// logged as warnings; the only error Send returns is attempt exhaustion.
type Client struct {
	endpoint   string
	attempts   int
	delay      time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a transport client. Attempts below 1 are clamped to 1.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Send posts the request up to the attempt budget and returns the first
// non-empty assistant message content. The inter-attempt delay is applied
// unconditionally after every attempt, success included, so the worst-case
// wall time is attempts*(timeout+delay).
func (c *Client) Send(ctx context.Context, req ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		content, err := c.post(ctx, body)
		if err != nil {
			c.logger.Warn("inference attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.attempts),
				zap.Error(err))
		}
		c.sleep(ctx)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("no usable content after %d attempts", c.attempts)
}

// post performs one HTTP attempt. Empty content counts as a failure so the
// retry loop treats a 200-with-nothing the same as a transport fault.
func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", errEmptyContent
	}
	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyContent
	}
	return content, nil
}

// sleep waits out the inter-attempt delay, or less if the context ends.
func (c *Client) sleep(ctx context.Context) {
	if c.delay <= 0 {
		return
	}
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
	}
}
