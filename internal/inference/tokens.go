package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// generateRequest is the native Ollama generate request used for token
// counting. num_predict:0 makes the server tokenize the prompt without
// generating anything.
type generateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		NumPredict int `json:"num_predict"`
	} `json:"options"`
}

type generateResponse struct {
	PromptEvalCount int `json:"prompt_eval_count"`
}

// TokenCounter probes the generate endpoint to measure prompt sizes.
type TokenCounter struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewTokenCounter creates a counter against the given generate endpoint.
func NewTokenCounter(endpoint, model string, timeout time.Duration) *TokenCounter {
	return &TokenCounter{
		endpoint: endpoint,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Count returns the number of prompt tokens the model assigns to text.
func (t *TokenCounter) Count(ctx context.Context, text string) (int, error) {
	req := generateRequest{
		Model:  t.model,
		Prompt: text,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("token count request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("token count returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return 0, fmt.Errorf("failed to decode token count response: %w", err)
	}

	return genResp.PromptEvalCount, nil
}
