// Package classify owns the per-record classification workflow: prompt
// rendering, the outer attempt loop over the transport client, and the
// projection of the model's answer onto the output template.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"cveclass/internal/extract"
	"cveclass/internal/inference"

	"go.uber.org/zap"
)

// promptPlaceholder is the single substitution point in the prompt template.
const promptPlaceholder = "{full_json_str}"

// Default Ollama runtime options for classification requests.
const (
	defaultContextWindow = 20480
	defaultGPULayers     = 99
)

// Options configures a Classifier.
type Options struct {
	Model        string
	Attempts     int
	RetryDelay   time.Duration
	RoleFile     string
	TemplateFile string
}

// Classifier drives one classification per source pair. It is immutable
// after construction and safe to share across worker goroutines.
type Classifier struct {
	model        string
	attempts     int
	retryDelay   time.Duration
	systemPrompt string
	template     *OutputTemplate
	client       *inference.Client
	logger       *zap.Logger
}

// New builds a Classifier, loading the role text and output template.
// A missing or invalid file here is fatal: no work may be dispatched
// without the result schema and the system persona.
func New(opts Options, client *inference.Client, logger *zap.Logger) (*Classifier, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	role, err := os.ReadFile(opts.RoleFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read role file %s: %w", opts.RoleFile, err)
	}

	tpl, err := LoadTemplate(opts.TemplateFile)
	if err != nil {
		return nil, err
	}

	return &Classifier{
		model:        opts.Model,
		attempts:     opts.Attempts,
		retryDelay:   opts.RetryDelay,
		systemPrompt: strings.TrimSpace(string(role)),
		template:     tpl,
		client:       client,
		logger:       logger,
	}, nil
}

// Template exposes the loaded output template.
func (c *Classifier) Template() *OutputTemplate {
	return c.template
}

// Classify runs the full per-record workflow and always returns a result:
// success shape when a JSON object was recovered within the attempt
// budget, error shape otherwise. No failure escapes as an error.
func (c *Classifier) Classify(ctx context.Context, sources map[string]any, promptTemplate, fallbackID string) *Result {
	start := time.Now()

	id := recordID(sources, fallbackID)

	merged, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		// Source documents came from json.Unmarshal, so this should not
		// happen; treat it as an immediate classification failure.
		c.logger.Warn("failed to serialize source pair", zap.String("cve", id), zap.Error(err))
		return c.errorResult(id, 0, start)
	}
	prompt := strings.ReplaceAll(promptTemplate, promptPlaceholder, string(merged))

	req := inference.ChatRequest{
		Model: c.model,
		Messages: []inference.ChatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream:      false,
		Temperature: 0,
		Format:      "json",
		Options: &inference.ChatOptions{
			NumCtx: defaultContextWindow,
			NumGPU: defaultGPULayers,
		},
	}

	var parsed map[string]any
	attemptsUsed := 0

	for attempt := 1; attempt <= c.attempts; attempt++ {
		attemptsUsed = attempt

		raw, err := c.client.Send(ctx, req)
		if err != nil {
			// Transport budget exhausted for this round; the client
			// already slept and logged, move straight to the next one.
			continue
		}

		obj, err := extract.ExtractObject(raw)
		if err != nil {
			c.logger.Warn("unparsable model response",
				zap.String("cve", id),
				zap.Int("attempt", attempt),
				zap.Error(err))
			c.sleep(ctx)
			continue
		}

		parsed = obj
		break
	}

	if parsed == nil {
		return c.errorResult(id, attemptsUsed, start)
	}

	result := NewResult(id)
	for _, f := range c.template.Fields() {
		if f.Final == "CVE_ID" {
			continue
		}
		value, ok := parsed[f.Model]
		if !ok {
			value = DefaultValue(f.Final)
		}
		result.Set(f.Final, value)
	}
	result.Set("execution_time_seconds", elapsedSeconds(start))
	result.Set("attempts", attemptsUsed)
	return result
}

// errorResult builds the error shape: identifier and attempt metadata
// only, none of the template fields.
func (c *Classifier) errorResult(id string, attempts int, start time.Time) *Result {
	result := NewResult(id)
	result.Set("error", true)
	result.Set("attempts", attempts)
	result.Set("execution_time_seconds", elapsedSeconds(start))
	return result
}

func (c *Classifier) sleep(ctx context.Context) {
	if c.retryDelay <= 0 {
		return
	}
	select {
	case <-time.After(c.retryDelay):
	case <-ctx.Done():
	}
}

// recordID prefers the canonical id embedded in the MITRE document's
// metadata block, falling back to the caller-supplied group basename.
func recordID(sources map[string]any, fallback string) string {
	mitre, ok := sources["mitre"].(map[string]any)
	if !ok {
		return fallback
	}
	meta, ok := mitre["cveMetadata"].(map[string]any)
	if !ok {
		return fallback
	}
	if id, ok := meta["cveId"].(string); ok && id != "" {
		return id
	}
	return fallback
}

// elapsedSeconds reports wall-clock time rounded to two decimals, the
// precision recorded in output files.
func elapsedSeconds(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
