// Package budget sizes classification prompts against the model's
// context window by probing the server's own tokenizer with the
// worst-case (largest) source pair on disk.
package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cveclass/internal/grouping"

	"go.uber.org/zap"
)

// promptPlaceholder mirrors the classifier's substitution point.
const promptPlaceholder = "{full_json_str}"

// TokenCounter measures prompt size as the model server sees it.
type TokenCounter interface {
	Count(ctx context.Context, text string) (int, error)
}

// Options configures an Analyzer.
type Options struct {
	ContextWindow  int
	ReservedOutput int
	SafetyMargin   int
}

// Analysis is the worst-case token report.
type Analysis struct {
	PairCount      int
	LargestID      string
	LargestBytes   int
	SystemTokens   int
	StaticTokens   int
	WorstTokens    int
	MaxInputTokens int
	Headroom       int
	MaxPerRequest  int
}

// Analyzer runs the worst-case context-window analysis.
type Analyzer struct {
	counter TokenCounter
	opts    Options
	logger  *zap.Logger
}

// New creates an Analyzer.
func New(counter TokenCounter, opts Options, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{counter: counter, opts: opts, logger: logger}
}

// Analyze tokenizes the static prompt parts, finds the largest complete
// .nvd/.mitre pair under jsonDir, and reports how much of the context
// window the worst-case request consumes. Unlike the classifier, the
// budget scan requires complete pairs; incomplete ones are reported and
// excluded so the worst case is not understated.
func (a *Analyzer) Analyze(ctx context.Context, jsonDir, systemPrompt, promptTemplate string) (*Analysis, error) {
	systemTokens, err := a.counter.Count(ctx, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed counting system prompt tokens: %w", err)
	}

	staticPrompt := strings.ReplaceAll(promptTemplate, promptPlaceholder, "")
	staticTokens, err := a.counter.Count(ctx, staticPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed counting static prompt tokens: %w", err)
	}

	pairs, err := a.scanPairs(jsonDir)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no complete CVE pairs found in %s", jsonDir)
	}

	largestID, largestJSON, err := a.largestPair(jsonDir, pairs)
	if err != nil {
		return nil, err
	}

	fullPrompt := strings.ReplaceAll(promptTemplate, promptPlaceholder, largestJSON)
	worstTokens, err := a.counter.Count(ctx, systemPrompt+fullPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed counting worst-case tokens: %w", err)
	}

	maxInput := a.opts.ContextWindow - a.opts.ReservedOutput - a.opts.SafetyMargin

	analysis := &Analysis{
		PairCount:      len(pairs),
		LargestID:      largestID,
		LargestBytes:   len(largestJSON),
		SystemTokens:   systemTokens,
		StaticTokens:   staticTokens,
		WorstTokens:    worstTokens,
		MaxInputTokens: maxInput,
		Headroom:       maxInput - worstTokens,
	}
	if worstTokens > 0 {
		analysis.MaxPerRequest = maxInput / worstTokens
	}
	return analysis, nil
}

// scanPairs collects complete pairs keyed by canonical CVE id.
func (a *Analyzer) scanPairs(jsonDir string) (map[string]grouping.Group, error) {
	entries, err := os.ReadDir(jsonDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", jsonDir, err)
	}

	candidates := make(map[string]grouping.Group)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		id := grouping.CanonicalID(name)
		if id == name {
			continue // no CVE identifier in the filename
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".nvd" && ext != ".mitre" {
			continue
		}
		if candidates[id] == nil {
			candidates[id] = make(grouping.Group)
		}
		candidates[id][ext[1:]] = name
	}

	pairs := make(map[string]grouping.Group)
	for id, group := range candidates {
		if len(group) == 2 {
			pairs[id] = group
		} else {
			a.logger.Warn("incomplete pair excluded from analysis", zap.String("cve", id))
		}
	}
	return pairs, nil
}

// largestPair merges each pair compactly and keeps the biggest by size.
func (a *Analyzer) largestPair(jsonDir string, pairs map[string]grouping.Group) (string, string, error) {
	var largestID, largestJSON string

	for id, group := range pairs {
		merged := make(map[string]any, 2)
		valid := true
		for tag, name := range group {
			data, err := os.ReadFile(filepath.Join(jsonDir, name))
			if err != nil {
				valid = false
				break
			}
			var doc any
			if err := json.Unmarshal(data, &doc); err != nil {
				valid = false
				break
			}
			merged[tag] = doc
		}
		if !valid {
			a.logger.Warn("skipping pair with invalid JSON", zap.String("cve", id))
			continue
		}

		compact, err := json.Marshal(merged)
		if err != nil {
			return "", "", fmt.Errorf("failed to serialize pair %s: %w", id, err)
		}
		if len(compact) > len(largestJSON) {
			largestID = id
			largestJSON = string(compact)
		}
	}

	if largestJSON == "" {
		return "", "", fmt.Errorf("could not build any merged CVE document")
	}
	return largestID, largestJSON, nil
}
