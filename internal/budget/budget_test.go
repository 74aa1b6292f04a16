package budget

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubCounter approximates tokens as character count so test arithmetic
// stays deterministic without a model server.
type stubCounter struct {
	calls []string
}

func (s *stubCounter) Count(_ context.Context, text string) (int, error) {
	s.calls = append(s.calls, text)
	return len(text), nil
}

func writePair(t *testing.T, dir, id, nvd, mitre string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".nvd"), []byte(nvd), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".mitre"), []byte(mitre), 0o644))
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "CVE-2024-0001", `{"a":1}`, `{"b":2}`)
	writePair(t, dir, "CVE-2024-0002", `{"description":"a much larger document body"}`, `{"b":2}`)

	// Incomplete pair is excluded, not counted.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CVE-2024-0003.nvd"), []byte(`{}`), 0o644))

	counter := &stubCounter{}
	analyzer := New(counter, Options{
		ContextWindow:  131072,
		ReservedOutput: 1200,
		SafetyMargin:   500,
	}, zap.NewNop())

	analysis, err := analyzer.Analyze(context.Background(), dir, "SYSTEM", "ask {full_json_str} now")
	require.NoError(t, err)

	assert.Equal(t, 2, analysis.PairCount)
	assert.Equal(t, "CVE-2024-0002", analysis.LargestID)
	assert.Positive(t, analysis.LargestBytes)

	assert.Equal(t, len("SYSTEM"), analysis.SystemTokens)
	assert.Equal(t, len("ask  now"), analysis.StaticTokens)

	maxInput := 131072 - 1200 - 500
	assert.Equal(t, maxInput, analysis.MaxInputTokens)
	assert.Equal(t, maxInput-analysis.WorstTokens, analysis.Headroom)
	assert.Equal(t, maxInput/analysis.WorstTokens, analysis.MaxPerRequest)

	// The worst-case probe carries the merged document, not the placeholder.
	last := counter.calls[len(counter.calls)-1]
	assert.True(t, strings.HasPrefix(last, "SYSTEMask {"))
	assert.Contains(t, last, "a much larger document body")
	assert.NotContains(t, last, "{full_json_str}")
}

func TestAnalyze_NoCompletePairs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CVE-2024-0001.nvd"), []byte(`{}`), 0o644))

	analyzer := New(&stubCounter{}, Options{ContextWindow: 1000}, zap.NewNop())
	_, err := analyzer.Analyze(context.Background(), dir, "sys", "{full_json_str}")
	assert.Error(t, err)
}

func TestAnalyze_MissingDirectory(t *testing.T) {
	analyzer := New(&stubCounter{}, Options{ContextWindow: 1000}, zap.NewNop())
	_, err := analyzer.Analyze(context.Background(), filepath.Join(t.TempDir(), "nope"), "sys", "{full_json_str}")
	assert.Error(t, err)
}

func TestAnalyze_InvalidJSONPairSkipped(t *testing.T) {
	dir := t.TempDir()
	writePair(t, dir, "CVE-2024-0001", "not json", `{"b":2}`)
	writePair(t, dir, "CVE-2024-0002", `{"a":1}`, `{"b":2}`)

	analyzer := New(&stubCounter{}, Options{ContextWindow: 1000}, zap.NewNop())
	analysis, err := analyzer.Analyze(context.Background(), dir, "sys", "{full_json_str}")
	require.NoError(t, err)
	assert.Equal(t, "CVE-2024-0002", analysis.LargestID)
}
