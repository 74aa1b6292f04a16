package cvss

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cveclass/internal/classify"

	"go.uber.org/zap"
)

// Source tags recorded in the CVSS_version label.
const (
	sourceNVD   = "nvd"
	sourceMITRE = "mitre"
)

// Enricher rewrites classified output files with a CVSS score pulled
// from the original source feeds. NVD is authoritative; MITRE is the
// fallback when NVD carries no score.
type Enricher struct {
	jsonDir string
	outDir  string
	logger  *zap.Logger
}

// EnrichSummary is the final accounting for one enrichment pass.
// Skipped counts records without a CVE_ID; Errors counts unreadable or
// unwritable files.
type EnrichSummary struct {
	Updated int
	Missing int
	Skipped int
	Errors  int
}

// NewEnricher creates an enricher reading sources from jsonDir and
// rewriting records in outDir.
func NewEnricher(jsonDir, outDir string, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{jsonDir: jsonDir, outDir: outDir, logger: logger}
}

// Run walks every .json record in the output directory once, updating
// CVSS_score and CVSS_version in place. Records without a CVE_ID are
// reported and skipped, unreadable files counted as errors; nothing
// here is fatal.
func (e *Enricher) Run() (*EnrichSummary, error) {
	if info, err := os.Stat(e.jsonDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source directory not found: %s", e.jsonDir)
	}
	if info, err := os.Stat(e.outDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("output directory not found: %s", e.outDir)
	}

	paths, err := filepath.Glob(filepath.Join(e.outDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list output directory: %w", err)
	}

	summary := &EnrichSummary{}
	for _, path := range paths {
		if err := e.enrichFile(path, summary); err != nil {
			e.logger.Warn("enrichment failed", zap.String("file", filepath.Base(path)), zap.Error(err))
			summary.Errors++
		}
	}
	return summary, nil
}

func (e *Enricher) enrichFile(path string, summary *EnrichSummary) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Decode through the ordered result type so the rewrite keeps the
	// template field order and only appends the CVSS keys.
	record, err := classify.DecodeResult(data)
	if err != nil {
		return err
	}

	id := record.ID()
	if id == "" {
		e.logger.Warn("record has no CVE_ID, skipping", zap.String("file", filepath.Base(path)))
		summary.Skipped++
		return nil
	}

	score, version, source, found := e.lookupScore(id)
	if !found {
		e.logger.Warn("no CVSS score found", zap.String("cve", id))
		summary.Missing++
		return nil
	}

	record.Set("CVSS_score", score)
	record.Set("CVSS_version", Label(version, source))

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}

	e.logger.Info("record enriched",
		zap.String("cve", id),
		zap.Float64("score", score),
		zap.String("version", Label(version, source)))
	summary.Updated++
	return nil
}

// lookupScore checks the NVD side first, then MITRE.
func (e *Enricher) lookupScore(id string) (score float64, version, source string, found bool) {
	if doc := e.loadSource(id + ".nvd"); doc != nil {
		if s, v, ok := NVDBaseScore(doc); ok {
			return s, v, sourceNVD, true
		}
	}
	if doc := e.loadSource(id + ".mitre"); doc != nil {
		if s, v, ok := MITREBaseScore(doc); ok {
			return s, v, sourceMITRE, true
		}
	}
	return 0, "", "", false
}

func (e *Enricher) loadSource(name string) map[string]any {
	data, err := os.ReadFile(filepath.Join(e.jsonDir, name))
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		e.logger.Warn("failed parsing source file", zap.String("file", name), zap.Error(err))
		return nil
	}
	return doc
}
