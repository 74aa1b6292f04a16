// Package orchestrate fans classification work out across a bounded
// worker pool and commits each result as it completes.
//
// Workers only ever return values over the results channel; the failure
// list, counters, and all file writes are owned by the single draining
// goroutine, so no shared state needs locking.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cveclass/internal/classify"
	"cveclass/internal/grouping"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures one orchestration run.
type Options struct {
	// Workers bounds the number of in-flight classifications, which is
	// also the number of concurrent requests against the model server.
	Workers int

	// BaseDir is the directory the group filenames are relative to.
	BaseDir string

	// OutDir receives one <CVE_ID>.json file per successful record.
	OutDir string

	// FailedListPath receives the ids that exhausted all attempts,
	// one per line, written only when the run had failures.
	FailedListPath string

	// PromptTemplate is the raw prompt text with its substitution
	// placeholder still in place.
	PromptTemplate string
}

// Progress is a snapshot handed to the progress callback after each
// completed group.
type Progress struct {
	Done    int
	Total   int
	Failed  int
	Skipped int
	LastID  string
}

// Summary is the final accounting for a run.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	FailedIDs []string
}

// Runner executes one batch of groups against a shared classifier.
type Runner struct {
	classifier *classify.Classifier
	opts       Options
	logger     *zap.Logger

	// OnProgress, when set, is called from the draining goroutine after
	// every completion. It must not block for long.
	OnProgress func(Progress)
}

// New creates a Runner. Workers below 1 are clamped to 1.
func New(classifier *classify.Classifier, opts Options, logger *zap.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		classifier: classifier,
		opts:       opts,
		logger:     logger,
	}
}

// outcome is what a worker reports back. A nil result means the group
// was skipped because no side of it could be loaded.
type outcome struct {
	base   string
	result *classify.Result
}

// Run submits every group to the pool, persists successes in completion
// order, and flushes the failure list at the end. Per-record failures
// never abort the run; only setup and final bookkeeping errors do.
func (r *Runner) Run(ctx context.Context, groups map[string]grouping.Group) (*Summary, error) {
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID))

	if err := os.MkdirAll(r.opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	results := make(chan outcome, len(groups))

	var eg errgroup.Group
	eg.SetLimit(r.opts.Workers)
	go func() {
		for base, group := range groups {
			eg.Go(func() error {
				defer func() {
					if p := recover(); p != nil {
						logger.Error("worker panic",
							zap.String("group", base),
							zap.Any("panic", p))
						results <- outcome{base: base}
					}
				}()
				results <- outcome{base: base, result: r.processGroup(ctx, logger, base, group)}
				return nil
			})
		}
		eg.Wait() //nolint:errcheck // workers never return errors
		close(results)
	}()

	summary := &Summary{RunID: runID, Total: len(groups)}
	done := 0

	for out := range results {
		done++
		switch {
		case out.result == nil:
			summary.Skipped++
		case out.result.IsError():
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, out.result.ID())
		default:
			r.persist(logger, out.result)
			summary.Succeeded++
		}
		if r.OnProgress != nil {
			r.OnProgress(Progress{
				Done:    done,
				Total:   summary.Total,
				Failed:  summary.Failed,
				Skipped: summary.Skipped,
				LastID:  out.base,
			})
		}
	}

	if len(summary.FailedIDs) > 0 {
		if err := r.writeFailedList(summary.FailedIDs); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// processGroup loads whichever sides of the group are present and runs
// the classifier on the merged document. An unreadable side is only a
// warning; a group with no readable side at all is skipped entirely —
// it produces neither an output file nor a failure-list entry.
func (r *Runner) processGroup(ctx context.Context, logger *zap.Logger, base string, group grouping.Group) *classify.Result {
	combined := make(map[string]any)

	for _, tag := range []string{grouping.SourceNVD, grouping.SourceMITRE} {
		name, ok := group[tag]
		if !ok {
			continue
		}
		path := filepath.Join(r.opts.BaseDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed reading source file", zap.String("file", name), zap.Error(err))
			continue
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			logger.Warn("failed parsing source file", zap.String("file", name), zap.Error(err))
			continue
		}
		combined[tag] = doc
	}

	if len(combined) == 0 {
		return nil
	}

	return r.classifier.Classify(ctx, combined, r.opts.PromptTemplate, base)
}

// persist writes one output file, syncing before returning so a later
// crash cannot leave an acknowledged result unwritten. The write is not
// atomic-rename based: a kill mid-write can still truncate this file.
func (r *Runner) persist(logger *zap.Logger, result *classify.Result) {
	path := filepath.Join(r.opts.OutDir, result.ID()+".json")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Warn("failed serializing result", zap.String("cve", result.ID()), zap.Error(err))
		return
	}

	f, err := os.Create(path)
	if err != nil {
		logger.Warn("failed writing output", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		logger.Warn("failed writing output", zap.String("path", path), zap.Error(err))
		return
	}
	if err := f.Sync(); err != nil {
		logger.Warn("failed syncing output", zap.String("path", path), zap.Error(err))
	}
}

// writeFailedList flushes the accumulated failure ids, one per line.
func (r *Runner) writeFailedList(ids []string) error {
	content := strings.Join(ids, "\n") + "\n"
	if err := os.WriteFile(r.opts.FailedListPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed writing failure list: %w", err)
	}
	return nil
}
