package main

import (
	"fmt"
	"os"

	"cveclass/internal/classify"
	"cveclass/internal/config"
	"cveclass/internal/grouping"
	"cveclass/internal/inference"
	"cveclass/internal/orchestrate"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify a directory of CVE files or a single file",
	Long: `Groups .nvd/.mitre files by CVE, fans classification out across the
worker pool, and writes one <CVE_ID>.json per successful record. Records
that exhaust every attempt are listed in the failed-list file.`,
	RunE: runClassification,
}

func init() {
	f := runCmd.Flags()
	f.String("json-dir", "", "directory containing input .nvd/.mitre files")
	f.String("file", "", "single .nvd, .mitre, or .json file to process")
	f.String("out-dir", "", "directory for output JSON files")
	f.String("url", "", "chat-completions endpoint URL")
	f.String("model", "", "model name")
	f.Int("workers", 0, "maximum concurrent workers")
	f.Int("attempts", 0, "attempt budget per layer (transport and parsing)")
	f.Int("timeout", 0, "per-request timeout in seconds")
	f.Int("retry-delay", 0, "delay between attempts in seconds")
	f.String("log-file", "", "general warning/error log file")
	f.String("failed-list", "", "file listing CVE ids that failed every attempt")
	f.String("prompt-file", "", "prompt template file")
	f.String("role-file", "", "system role/persona file")
	f.String("template-file", "", "output template JSON file")
	runCmd.MarkFlagsMutuallyExclusive("json-dir", "file")
}

// applyRunFlags overlays explicitly set flags on the loaded config.
// Unset flags leave the config file / env / default values in place.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("json-dir") {
		cfg.JSONDir, _ = f.GetString("json-dir")
	}
	if f.Changed("file") {
		cfg.File, _ = f.GetString("file")
	}
	if f.Changed("out-dir") {
		cfg.OutDir, _ = f.GetString("out-dir")
	}
	if f.Changed("url") {
		cfg.URL, _ = f.GetString("url")
	}
	if f.Changed("model") {
		cfg.Model, _ = f.GetString("model")
	}
	if f.Changed("workers") {
		cfg.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("attempts") {
		cfg.Attempts, _ = f.GetInt("attempts")
	}
	if f.Changed("timeout") {
		cfg.Timeout, _ = f.GetInt("timeout")
	}
	if f.Changed("retry-delay") {
		cfg.RetryDelay, _ = f.GetInt("retry-delay")
	}
	if f.Changed("log-file") {
		cfg.LogFile, _ = f.GetString("log-file")
	}
	if f.Changed("failed-list") {
		cfg.FailedList, _ = f.GetString("failed-list")
	}
	if f.Changed("prompt-file") {
		cfg.PromptFile, _ = f.GetString("prompt-file")
	}
	if f.Changed("role-file") {
		cfg.RoleFile, _ = f.GetString("role-file")
	}
	if f.Changed("template-file") {
		cfg.TemplateFile, _ = f.GetString("template-file")
	}
}

func runClassification(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	var err error
	logger, err = newLogger(cfg.LogFile)
	if err != nil {
		return err
	}

	promptTemplate, err := os.ReadFile(cfg.PromptFile)
	if err != nil {
		return fmt.Errorf("failed to read prompt file %s: %w", cfg.PromptFile, err)
	}

	client := inference.NewClient(inference.Config{
		Endpoint: cfg.URL,
		Attempts: cfg.Attempts,
		Delay:    cfg.GetRetryDelay(),
		Timeout:  cfg.GetTimeout(),
	}, logger)

	classifier, err := classify.New(classify.Options{
		Model:        cfg.Model,
		Attempts:     cfg.Attempts,
		RetryDelay:   cfg.GetRetryDelay(),
		RoleFile:     cfg.RoleFile,
		TemplateFile: cfg.TemplateFile,
	}, client, logger)
	if err != nil {
		return err
	}

	var (
		groups  map[string]grouping.Group
		baseDir string
		mode    string
	)
	if cfg.File != "" {
		groups, baseDir, err = grouping.SingleFile(cfg.File)
		if err != nil {
			return err
		}
		mode = "single file"
	} else {
		groups, err = grouping.ScanDirectory(cfg.JSONDir)
		if err != nil {
			return err
		}
		baseDir = cfg.JSONDir
		mode = "directory"
	}

	if len(groups) == 0 {
		fmt.Println("No valid input found.")
		return nil
	}

	fmt.Println(styleHeader.Render(fmt.Sprintf("Classifying %d CVE group(s) with %d worker(s)", len(groups), cfg.Workers)))
	fmt.Println(styleMuted.Render(fmt.Sprintf("mode: %s | model: %s | output: %s | attempts: %d", mode, cfg.Model, cfg.OutDir, cfg.Attempts)))

	runner := orchestrate.New(classifier, orchestrate.Options{
		Workers:        cfg.Workers,
		BaseDir:        baseDir,
		OutDir:         cfg.OutDir,
		FailedListPath: cfg.FailedList,
		PromptTemplate: string(promptTemplate),
	}, logger)
	runner.OnProgress = func(p orchestrate.Progress) {
		line := fmt.Sprintf("[%d/%d] %s", p.Done, p.Total, p.LastID)
		if p.Failed > 0 {
			line += styleFailure.Render(fmt.Sprintf("  failed:%d", p.Failed))
		}
		if p.Skipped > 0 {
			line += styleWarning.Render(fmt.Sprintf("  skipped:%d", p.Skipped))
		}
		fmt.Fprintf(os.Stderr, "\r\033[K%s", line)
	}

	summary, err := runner.Run(cmd.Context(), groups)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		fmt.Println(styleFailure.Render(fmt.Sprintf("Done: %d saved, %d failed.", summary.Succeeded, summary.Failed)))
		fmt.Println(styleMuted.Render(fmt.Sprintf("Failed ids are listed in %s; see %s for details.", cfg.FailedList, cfg.LogFile)))
	} else {
		fmt.Println(styleSuccess.Render(fmt.Sprintf("Done: all %d record(s) saved with 0 failures.", summary.Succeeded)))
	}
	if summary.Skipped > 0 {
		fmt.Println(styleWarning.Render(fmt.Sprintf("%d group(s) skipped: no readable source files (see %s).", summary.Skipped, cfg.LogFile)))
	}

	return nil
}
