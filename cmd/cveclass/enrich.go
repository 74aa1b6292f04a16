package main

import (
	"fmt"

	"cveclass/internal/cvss"

	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Back-fill CVSS scores into classified output files",
	Long: `Reads every <CVE_ID>.json record in the output directory, looks up the
CVSS base score in the original .nvd/.mitre source files (NVD first,
MITRE as fallback), and rewrites the record with CVSS_score and
CVSS_version set.`,
	RunE: runEnrich,
}

func init() {
	f := enrichCmd.Flags()
	f.String("json-dir", "", "directory containing the source .nvd/.mitre files")
	f.String("out-dir", "", "directory containing the classified records to update")
	f.String("log-file", "", "general warning/error log file")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	f := cmd.Flags()
	if f.Changed("json-dir") {
		cfg.JSONDir, _ = f.GetString("json-dir")
	}
	if f.Changed("out-dir") {
		cfg.OutDir, _ = f.GetString("out-dir")
	}
	if f.Changed("log-file") {
		cfg.LogFile, _ = f.GetString("log-file")
	}

	var err error
	logger, err = newLogger(cfg.LogFile)
	if err != nil {
		return err
	}

	enricher := cvss.NewEnricher(cfg.JSONDir, cfg.OutDir, logger)
	summary, err := enricher.Run()
	if err != nil {
		return err
	}

	fmt.Println(styleHeader.Render("Enrichment summary"))
	fmt.Println(styleSuccess.Render(fmt.Sprintf("  updated: %d", summary.Updated)))
	if summary.Missing > 0 {
		fmt.Println(styleWarning.Render(fmt.Sprintf("  missing CVSS data: %d", summary.Missing)))
	}
	if summary.Skipped > 0 {
		fmt.Println(styleWarning.Render(fmt.Sprintf("  skipped (no CVE_ID): %d", summary.Skipped)))
	}
	if summary.Errors > 0 {
		fmt.Println(styleFailure.Render(fmt.Sprintf("  errors: %d (see %s)", summary.Errors, cfg.LogFile)))
	}
	return nil
}
