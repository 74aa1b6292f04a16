// cveclass classifies CVE records by sending each merged NVD/MITRE pair
// to a local model server and persisting the structured classification it
// answers with.
package main

import (
	"fmt"
	"os"

	"cveclass/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Logger, built per command once the log file path is known.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cveclass",
	Short: "Classify CVE records with a local LLM",
	Long: `cveclass pairs NVD and MITRE exports of the same vulnerability, sends
each merged record to an OpenAI-compatible model server, and writes one
classified JSON file per CVE.

The model is treated as an unreliable collaborator: every request is
retried at the transport layer, every response is re-requested when its
JSON cannot be extracted, and failures are recorded rather than fatal.`,
	Version: "1.2.0",
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultConfigPath, "path to JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cveclass version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cveclass %s\n", rootCmd.Version)
	},
}

// loadConfig loads the config file under the defaults. A file that exists
// but cannot be parsed is downgraded to a warning and the defaults plus
// environment overrides are kept, so a stale config never blocks an
// explicit CLI invocation.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (continuing with defaults)\n", err)
		cfg = config.DefaultWithEnv()
	}
	return cfg
}

// newLogger builds the run logger: warnings and up to the log file and
// stderr, everything from debug up when --verbose is set.
func newLogger(logFile string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zcfg.OutputPaths = []string{"stderr"}
	if logFile != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, logFile)
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}
