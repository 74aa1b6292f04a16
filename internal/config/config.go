// Package config holds the run configuration. Precedence, lowest to
// highest: built-in defaults, JSON config file, environment variables,
// explicitly set CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultConfigPath is probed when no --config flag is given; a missing
// file at this path is not worth a warning.
const DefaultConfigPath = "config.json"

// Config holds all cveclass settings. Timeout and RetryDelay are whole
// seconds, matching the config file and flag units.
type Config struct {
	// Input selection; File and JSONDir are mutually exclusive.
	JSONDir string `json:"json_dir"`
	File    string `json:"file"`

	OutDir string `json:"out_dir"`

	// Model server.
	URL   string `json:"url"`
	Model string `json:"model"`

	// Orchestration.
	Workers    int `json:"workers"`
	Attempts   int `json:"attempts"`
	Timeout    int `json:"timeout"`
	RetryDelay int `json:"retry_delay"`

	// Files.
	LogFile      string `json:"log_file"`
	FailedList   string `json:"failed_list"`
	PromptFile   string `json:"prompt_file"`
	RoleFile     string `json:"role_file"`
	TemplateFile string `json:"template_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		JSONDir:      "json",
		OutDir:       "output",
		URL:          "http://127.0.0.1:11434/v1/chat/completions",
		Model:        "gemma3:12b",
		Workers:      2,
		Attempts:     3,
		Timeout:      120,
		RetryDelay:   2,
		LogFile:      "cve_processing_errors.log",
		FailedList:   "failed_cves.txt",
		PromptFile:   "text/prompt",
		RoleFile:     "text/role",
		TemplateFile: "text/output_template.json",
	}
}

// DefaultWithEnv returns the defaults with environment overrides
// applied, for callers recovering from an unusable config file.
func DefaultWithEnv() *Config {
	cfg := Default()
	cfg.applyEnvOverrides()
	return cfg
}

// Load reads the JSON config file over the defaults and applies
// environment overrides. A missing file yields the defaults; a file that
// exists but does not parse is an error (the caller decides whether to
// abort or continue on defaults — per-record work has not started yet).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CVECLASS_URL"); url != "" {
		c.URL = url
	}
	if model := os.Getenv("CVECLASS_MODEL"); model != "" {
		c.Model = model
	}
	if dir := os.Getenv("CVECLASS_OUT_DIR"); dir != "" {
		c.OutDir = dir
	}
	if workers := os.Getenv("CVECLASS_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			c.Workers = n
		}
	}
}

// GetTimeout returns the per-request timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetRetryDelay returns the inter-attempt delay as a duration.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// Validate checks the configuration before any work is dispatched.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("model server URL not configured")
	}
	if c.Model == "" {
		return fmt.Errorf("model name not configured")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got %d", c.Attempts)
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", c.Timeout)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %d", c.RetryDelay)
	}
	return nil
}
