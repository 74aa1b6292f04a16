package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://127.0.0.1:11434/v1/chat/completions", cfg.URL)
	assert.Equal(t, "gemma3:12b", cfg.Model)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 3, cfg.Attempts)
	assert.Equal(t, 120*time.Second, cfg.GetTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetRetryDelay())
	assert.Equal(t, "failed_cves.txt", cfg.FailedList)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"model": "llama3:8b",
		"workers": 6,
		"retry_delay": 5
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "llama3:8b", cfg.Model)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.GetRetryDelay())
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Attempts)
	assert.Equal(t, "http://127.0.0.1:11434/v1/chat/completions", cfg.URL)
}

func TestLoad_Unparsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model": "from-file", "workers": 4}`), 0o644))

	t.Setenv("CVECLASS_MODEL", "from-env")
	t.Setenv("CVECLASS_URL", "http://example.com/v1/chat/completions")
	t.Setenv("CVECLASS_OUT_DIR", "/tmp/out")
	t.Setenv("CVECLASS_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, "http://example.com/v1/chat/completions", cfg.URL)
	assert.Equal(t, "/tmp/out", cfg.OutDir)
	assert.Equal(t, 8, cfg.Workers)
}

func TestDefaultWithEnv(t *testing.T) {
	t.Setenv("CVECLASS_MODEL", "from-env")
	t.Setenv("CVECLASS_WORKERS", "8")

	cfg := DefaultWithEnv()
	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, 8, cfg.Workers)
	// Everything else keeps its default.
	assert.Equal(t, 3, cfg.Attempts)
}

func TestLoad_BadWorkersEnvIgnored(t *testing.T) {
	t.Setenv("CVECLASS_WORKERS", "many")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.URL = "" }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero attempts", func(c *Config) { c.Attempts = 0 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative retry delay", func(c *Config) { c.RetryDelay = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
