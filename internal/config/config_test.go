package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, validateConfig(GetDefaults()))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
pipeline:
  batch_size: 2500
pattern:
  strategy: multiset
scan:
  policy: permissive
  column: 0
runs:
  retention: 10m
  max_matches: 500
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2500, cfg.Pipeline.BatchSize)
	assert.Equal(t, "multiset", cfg.Pattern.Strategy)
	assert.Equal(t, "permissive", cfg.Scan.Policy)
	assert.Equal(t, 0, cfg.Scan.Column)
	assert.Equal(t, 10*time.Minute, cfg.Runs.Retention)
	assert.Equal(t, int64(500), cfg.Runs.MaxMatches)

	// untouched sections keep their defaults
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, []string{"*"}, cfg.WebSocket.AllowedOrigins)
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")
	t.Setenv("NUMSIEVE_PIPELINE_BATCH_SIZE", "123")
	t.Setenv("NUMSIEVE_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 123, cfg.Pipeline.BatchSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"level", func(c *Config) { c.Logging.Level = "trace" }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
		{"batch", func(c *Config) { c.Pipeline.BatchSize = 0 }},
		{"workers", func(c *Config) { c.Pipeline.Workers = -1 }},
		{"strategy", func(c *Config) { c.Pattern.Strategy = "fuzzy" }},
		{"chunk", func(c *Config) { c.Pattern.ChunkSize = 0 }},
		{"policy", func(c *Config) { c.Scan.Policy = "lenient" }},
		{"column", func(c *Config) { c.Scan.Column = -2 }},
		{"rate", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }},
		{"runs", func(c *Config) { c.Runs.MaxActive = 0 }},
		{"max matches", func(c *Config) { c.Runs.MaxMatches = -1 }},
		{"redis", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"history", func(c *Config) { c.History.Enabled = true; c.History.DSN = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.edit(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestDump(t *testing.T) {
	out, err := Dump(GetDefaults())
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Contains(t, back, "pipeline")
	assert.Contains(t, string(out), "strategy: windowed")
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  batch_size: 100\n")

	reloaded := make(chan int, 16)
	require.NoError(t, Watch(path, func(c *Config) {
		select {
		case reloaded <- c.Pipeline.BatchSize:
		default:
		}
	}, nil))

	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  batch_size: 200\n"), 0o644))

	// an editor may produce several events; wait for the final content
	timeout := time.After(5 * time.Second)
	for {
		select {
		case size := <-reloaded:
			if size == 200 {
				return
			}
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}

func TestWatchWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	t.Setenv("HOME", dir)
	assert.Error(t, Watch("", func(*Config) {}, nil))
}
