package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "local", cfg.Cache.Backend)
	require.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 50, cfg.Cache.MaxEntries)
	require.Equal(t, 50, cfg.Table.VisibleRows)
	require.Equal(t, time.Second/60, cfg.Batcher.FrameInterval)
	require.Equal(t, "/metrics", cfg.Metrics.Endpoint)
	require.False(t, cfg.Metrics.Enabled)
}

func TestLoadFile_YAMLWithPlaceholders(t *testing.T) {
	t.Setenv("TEST_REDIS_HOST", "cache.internal")
	path := writeConfig(t, `
server:
  port: "${TEST_PORT_UNSET:-9999}"
cache:
  backend: redis
  ttl: 90s
  redis_url: "redis://${TEST_REDIS_HOST}:6379/0"
sources:
  - id: perf-table
    url: http://localhost:5000/api/results
    kind: table
    interval: 30s
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "9999", cfg.Server.Port)
	require.Equal(t, 90*time.Second, cfg.Cache.TTL)
	require.Equal(t, "redis://cache.internal:6379/0", cfg.Cache.RedisURL)
	require.Equal(t, 50, cfg.Cache.MaxEntries, "unset fields keep defaults")
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, 30*time.Second, cfg.Sources[0].Interval)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"7000\"\n")
	t.Setenv("PORT", "7070")
	t.Setenv("CACHE_MAX_ENTRIES", "10")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("FRAME_INTERVAL", "33ms")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "7070", cfg.Server.Port)
	require.Equal(t, 10, cfg.Cache.MaxEntries)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, 33*time.Millisecond, cfg.Batcher.FrameInterval)
}

func TestLoadFile_InvalidEnv(t *testing.T) {
	t.Setenv("CACHE_TTL", "forever")
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "CACHE_TTL")
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: "redis_url",
		},
		{
			name:    "postgresql without url",
			mutate:  func(c *Config) { c.Cache.Backend = "postgresql" },
			wantErr: "postgres_url",
		},
		{
			name:    "mongodb without url",
			mutate:  func(c *Config) { c.Cache.Backend = "mongodb" },
			wantErr: "mongo_url",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "unknown cache backend",
		},
		{
			name: "bad source kind",
			mutate: func(c *Config) {
				c.Sources = []Source{{ID: "a", URL: "http://x", Kind: "pie"}}
			},
			wantErr: "kind must be table or chart",
		},
		{
			name: "duplicate source",
			mutate: func(c *Config) {
				c.Sources = []Source{
					{ID: "a", URL: "http://x", Kind: "table"},
					{ID: "a", URL: "http://y", Kind: "chart"},
				}
			},
			wantErr: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}

	require.NoError(t, Defaults().Validate())

	sqlite := Defaults()
	sqlite.Cache.Backend = "sqlite"
	require.NoError(t, sqlite.Validate())
}

func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no placeholders", input: "simple-string", expected: "simple-string"},
		{name: "simple", input: "${HOST_X}", envVars: map[string]string{"HOST_X": "a"}, expected: "a"},
		{name: "default used", input: "${MISSING_X:-fallback}", expected: "fallback"},
		{name: "default ignored", input: "${HOST_X:-fallback}", envVars: map[string]string{"HOST_X": "a"}, expected: "a"},
		{name: "unset without default", input: "x${MISSING_X}y", expected: "xy"},
		{
			name:     "multiple",
			input:    "${SCHEME_X}://${HOST_X}:${PORT_X:-80}",
			envVars:  map[string]string{"SCHEME_X": "https", "HOST_X": "example.com"},
			expected: "https://example.com:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			require.Equal(t, tt.expected, expandString(tt.input))
		})
	}
}

func TestLoadFile_Example(t *testing.T) {
	t.Setenv("API_BASE", "http://api.test")

	cfg, err := LoadFile("config.example.yaml")
	require.NoError(t, err)

	require.Equal(t, 16*time.Millisecond, cfg.Batcher.FrameInterval)
	require.True(t, cfg.Metrics.Enabled)
	require.Len(t, cfg.Sources, 2)
	require.Equal(t, "http://api.test/api/slow-queries", cfg.Sources[0].URL)
	require.Equal(t, "chart", cfg.Sources[1].Kind)
	require.Equal(t, time.Minute, cfg.Sources[1].Interval)
}
