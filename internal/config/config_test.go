// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  http_addr: "0.0.0.0:8420"

router:
  query_timeout: "45s"
  aggregation_penalty: 0.8

knowledge:
  seed_dir: "./seeds"
  cache_ttl: "2m"
  cache_max_size: 64

archive:
  path: "./test.db"

logging:
  level: "debug"
  format: "json"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify server config
	if cfg.Server.HTTPAddr != "0.0.0.0:8420" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8420")
	}

	// Verify router config with duration parsing
	if cfg.Router.QueryTimeout != 45*time.Second {
		t.Errorf("Router.QueryTimeout = %v, want %v", cfg.Router.QueryTimeout, 45*time.Second)
	}
	if cfg.Router.AggregationPenalty != 0.8 {
		t.Errorf("Router.AggregationPenalty = %v, want %v", cfg.Router.AggregationPenalty, 0.8)
	}

	// Verify knowledge config
	if cfg.Knowledge.SeedDir != "./seeds" {
		t.Errorf("Knowledge.SeedDir = %q, want %q", cfg.Knowledge.SeedDir, "./seeds")
	}
	if cfg.Knowledge.CacheTTL != 2*time.Minute {
		t.Errorf("Knowledge.CacheTTL = %v, want %v", cfg.Knowledge.CacheTTL, 2*time.Minute)
	}
	if cfg.Knowledge.CacheMaxSize != 64 {
		t.Errorf("Knowledge.CacheMaxSize = %d, want %d", cfg.Knowledge.CacheMaxSize, 64)
	}

	// Verify archive config
	if cfg.Archive.Path != "./test.db" {
		t.Errorf("Archive.Path = %q, want %q", cfg.Archive.Path, "./test.db")
	}

	// Verify logging config
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// A minimal file: everything unset falls back to defaults
	configContent := `
archive:
  path: "./converse.db"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want default %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Router.QueryTimeout != DefaultQueryTimeout {
		t.Errorf("Router.QueryTimeout = %v, want default %v", cfg.Router.QueryTimeout, DefaultQueryTimeout)
	}
	if cfg.Router.AggregationPenalty != DefaultAggregationPenalty {
		t.Errorf("Router.AggregationPenalty = %v, want default %v", cfg.Router.AggregationPenalty, DefaultAggregationPenalty)
	}
	if cfg.Knowledge.CacheTTL != DefaultCacheTTL {
		t.Errorf("Knowledge.CacheTTL = %v, want default %v", cfg.Knowledge.CacheTTL, DefaultCacheTTL)
	}
	if cfg.Knowledge.CacheMaxSize != DefaultCacheMaxSize {
		t.Errorf("Knowledge.CacheMaxSize = %d, want default %d", cfg.Knowledge.CacheMaxSize, DefaultCacheMaxSize)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want default %q", cfg.Logging.Format, "text")
	}
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.Router.AggregationPenalty != 0.9 {
		t.Errorf("default aggregation penalty = %v, want 0.9", cfg.Router.AggregationPenalty)
	}
	if cfg.Router.QueryTimeout != 10*time.Second {
		t.Errorf("default query timeout = %v, want 10s", cfg.Router.QueryTimeout)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	// Set environment variables for testing
	t.Setenv("TEST_CONVERSE_ADDR", "127.0.0.1:9000")
	t.Setenv("TEST_CONVERSE_DB", "/tmp/converse-test.db")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  http_addr: "${TEST_CONVERSE_ADDR}"

archive:
  path: "${TEST_CONVERSE_DB}"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify env var expansion
	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Archive.Path != "/tmp/converse-test.db" {
		t.Errorf("Archive.Path = %q, want %q", cfg.Archive.Path, "/tmp/converse-test.db")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	// Ensure the env var is NOT set; the archive path then collapses to the
	// default rather than staying as the literal pattern
	os.Unsetenv("UNSET_CONVERSE_VAR")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
archive:
  path: "${UNSET_CONVERSE_VAR}"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Archive.Path != DefaultArchivePath {
		t.Errorf("Archive.Path = %q, want default %q", cfg.Archive.Path, DefaultArchivePath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  http_addr: "0.0.0.0:8420"
  invalid yaml here [
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("error = %v, want parsing config file error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
router:
  query_timeout: "not-a-duration"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "query_timeout") {
		t.Errorf("error = %v, want query_timeout parse error", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
		want   string
	}{
		{
			name:   "zero query timeout",
			mutate: func(cfg *Config) { cfg.Router.QueryTimeout = 0 },
			want:   "query_timeout",
		},
		{
			name:   "penalty above one",
			mutate: func(cfg *Config) { cfg.Router.AggregationPenalty = 1.5 },
			want:   "aggregation_penalty",
		},
		{
			name:   "negative penalty",
			mutate: func(cfg *Config) { cfg.Router.AggregationPenalty = -0.1 },
			want:   "aggregation_penalty",
		},
		{
			name:   "negative cache size",
			mutate: func(cfg *Config) { cfg.Knowledge.CacheMaxSize = -1 },
			want:   "cache_max_size",
		},
		{
			name:   "empty archive path",
			mutate: func(cfg *Config) { cfg.Archive.Path = "" },
			want:   "archive.path",
		},
		{
			name:   "bad logging level",
			mutate: func(cfg *Config) { cfg.Logging.Level = "verbose" },
			want:   "logging.level",
		},
		{
			name:   "bad logging format",
			mutate: func(cfg *Config) { cfg.Logging.Format = "xml" },
			want:   "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ExplicitZeroDurationRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// An explicit "0s" is not the same as unset: it fails validation instead
	// of silently becoming the default
	configContent := `
router:
  query_timeout: "0s"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for zero timeout, got nil")
	}
	if !strings.Contains(err.Error(), "query_timeout") {
		t.Errorf("error = %v, want query_timeout validation error", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
