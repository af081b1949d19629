// ABOUTME: Configuration loading and parsing for converse-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete converse-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Router    RouterConfig    `yaml:"router"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// RouterConfig holds route fan-out tuning
type RouterConfig struct {
	QueryTimeout time.Duration `yaml:"-"`

	// AggregationPenalty scales merged-answer confidence when more than one
	// source contributed. Must stay in (0, 1].
	AggregationPenalty float64 `yaml:"aggregation_penalty"`

	// Raw string value for YAML unmarshaling
	QueryTimeoutRaw string `yaml:"query_timeout"`
}

// KnowledgeConfig holds knowledge store and cache configuration
type KnowledgeConfig struct {
	CacheTTL time.Duration `yaml:"-"`

	// SeedDir points at a directory of TOML seed packs. Empty means the
	// embedded default pack.
	SeedDir      string `yaml:"seed_dir"`
	CacheMaxSize int    `yaml:"cache_max_size"`

	// Raw string value for YAML unmarshaling
	CacheTTLRaw string `yaml:"cache_ttl"`
}

// ArchiveConfig holds snapshot archive configuration
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultHTTPAddr           = "localhost:8420"
	DefaultQueryTimeout       = 10 * time.Second
	DefaultAggregationPenalty = 0.9
	DefaultCacheTTL           = 5 * time.Minute
	DefaultCacheMaxSize       = 256
	DefaultArchivePath        = "converse.db"
)

// DefaultConfig returns the built-in configuration used when no config file
// exists. It validates cleanly.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: DefaultHTTPAddr,
		},
		Router: RouterConfig{
			QueryTimeout:       DefaultQueryTimeout,
			AggregationPenalty: DefaultAggregationPenalty,
		},
		Knowledge: KnowledgeConfig{
			CacheTTL:     DefaultCacheTTL,
			CacheMaxSize: DefaultCacheMaxSize,
		},
		Archive: ArchiveConfig{
			Path: DefaultArchivePath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields left unset fall back to DefaultConfig values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills fields the file left unset. Raw duration strings are
// the unset markers for durations; zero marks the numeric fields.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Router.QueryTimeoutRaw == "" {
		c.Router.QueryTimeout = DefaultQueryTimeout
	}
	if c.Router.AggregationPenalty == 0 {
		c.Router.AggregationPenalty = DefaultAggregationPenalty
	}
	if c.Knowledge.CacheTTLRaw == "" {
		c.Knowledge.CacheTTL = DefaultCacheTTL
	}
	if c.Knowledge.CacheMaxSize == 0 {
		c.Knowledge.CacheMaxSize = DefaultCacheMaxSize
	}
	if c.Archive.Path == "" {
		c.Archive.Path = DefaultArchivePath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields hold usable values.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Router.QueryTimeout <= 0 {
		return fmt.Errorf("router.query_timeout must be positive, got %s", c.Router.QueryTimeout)
	}
	if c.Router.AggregationPenalty <= 0 || c.Router.AggregationPenalty > 1 {
		return fmt.Errorf("router.aggregation_penalty must be in (0, 1], got %g", c.Router.AggregationPenalty)
	}

	if c.Knowledge.CacheTTL <= 0 {
		return fmt.Errorf("knowledge.cache_ttl must be positive, got %s", c.Knowledge.CacheTTL)
	}
	if c.Knowledge.CacheMaxSize <= 0 {
		return fmt.Errorf("knowledge.cache_max_size must be positive, got %d", c.Knowledge.CacheMaxSize)
	}

	if c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug|info|warn|error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Router.QueryTimeoutRaw != "" {
		cfg.Router.QueryTimeout, err = time.ParseDuration(cfg.Router.QueryTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing query_timeout %q: %w", cfg.Router.QueryTimeoutRaw, err)
		}
	}

	if cfg.Knowledge.CacheTTLRaw != "" {
		cfg.Knowledge.CacheTTL, err = time.ParseDuration(cfg.Knowledge.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache_ttl %q: %w", cfg.Knowledge.CacheTTLRaw, err)
		}
	}

	return nil
}
