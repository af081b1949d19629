// Package config handles configuration loading for converse-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CONVERSE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/converse/config.yaml
//  3. ~/.config/converse/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	archive:
//	  path: "${CONVERSE_DATA_DIR}/converse.db"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	router:
//	  query_timeout: "10s"
//	knowledge:
//	  cache_ttl: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8420"  # API, console, and health endpoints
//
// Router fan-out:
//
//	router:
//	  query_timeout: "10s"
//	  aggregation_penalty: 0.9
//
// Knowledge store:
//
//	knowledge:
//	  seed_dir: "/etc/converse/seeds"  # empty means the embedded pack
//	  cache_ttl: "5m"
//	  cache_max_size: 256
//
// Snapshot archive:
//
//	archive:
//	  path: "/var/lib/converse/converse.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Duration format validity and positivity
//   - Aggregation penalty range (0, 1]
//   - Cache size positivity
//   - Logging level and format values
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/converse/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Built-in defaults when no file exists:
//
//	cfg := config.DefaultConfig()
package config
