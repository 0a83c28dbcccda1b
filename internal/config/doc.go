// Package config handles configuration loading for groupchat-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The package applies sensible defaults for every field it
// doesn't require the operator to set.
//
// # Configuration File
//
// Default location (the first that applies):
//
//  1. Path from GROUPCHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/groupchat/gateway.yaml
//  3. ~/.config/groupchat/gateway.yaml
//  4. ./gateway.yaml, when the home directory cannot be determined
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bus:
//	  url: "${NATS_URL}"
//
// Syntax: ${VAR_NAME}.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	registry:
//	  session_ceiling: "15m"
//
// Supported units: ns, us, ms, s, m, h.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Channel Service API and SSE/WS subscriptions
//
// Database:
//
//	database:
//	  path: "/var/lib/groupchat/gateway.db"
//
// Bus:
//
//	bus:
//	  url: "nats://localhost:4222"
//
// Registry:
//
//	registry:
//	  session_ceiling: "15m"   # defaults to 15m, matching the spec's fixed ceiling
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(configPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
