// Package config provides the respkv server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default configuration values
//   - verify.go: validation
//   - sanitize.go: masking of secrets before the config is logged
//
// Configuration is loaded via internal/infra/confloader from defaults, a
// YAML file, RESPKV_ environment variables and command line flags.
package config
