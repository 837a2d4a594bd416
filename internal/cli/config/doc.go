// Package config holds respkv-cli settings.
//
// Settings come from an optional YAML file (~/.respkv/cli.yaml by
// default), RESPKV_CLI_* environment variables and command-line flags,
// in increasing order of precedence.
package config
