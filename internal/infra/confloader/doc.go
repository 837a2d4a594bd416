// Package confloader loads layered configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Command line flags (LoadMap)
//  2. RESPKV_ environment variables
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Environment keys use a double underscore between sections so that
// single underscores survive in key names:
//
//	RESPKV_SERVER__READ_TIMEOUT=10s  ->  server.read_timeout
//
// Watcher reports changes to the configuration file so callers can apply
// the settings that are safe to change at runtime.
package confloader
