package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Telemetry.Metrics.AllowList = append([]string(nil), cfg.Telemetry.Metrics.AllowList...)

	if sanitized.Storage.Archive.Passphrase != "" {
		sanitized.Storage.Archive.Passphrase = maskSecret(sanitized.Storage.Archive.Passphrase)
	}

	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
