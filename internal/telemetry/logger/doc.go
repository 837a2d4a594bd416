// Package logger provides structured logging for respkv.
//
// It wraps log/slog:
//
//   - logger.go: handler construction, the Logger interface and a
//     process-wide level that can change at runtime
//   - context.go: context-aware logging with request and connection IDs
//   - redact.go: sensitive attribute redaction
package logger
