// Package tlsroots builds TLS configurations for the RESP listener, the
// replica link and the CLI.
//
//   - roots.go: CA pools and server/client tls.Config builders
//   - watcher.go: certificate hot reload via fsnotify
//
// A server certificate is served through Watcher.GetCertificate, so
// replacing the files on disk takes effect for new handshakes without a
// restart.
package tlsroots
