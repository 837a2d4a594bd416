// Package connection provides the respkv-cli transports.
//
// Client speaks RESP to the data port over TCP or TLS. AdminClient talks
// to the admin HTTP API for snapshot operations. Manager owns both for the
// lifetime of one CLI invocation or REPL session.
package connection
