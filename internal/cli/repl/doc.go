// Package repl is the interactive mode of respkv-cli.
//
// Lines are split with shell-like quoting, sent to the server as one
// command each and the reply printed in the numbered layout. History is
// kept in a file between sessions.
package repl
