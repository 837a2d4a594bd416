// Package output renders respkv-cli results.
//
// Admin API results go through a Formatter (table, json or yaml). Replies
// read from the RESP port are printed by FormatReply in the familiar
// numbered layout, or verbatim in raw mode. ProgressBar and Spinner give
// feedback for long running snapshot operations.
package output
