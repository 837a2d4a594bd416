// Package command defines the respkv-cli command tree.
//
// Without a subcommand the arguments are sent to the server as one RESP
// command, or an interactive session starts when there are none. The
// admin, rdb and settings subcommands cover snapshot management through
// the admin API, offline inspection of RDB files and the CLI's own
// configuration.
package command
