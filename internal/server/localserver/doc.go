// Package localserver serves RESP clients on a Unix domain socket.
//
// Access control is left to file system permissions on the socket path.
// Connections are handed to the same command server as TCP clients, so
// every command behaves identically on both transports.
package localserver
