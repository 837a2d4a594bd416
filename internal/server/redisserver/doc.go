// Package redisserver implements the RESP server.
//
// One goroutine serves each connection. Frames are decoded with pkg/resp
// from a per-connection accumulator, so partial TCP reads are buffered
// until a whole frame is present. Every command runs under the storage
// engine's execution lock, which gives commands the run-to-completion
// semantics of a single-threaded server.
//
// Blocking commands (BLPOP, XREAD BLOCK, WAIT) register a waiter while
// holding the lock and hand back a wait function; the connection goroutine
// runs it after the lock is released.
//
// Supported commands:
//   - PING, ECHO, QUIT, COMMAND, SELECT
//   - GET, SET, DEL, EXISTS, EXPIRE, TTL, PTTL, INCR, INCRBY, DECR, DECRBY,
//     TYPE, KEYS, DBSIZE, FLUSHALL
//   - LPUSH, RPUSH, LPOP, LRANGE, LLEN, BLPOP
//   - XADD, XLEN, XRANGE, XREVRANGE, XREAD
//   - MULTI, EXEC, DISCARD, WATCH
//   - INFO, CONFIG GET, SAVE, BGSAVE, LASTSAVE
//   - REPLCONF, PSYNC, WAIT
//   - SUBSCRIBE, UNSUBSCRIBE, PUBLISH
package redisserver
