// Package rdb encodes and decodes the RDB snapshot file format.
//
// Only plain string values are supported. The decoder accepts any
// "REDISnnnn" header and understands auxiliary fields, database selectors,
// resize hints, both expiry opcodes and every length/string encoding
// including LZF-compressed strings. Any other value type is rejected.
//
// The encoder writes version 0011 with the CRC-64 (Jones) trailer.
package rdb
