// Package resp implements the RESP2 wire format.
//
// Decoding is incremental: every Parse function takes the bytes received so
// far and reports either a complete message with the exact number of bytes it
// occupied, or n == 0 with a nil error when more input is needed. Callers keep
// one accumulating buffer and slice off consumed bytes, which lets TCP streams
// deliver messages split at arbitrary points.
//
// Encoding is a set of pure Append functions plus Value types that render
// themselves with AppendRESP.
package resp
