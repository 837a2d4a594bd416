package rdb

import "hash/crc64"

// jonesPoly is the bit-reversed CRC-64/Jones polynomial.
const jonesPoly = 0x95AC9329AC4BC9B5

var jonesTable = crc64.MakeTable(jonesPoly)

// crcUpdate continues a CRC-64/Jones computation (zero initial value, no
// final xor). crc64.Update inverts on entry and exit, so the state is
// inverted around the call.
func crcUpdate(crc uint64, p []byte) uint64 {
	return ^crc64.Update(^crc, jonesTable, p)
}

// Checksum returns the CRC-64/Jones of data as used in the RDB trailer.
func Checksum(data []byte) uint64 {
	return crcUpdate(0, data)
}
