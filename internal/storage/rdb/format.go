package rdb

import (
	"errors"
	"time"
)

// Magic and version written by the encoder.
const (
	Magic   = "REDIS"
	Version = "0011"
)

// Opcodes.
const (
	opFunction     = 0xF5
	opModuleAux    = 0xF7
	opIdle         = 0xF8
	opFreq         = 0xF9
	opAux          = 0xFA
	opResizeDB     = 0xFB
	opExpireTimeMs = 0xFC
	opExpireTime   = 0xFD
	opSelectDB     = 0xFE
	opEOF          = 0xFF
)

// Value types.
const (
	typeString = 0x00
)

// Length encodings selected by the top two bits of the first byte.
const (
	len6Bit  = 0
	len14Bit = 1
	len32Bit = 0x80
	len64Bit = 0x81
	lenEnc   = 3
)

// Special string encodings (lenEnc).
const (
	encInt8  = 0
	encInt16 = 1
	encInt32 = 2
	encLZF   = 3
)

var (
	ErrInvalidMagic       = errors.New("rdb: invalid magic header")
	ErrUnsupportedType    = errors.New("rdb: unsupported value type")
	ErrUnsupportedOpcode  = errors.New("rdb: unsupported opcode")
	ErrInvalidEncoding    = errors.New("rdb: invalid string encoding")
	ErrCorruptCompression = errors.New("rdb: corrupt lzf data")
)

// Record is one string key loaded from or written to a snapshot.
type Record struct {
	DB        int
	Key       string
	Value     string
	ExpiresAt time.Time // zero means no expiry
}

// Snapshot is the decoded content of an RDB file.
type Snapshot struct {
	Version  string
	Aux      map[string]string
	Records  []Record
	Skipped  int    // records dropped because they had already expired
	Checksum uint64 // trailer as stored, 0 when absent or disabled
	// ChecksumOK is false only when a non-zero stored checksum does not
	// match the file content.
	ChecksumOK bool
}
