package rdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"
	"time"
)

// EncodeOptions configures Encode.
type EncodeOptions struct {
	// Now is the reference time for skipping expired records and for the
	// ctime aux field. Zero means time.Now().
	Now time.Time

	// Aux overrides or extends the default auxiliary fields.
	Aux map[string]string
}

// Encode writes records as an RDB stream. Records whose expiry is not after
// Now are left out.
func Encode(w io.Writer, records []Record, opts EncodeOptions) error {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	e := &encoder{w: bufio.NewWriter(w)}
	e.write([]byte(Magic + Version))

	aux := map[string]string{
		"redis-ver":  "7.2.0",
		"redis-bits": "64",
		"ctime":      strconv.FormatInt(now.Unix(), 10),
	}
	for k, v := range opts.Aux {
		aux[k] = v
	}
	for _, k := range []string{"redis-ver", "redis-bits", "ctime"} {
		e.aux(k, aux[k])
		delete(aux, k)
	}
	for k, v := range aux {
		e.aux(k, v)
	}

	e.write([]byte{opSelectDB})
	e.length(0)
	e.write([]byte{opResizeDB})
	e.length(uint64(len(records)))
	e.length(0)

	for _, rec := range records {
		if !rec.ExpiresAt.IsZero() {
			if !now.Before(rec.ExpiresAt) {
				continue
			}
			var b [9]byte
			b[0] = opExpireTimeMs
			binary.LittleEndian.PutUint64(b[1:], uint64(rec.ExpiresAt.UnixMilli()))
			e.write(b[:])
		}
		e.write([]byte{typeString})
		e.str(rec.Key)
		e.str(rec.Value)
	}

	e.write([]byte{opEOF})
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], e.crc)
	if e.err == nil {
		_, e.err = e.w.Write(sum[:])
	}
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

type encoder struct {
	w   *bufio.Writer
	crc uint64
	err error
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	e.crc = crcUpdate(e.crc, b)
	_, e.err = e.w.Write(b)
}

func (e *encoder) aux(key, value string) {
	e.write([]byte{opAux})
	e.str(key)
	e.str(value)
}

// length writes the narrowest plain length encoding for n.
func (e *encoder) length(n uint64) {
	switch {
	case n < 1<<6:
		e.write([]byte{byte(n)})
	case n < 1<<14:
		e.write([]byte{byte(n>>8) | len14Bit<<6, byte(n)})
	case n <= 0xFFFFFFFF:
		var b [5]byte
		b[0] = len32Bit
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		e.write(b[:])
	default:
		var b [9]byte
		b[0] = len64Bit
		binary.BigEndian.PutUint64(b[1:], n)
		e.write(b[:])
	}
}

func (e *encoder) str(s string) {
	e.length(uint64(len(s)))
	e.write([]byte(s))
}
