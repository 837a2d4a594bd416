package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	now func() time.Time
}

// WithClock sets the time used to drop records that have already expired.
func WithClock(now func() time.Time) DecodeOption {
	return func(o *decodeOptions) { o.now = now }
}

// Decode reads a complete RDB stream from r.
func Decode(r io.Reader, opts ...DecodeOption) (*Snapshot, error) {
	o := decodeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	d := &decoder{r: bufio.NewReader(r)}
	return d.decode(o.now())
}

type decoder struct {
	r   *bufio.Reader
	crc uint64
	buf [8]byte
}

func (d *decoder) decode(now time.Time) (*Snapshot, error) {
	header, err := d.readN(9)
	if err != nil {
		return nil, fmt.Errorf("rdb: read header: %w", err)
	}
	if string(header[:5]) != Magic {
		return nil, ErrInvalidMagic
	}
	for _, c := range header[5:] {
		if c < '0' || c > '9' {
			return nil, ErrInvalidMagic
		}
	}

	snap := &Snapshot{
		Version:    string(header[5:]),
		Aux:        make(map[string]string),
		ChecksumOK: true,
	}
	db := 0
	var expiresAt time.Time

	for {
		op, err := d.readByte()
		if err != nil {
			return nil, fmt.Errorf("rdb: read opcode: %w", err)
		}

		switch op {
		case opAux:
			key, err := d.readString()
			if err != nil {
				return nil, fmt.Errorf("rdb: read aux key: %w", err)
			}
			val, err := d.readString()
			if err != nil {
				return nil, fmt.Errorf("rdb: read aux value: %w", err)
			}
			snap.Aux[key] = val

		case opSelectDB:
			n, err := d.readPlainLength()
			if err != nil {
				return nil, fmt.Errorf("rdb: read db index: %w", err)
			}
			db = int(n)

		case opResizeDB:
			if _, err := d.readPlainLength(); err != nil {
				return nil, fmt.Errorf("rdb: read db size: %w", err)
			}
			if _, err := d.readPlainLength(); err != nil {
				return nil, fmt.Errorf("rdb: read expires size: %w", err)
			}

		case opExpireTime:
			b, err := d.readN(4)
			if err != nil {
				return nil, fmt.Errorf("rdb: read expire: %w", err)
			}
			expiresAt = time.Unix(int64(binary.LittleEndian.Uint32(b)), 0)

		case opExpireTimeMs:
			b, err := d.readN(8)
			if err != nil {
				return nil, fmt.Errorf("rdb: read expire ms: %w", err)
			}
			expiresAt = time.UnixMilli(int64(binary.LittleEndian.Uint64(b)))

		case opIdle:
			if _, err := d.readPlainLength(); err != nil {
				return nil, fmt.Errorf("rdb: read idle: %w", err)
			}

		case opFreq:
			if _, err := d.readByte(); err != nil {
				return nil, fmt.Errorf("rdb: read freq: %w", err)
			}

		case opEOF:
			sum := d.crc
			stored, err := d.readTrailer()
			if err != nil {
				return nil, err
			}
			snap.Checksum = stored
			snap.ChecksumOK = stored == 0 || stored == sum
			return snap, nil

		case typeString:
			key, err := d.readString()
			if err != nil {
				return nil, fmt.Errorf("rdb: read key: %w", err)
			}
			val, err := d.readString()
			if err != nil {
				return nil, fmt.Errorf("rdb: read value of %q: %w", key, err)
			}
			exp := expiresAt
			expiresAt = time.Time{}
			if !exp.IsZero() && !now.Before(exp) {
				snap.Skipped++
				continue
			}
			snap.Records = append(snap.Records, Record{DB: db, Key: key, Value: val, ExpiresAt: exp})

		case opFunction, opModuleAux:
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedOpcode, op)

		default:
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedType, op)
		}
	}
}

// readTrailer reads the 8-byte checksum. Files from very old versions end
// right after the EOF opcode and some writers emit a short trailer; both are
// treated as "no checksum".
func (d *decoder) readTrailer() (uint64, error) {
	n, err := io.ReadFull(d.r, d.buf[:8])
	if n < 8 {
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("rdb: read checksum: %w", err)
		}
		return 0, nil
	}
	return binary.LittleEndian.Uint64(d.buf[:8]), nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	d.buf[0] = b
	d.crc = crcUpdate(d.crc, d.buf[:1])
	return b, nil
}

// maxPrealloc bounds what readN allocates ahead of the data. Longer reads
// grow with the input, so a corrupt length runs into EOF instead of
// reserving the size it claims.
const maxPrealloc = 64 << 10

func (d *decoder) readN(n int) ([]byte, error) {
	if n > maxPrealloc {
		return d.readLarge(n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	d.crc = crcUpdate(d.crc, b)
	return b, nil
}

func (d *decoder) readLarge(n int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(maxPrealloc)
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	b := buf.Bytes()
	d.crc = crcUpdate(d.crc, b)
	return b, nil
}

// readLength decodes a length field. special reports the string-encoding
// form, in which case the returned value is the encoding type.
func (d *decoder) readLength() (n uint64, special bool, err error) {
	first, err := d.readByte()
	if err != nil {
		return 0, false, err
	}

	switch first >> 6 {
	case len6Bit:
		return uint64(first & 0x3F), false, nil
	case len14Bit:
		next, err := d.readByte()
		if err != nil {
			return 0, false, err
		}
		return uint64(first&0x3F)<<8 | uint64(next), false, nil
	case lenEnc:
		return uint64(first & 0x3F), true, nil
	}

	switch first {
	case len32Bit:
		b, err := d.readN(4)
		if err != nil {
			return 0, false, err
		}
		return uint64(binary.BigEndian.Uint32(b)), false, nil
	case len64Bit:
		b, err := d.readN(8)
		if err != nil {
			return 0, false, err
		}
		return binary.BigEndian.Uint64(b), false, nil
	default:
		return 0, false, fmt.Errorf("%w: length prefix 0x%02X", ErrInvalidEncoding, first)
	}
}

func (d *decoder) readPlainLength() (uint64, error) {
	n, special, err := d.readLength()
	if err != nil {
		return 0, err
	}
	if special {
		return 0, fmt.Errorf("%w: expected plain length", ErrInvalidEncoding)
	}
	return n, nil
}

func (d *decoder) readString() (string, error) {
	n, special, err := d.readLength()
	if err != nil {
		return "", err
	}
	if !special {
		if n > 1<<32 {
			return "", fmt.Errorf("%w: string length %d", ErrInvalidEncoding, n)
		}
		b, err := d.readN(int(n))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	switch n {
	case encInt8:
		b, err := d.readN(1)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int8(b[0])), 10), nil
	case encInt16:
		b, err := d.readN(2)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(b))), 10), nil
	case encInt32:
		b, err := d.readN(4)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10), nil
	case encLZF:
		clen, err := d.readPlainLength()
		if err != nil {
			return "", err
		}
		ulen, err := d.readPlainLength()
		if err != nil {
			return "", err
		}
		if clen > 1<<32 || ulen > 1<<32 {
			return "", fmt.Errorf("%w: lzf length", ErrInvalidEncoding)
		}
		data, err := d.readN(int(clen))
		if err != nil {
			return "", err
		}
		if ulen > uint64(len(data))*lzfMaxRatio {
			return "", ErrCorruptCompression
		}
		out, err := lzfDecompress(data, int(ulen))
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("%w: special encoding %d", ErrInvalidEncoding, n)
	}
}
