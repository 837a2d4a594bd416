package rdb

// lzfMaxRatio bounds LZF expansion: a 3-byte back reference yields at most
// 264 bytes.
const lzfMaxRatio = 88

// lzfDecompress expands LZF data into exactly outLen bytes.
func lzfDecompress(in []byte, outLen int) ([]byte, error) {
	out := make([]byte, 0, outLen)
	i := 0
	for i < len(in) {
		ctrl := int(in[i])
		i++

		if ctrl < 1<<5 {
			n := ctrl + 1
			if i+n > len(in) || len(out)+n > outLen {
				return nil, ErrCorruptCompression
			}
			out = append(out, in[i:i+n]...)
			i += n
			continue
		}

		length := ctrl >> 5
		if length == 7 {
			if i >= len(in) {
				return nil, ErrCorruptCompression
			}
			length += int(in[i])
			i++
		}
		length += 2
		if i >= len(in) {
			return nil, ErrCorruptCompression
		}
		ref := len(out) - ((ctrl & 0x1f) << 8) - 1 - int(in[i])
		i++
		if ref < 0 || len(out)+length > outLen {
			return nil, ErrCorruptCompression
		}
		// Byte-wise copy: the reference may overlap the bytes being written.
		for k := 0; k < length; k++ {
			out = append(out, out[ref+k])
		}
	}
	if len(out) != outLen {
		return nil, ErrCorruptCompression
	}
	return out, nil
}
