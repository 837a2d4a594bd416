package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yndnr/respkv/pkg/resp"
)

// FormatReply prints a RESP reply in the numbered layout interactive
// clients use:
//
//	1) "a"
//	2) (integer) 3
//	3) (nil)
func FormatReply(w io.Writer, v resp.Value) error {
	var b strings.Builder
	writeReply(&b, v, 0)
	_, err := io.WriteString(w, b.String())
	return err
}

// FormatRaw prints a reply without quoting or type annotations, one
// element per line. Suitable for piping.
func FormatRaw(w io.Writer, v resp.Value) error {
	var b strings.Builder
	writeRaw(&b, v)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeReply(b *strings.Builder, v resp.Value, indent int) {
	switch val := v.(type) {
	case resp.SimpleString:
		b.WriteString(string(val))
	case resp.Error:
		b.WriteString("(error) ")
		b.WriteString(string(val))
	case resp.Integer:
		b.WriteString("(integer) ")
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case resp.BulkString:
		b.WriteString(strconv.Quote(string(val)))
	case resp.Array:
		if len(val) == 0 {
			b.WriteString("(empty array)\n")
			return
		}
		width := len(strconv.Itoa(len(val)))
		for i, elem := range val {
			if i > 0 {
				b.WriteString(strings.Repeat(" ", indent))
			}
			label := fmt.Sprintf("%*d) ", width, i+1)
			b.WriteString(label)
			writeReply(b, elem, indent+len(label))
			if _, nested := elem.(resp.Array); !nested {
				b.WriteByte('\n')
			}
		}
		return
	default:
		if resp.IsNull(v) {
			b.WriteString("(nil)")
		} else {
			fmt.Fprintf(b, "%v", v)
		}
	}
	if indent == 0 {
		b.WriteByte('\n')
	}
}

func writeRaw(b *strings.Builder, v resp.Value) {
	switch val := v.(type) {
	case resp.SimpleString:
		b.WriteString(string(val))
	case resp.Error:
		b.WriteString(string(val))
	case resp.Integer:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case resp.BulkString:
		b.WriteString(string(val))
	case resp.Array:
		for _, elem := range val {
			writeRaw(b, elem)
		}
		return
	}
	b.WriteByte('\n')
}
