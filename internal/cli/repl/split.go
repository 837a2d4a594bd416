package repl

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnbalancedQuotes is returned by Split for an unterminated quote.
var ErrUnbalancedQuotes = errors.New("unbalanced quotes")

// Split breaks a line into arguments. Double quoted strings understand
// \n, \r, \t, \", \\ and \xHH escapes; single quoted strings are literal
// except for \'. A closing quote must be followed by a space or the end of
// the line.
func Split(line string) ([]string, error) {
	var (
		args []string
		cur  strings.Builder
	)
	i := 0
	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			return args, nil
		}

		cur.Reset()
		for i < len(line) && !isSpace(line[i]) {
			switch line[i] {
			case '"':
				end, err := readDouble(line, i+1, &cur)
				if err != nil {
					return nil, err
				}
				i = end
			case '\'':
				end, err := readSingle(line, i+1, &cur)
				if err != nil {
					return nil, err
				}
				i = end
			default:
				cur.WriteByte(line[i])
				i++
			}
		}
		args = append(args, cur.String())
	}
}

// readDouble consumes a double quoted string starting after the opening
// quote and returns the index after the closing one.
func readDouble(line string, i int, cur *strings.Builder) (int, error) {
	for i < len(line) {
		c := line[i]
		switch {
		case c == '"':
			return closeQuote(line, i+1)
		case c == '\\' && i+3 < len(line) && line[i+1] == 'x' && isHex(line[i+2]) && isHex(line[i+3]):
			b, _ := strconv.ParseUint(line[i+2:i+4], 16, 8)
			cur.WriteByte(byte(b))
			i += 4
		case c == '\\' && i+1 < len(line):
			switch e := line[i+1]; e {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			case 't':
				cur.WriteByte('\t')
			case 'a':
				cur.WriteByte('\a')
			case 'b':
				cur.WriteByte('\b')
			default:
				cur.WriteByte(e)
			}
			i += 2
		default:
			cur.WriteByte(c)
			i++
		}
	}
	return 0, ErrUnbalancedQuotes
}

func readSingle(line string, i int, cur *strings.Builder) (int, error) {
	for i < len(line) {
		c := line[i]
		switch {
		case c == '\'':
			return closeQuote(line, i+1)
		case c == '\\' && i+1 < len(line) && line[i+1] == '\'':
			cur.WriteByte('\'')
			i += 2
		default:
			cur.WriteByte(c)
			i++
		}
	}
	return 0, ErrUnbalancedQuotes
}

func closeQuote(line string, next int) (int, error) {
	if next < len(line) && !isSpace(line[next]) {
		return 0, ErrUnbalancedQuotes
	}
	return next, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
