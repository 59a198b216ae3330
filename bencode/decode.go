package bencode

import (
	"fmt"
	"strconv"

	"github.com/juju/errors"
)

// ErrMalformedInput is wrapped by every decoding failure.
var ErrMalformedInput = errors.New("malformed bencode input")

const defaultMaxDepth = 512

// Decoder holds decoding options. The zero value behaves like Decode.
type Decoder struct {
	// Strict rejects input that is not in canonical form: unsorted or
	// duplicate dictionary keys, integers with leading zeros or "-0", and
	// string lengths with leading zeros.
	Strict bool
	// DisallowTrailing rejects bytes left over after the first value.
	DisallowTrailing bool
	// MaxDepth bounds list/dictionary nesting, 0 means 512.
	MaxDepth int
}

// Decode parses the value at the start of buf. Trailing bytes are ignored.
func Decode(buf []byte) (Value, error) {
	ret, _, err := DecodePrefix(buf)
	return ret, err
}

// DecodePrefix parses the value at the start of buf and returns the number of
// bytes it occupies.
func DecodePrefix(buf []byte) (Value, int, error) {
	d := Decoder{}
	return d.DecodePrefix(buf)
}

// DecodeDict parses a dictionary at the start of buf.
func DecodeDict(buf []byte) (Dict, int, error) {
	ret, offset, err := DecodePrefix(buf)
	if err != nil {
		return nil, 0, err
	}
	dict, ok := ret.(Dict)
	if !ok {
		return nil, 0, malformed(0, "expected dictionary")
	}
	return dict, offset, nil
}

func (d *Decoder) Decode(buf []byte) (Value, error) {
	ret, offset, err := d.DecodePrefix(buf)
	if err != nil {
		return nil, err
	}
	if d.DisallowTrailing && offset != len(buf) {
		return nil, malformed(offset, "%d trailing bytes", len(buf)-offset)
	}
	return ret, nil
}

func (d *Decoder) DecodePrefix(buf []byte) (Value, int, error) {
	return d.decodeAny(buf, 0, 0)
}

func malformed(pos int, format string, args ...any) error {
	return errors.Annotatef(ErrMalformedInput, "offset %d: %s", pos, fmt.Sprintf(format, args...))
}

func (d *Decoder) maxDepth() int {
	if d.MaxDepth <= 0 {
		return defaultMaxDepth
	}
	return d.MaxDepth
}

func (d *Decoder) decodeAny(buf []byte, pos int, depth int) (Value, int, error) {
	if pos >= len(buf) {
		return nil, 0, malformed(pos, "unexpected end of input")
	}
	var (
		ret    Value
		offset int
		err    error
	)
	switch c := buf[pos]; {
	case c == 'i':
		ret, offset, err = d.decodeInt(buf, pos)
	case isDigit(c):
		ret, offset, err = d.decodeString(buf, pos)
	case c == 'l', c == 'd':
		if depth >= d.maxDepth() {
			return nil, 0, malformed(pos, "nesting deeper than %d", d.maxDepth())
		}
		if c == 'l' {
			ret, offset, err = d.decodeList(buf, pos, depth+1)
		} else {
			ret, offset, err = d.decodeDict(buf, pos, depth+1)
		}
	default:
		return nil, 0, malformed(pos, "unsupported type: %q", c)
	}
	if err != nil {
		return nil, 0, err
	}
	return ret, offset, nil
}

func (d *Decoder) decodeList(buf []byte, pos int, depth int) (List, int, error) {
	ret := make(List, 0)
	i := pos + 1
	for {
		if i >= len(buf) {
			// a list cut short by the end of input is returned as read so far
			if d.Strict {
				return nil, 0, malformed(pos, "unterminated list")
			}
			return ret, i, nil
		}
		if buf[i] == 'e' {
			return ret, i + 1, nil
		}
		item, offset, err := d.decodeAny(buf, i, depth)
		if err != nil {
			return nil, 0, err
		}
		ret = append(ret, item)
		i = offset
	}
}

func (d *Decoder) decodeDict(buf []byte, pos int, depth int) (Dict, int, error) {
	ret := make(Dict, 0)
	i := pos + 1
	for {
		if i >= len(buf) {
			return nil, 0, malformed(pos, "unterminated dictionary")
		}
		if buf[i] == 'e' {
			return ret, i + 1, nil
		}
		if !isDigit(buf[i]) {
			return nil, 0, malformed(i, "dictionary key must be a string, got %q", buf[i])
		}
		key, offset, err := d.decodeRaw(buf, i)
		if err != nil {
			return nil, 0, err
		}
		if d.Strict && len(ret) > 0 && ret[len(ret)-1].Key >= string(key) {
			return nil, 0, malformed(i, "dictionary key %q out of order", key)
		}
		value, next, err := d.decodeAny(buf, offset, depth)
		if err != nil {
			return nil, 0, err
		}
		ret = append(ret, Pair{Key: string(key), Value: value})
		i = next
	}
}

func (d *Decoder) decodeString(buf []byte, pos int) (Value, int, error) {
	raw, offset, err := d.decodeRaw(buf, pos)
	if err != nil {
		return nil, 0, err
	}
	return Text(raw), offset, nil
}

// decodeRaw returns a slice of buf, callers copy it before keeping it.
func (d *Decoder) decodeRaw(buf []byte, pos int) ([]byte, int, error) {
	i := pos
	for ; i < len(buf) && isDigit(buf[i]); i++ {
	}
	if i >= len(buf) {
		return nil, 0, malformed(pos, "unterminated string length")
	}
	if buf[i] != ':' {
		return nil, 0, malformed(i, "illegal character %q in string length", buf[i])
	}
	digits := buf[pos:i]
	if d.Strict && len(digits) > 1 && digits[0] == '0' {
		return nil, 0, malformed(pos, "string length with leading zero")
	}
	l, err := strconv.Atoi(string(digits))
	if err != nil {
		return nil, 0, malformed(pos, "illegal string length %q", digits)
	}
	begin := i + 1
	if l > len(buf)-begin {
		return nil, 0, malformed(pos, "string length %d exceeds remaining %d bytes", l, len(buf)-begin)
	}
	return buf[begin : begin+l], begin + l, nil
}

func (d *Decoder) decodeInt(buf []byte, pos int) (Int, int, error) {
	begin := pos + 1
	i := begin
	if i < len(buf) && buf[i] == '-' {
		i++
	}
	for ; i < len(buf) && isDigit(buf[i]); i++ {
	}
	if i >= len(buf) {
		return 0, 0, malformed(pos, "unterminated integer")
	}
	if buf[i] != 'e' {
		return 0, 0, malformed(i, "illegal character %q in integer", buf[i])
	}
	text := string(buf[begin:i])
	if d.Strict && !canonicalInt(text) {
		return 0, 0, malformed(pos, "non-canonical integer %q", text)
	}
	ret, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, 0, malformed(pos, "illegal integer %q", text)
	}
	return Int(ret), i + 1, nil
}

func canonicalInt(text string) bool {
	switch {
	case text == "0":
		return true
	case len(text) > 0 && text[0] == '-':
		return len(text) > 1 && text[1] != '0'
	default:
		return len(text) > 0 && text[0] != '0'
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
