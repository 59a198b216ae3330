package bencode

import (
	"bytes"
	"strconv"
)

// Encode serializes v. Dictionary pairs are written in stored order, use
// SortKeys on constructed dictionaries to get a canonical result. Nil elements
// are skipped, trees built by hand should pass Validate first.
func Encode(v Value) []byte {
	buf := &bytes.Buffer{}
	encodeAny(buf, v)
	return buf.Bytes()
}

// AppendEncode appends the encoding of v to dst.
func AppendEncode(dst []byte, v Value) []byte {
	buf := bytes.NewBuffer(dst)
	encodeAny(buf, v)
	return buf.Bytes()
}

func encodeInt(buf *bytes.Buffer, val int64) {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(val, 10))
	buf.WriteByte('e')
}

// encodeString prefixes the byte length, not the rune count.
func encodeString(buf *bytes.Buffer, val string) {
	buf.WriteString(strconv.Itoa(len(val)))
	buf.WriteByte(':')
	buf.WriteString(val)
}

func encodeBytes(buf *bytes.Buffer, data []byte) {
	buf.WriteString(strconv.Itoa(len(data)))
	buf.WriteByte(':')
	buf.Write(data)
}

func encodeList(buf *bytes.Buffer, list List) {
	buf.WriteByte('l')
	for _, item := range list {
		encodeAny(buf, item)
	}
	buf.WriteByte('e')
}

func encodeDict(buf *bytes.Buffer, dict Dict) {
	buf.WriteByte('d')
	for _, p := range dict {
		encodeString(buf, p.Key)
		encodeAny(buf, p.Value)
	}
	buf.WriteByte('e')
}

func encodeAny(buf *bytes.Buffer, item Value) {
	switch v := item.(type) {
	case Int:
		encodeInt(buf, int64(v))
	case String:
		encodeString(buf, string(v))
	case Bytes:
		encodeBytes(buf, v)
	case List:
		encodeList(buf, v)
	case Dict:
		encodeDict(buf, v)
	}
}
