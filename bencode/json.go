package bencode

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"unicode/utf8"

	"github.com/juju/errors"
)

// ToJSON renders v as JSON for display. Dictionary order is kept, Bytes are
// written as hex strings and so are dictionary keys that are not UTF-8.
func ToJSON(v Value) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := writeJSON(buf, v)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ToJSONIndent(v Value, indent string) ([]byte, error) {
	raw, err := ToJSON(v)
	if err != nil {
		return nil, err
	}
	out := &bytes.Buffer{}
	err = json.Indent(out, raw, "", indent)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return out.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		s = hex.EncodeToString([]byte(s))
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Trace(err)
	}
	buf.Write(raw)
	return nil
}

func writeJSON(buf *bytes.Buffer, item Value) error {
	switch v := item.(type) {
	case Int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case String:
		return writeJSONString(buf, string(v))
	case Bytes:
		return writeJSONString(buf, hex.EncodeToString(v))
	case List:
		buf.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			err := writeJSON(buf, e)
			if err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Dict:
		buf.WriteByte('{')
		for i, p := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			err := writeJSONString(buf, p.Key)
			if err != nil {
				return err
			}
			buf.WriteByte(':')
			err = writeJSON(buf, p.Value)
			if err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errors.Errorf("unsupported type %T", item)
	}
	return nil
}
