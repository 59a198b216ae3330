package bencode

import (
	"bytes"
	"os"
	"strings"
	"testing"

	jackpal "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_decodeString(t *testing.T) {
	pkt := "4:spam"
	str, offset, err := DecodePrefix([]byte(pkt))
	if assert.NoError(t, err) {
		assert.Equal(t, len(pkt), offset)
		assert.Equal(t, String("spam"), str)
	}

	str, err = Decode([]byte("0:"))
	if assert.NoError(t, err) {
		assert.Equal(t, String(""), str)
	}

	_, err = Decode([]byte("5:ab"))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecode_decodeBytes(t *testing.T) {
	pkt := []byte("4:\xff\xfe\x00\x01")
	b, err := Decode(pkt)
	if assert.NoError(t, err) {
		assert.Equal(t, Bytes{0xff, 0xfe, 0x00, 0x01}, b)
	}
	// decoded bytes must not alias the input buffer
	pkt[2] = 'x'
	assert.Equal(t, Bytes{0xff, 0xfe, 0x00, 0x01}, b)
}

func TestDecode_decodeInt(t *testing.T) {
	pkt := "i123432e"
	i, offset, err := DecodePrefix([]byte(pkt))
	if assert.NoError(t, err) {
		assert.Equal(t, len(pkt), offset)
		assert.Equal(t, Int(123432), i)
	}

	cases := map[string]Int{
		"i0e":                    0,
		"i-42e":                  -42,
		"i9223372036854775807e":  9223372036854775807,
		"i-9223372036854775808e": -9223372036854775808,
	}
	for in, want := range cases {
		got, err := Decode([]byte(in))
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}
}

func TestDecode_decodeIntMalformed(t *testing.T) {
	for _, in := range []string{"i3.5e", "i42", "ie", "i-e", "i+5e", "i9223372036854775808e", "i1-2e", "i"} {
		v, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrMalformedInput, in)
		assert.Nil(t, v, in)
	}
}

func TestDecode_decodeList(t *testing.T) {
	pkt := "l4:spam4:eggse"
	list, offset, err := DecodePrefix([]byte(pkt))
	if assert.NoError(t, err) {
		assert.Equal(t, len(pkt), offset)
		assert.Equal(t, List{String("spam"), String("eggs")}, list)
	}

	list, err = Decode([]byte("li123e2:aalee"))
	if assert.NoError(t, err) {
		assert.Equal(t, List{Int(123), String("aa"), List{}}, list)
	}
}

func TestDecode_decodeDict(t *testing.T) {
	pkt := "d3:bar4:spam3:fooi42ee"
	m, offset, err := DecodePrefix([]byte(pkt))
	if assert.NoError(t, err) {
		assert.Equal(t, len(pkt), offset)
		assert.Equal(t, Dict{
			{Key: "bar", Value: String("spam")},
			{Key: "foo", Value: Int(42)},
		}, m)
	}
}

func TestDecode_dictKeepsInputOrder(t *testing.T) {
	pkt := []byte("d3:foo3:bar3:abci1e3:fooi2ee")
	m, err := Decode(pkt)
	if assert.NoError(t, err) {
		d := m.(Dict)
		assert.Equal(t, []string{"foo", "abc", "foo"}, d.Keys())
		assert.False(t, d.Sorted())
		v, _ := d.Get("foo")
		assert.Equal(t, String("bar"), v)
		assert.Equal(t, pkt, Encode(m))
	}
}

func TestDecode_malformed(t *testing.T) {
	cases := []string{
		"",
		"x",
		"li1",
		"l3:ab",
		"d3:foo",
		"d3:fooi1e",
		"di1ei2ee",
		"dle3:fooe",
		"3",
		"3x:abc",
		"-1:a",
		"99999999999999999999:a",
	}
	for _, in := range cases {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrMalformedInput, "%q", in)
	}
}

func TestDecode_listAtEndOfInput(t *testing.T) {
	v, offset, err := DecodePrefix([]byte("l4:spam4:eggs"))
	if assert.NoError(t, err) {
		assert.Equal(t, List{String("spam"), String("eggs")}, v)
		assert.Equal(t, 13, offset)
	}

	v, err = Decode([]byte("lli1e"))
	if assert.NoError(t, err) {
		assert.Equal(t, List{List{Int(1)}}, v)
	}

	v, err = Decode([]byte("l"))
	if assert.NoError(t, err) {
		assert.Equal(t, List{}, v)
	}

	d := Decoder{Strict: true}
	_, err = d.Decode([]byte("l4:spam4:eggs"))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecode_trailingBytes(t *testing.T) {
	v, offset, err := DecodePrefix([]byte("i1eXYZ"))
	if assert.NoError(t, err) {
		assert.Equal(t, Int(1), v)
		assert.Equal(t, 3, offset)
	}

	d := Decoder{DisallowTrailing: true}
	_, err = d.Decode([]byte("i1eXYZ"))
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = d.Decode([]byte("i1e"))
	assert.NoError(t, err)
}

func TestDecoder_strict(t *testing.T) {
	d := Decoder{Strict: true}
	for _, in := range []string{
		"d3:foo3:bar3:abci1ee",
		"d3:fooi1e3:fooi2ee",
		"i03e",
		"i-0e",
		"03:abc",
	} {
		_, err := d.Decode([]byte(in))
		assert.ErrorIs(t, err, ErrMalformedInput, in)

		// the relaxed decoder passes the same input through
		_, err = Decode([]byte(in))
		assert.NoError(t, err, in)
	}

	v, err := d.Decode([]byte("d3:abci1e3:fooi-2ee"))
	if assert.NoError(t, err) {
		assert.True(t, v.(Dict).Sorted())
	}
}

func TestDecoder_maxDepth(t *testing.T) {
	d := Decoder{MaxDepth: 3}
	_, err := d.Decode([]byte("lllleeee"))
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, err = d.Decode([]byte("llleee"))
	assert.NoError(t, err)

	deep := strings.Repeat("l", 10000) + strings.Repeat("e", 10000)
	_, err = Decode([]byte(deep))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecodeDict(t *testing.T) {
	pkt := []byte("d1:ai1ee\x00trailer")
	d, offset, err := DecodeDict(pkt)
	if assert.NoError(t, err) {
		assert.Equal(t, Dict{{Key: "a", Value: Int(1)}}, d)
		assert.Equal(t, "\x00trailer", string(pkt[offset:]))
	}
	_, _, err = DecodeDict([]byte("li1ee"))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

// normalize maps byte strings to Go strings so results can be compared with
// the reflection based decoder.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	default:
		return v
	}
}

func TestDecode_agreesWithReflectionDecoder(t *testing.T) {
	for _, name := range []string{"testdata/single.torrent", "testdata/multi.torrent"} {
		data, err := os.ReadFile(name)
		require.NoError(t, err)

		ours, err := Decode(data)
		require.NoError(t, err)
		theirs, err := jackpal.Decode(bytes.NewReader(data))
		require.NoError(t, err)

		assert.Equal(t, theirs, normalize(ToInterface(ours)), name)
	}
}
