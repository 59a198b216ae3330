package bencode

import (
	"bytes"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/juju/errors"
)

// Value is a decoded bencode item. The concrete type is one of Int, String,
// Bytes, List or Dict. A nil Value is not a valid list element or dictionary
// value, see Validate.
type Value interface {
	bencodeValue()
}

// Int is a bencoded integer.
type Int int64

// String is a byte string that holds valid UTF-8 text.
type String string

// Bytes is a byte string that is not valid UTF-8, e.g. pieces, info hashes
// or compact peer lists.
type Bytes []byte

type List []Value

// Dict keeps its pairs in the order they were decoded or constructed.
type Dict []Pair

type Pair struct {
	Key   string
	Value Value
}

func (Int) bencodeValue()    {}
func (String) bencodeValue() {}
func (Bytes) bencodeValue()  {}
func (List) bencodeValue()   {}
func (Dict) bencodeValue()   {}

// Get returns the value of the first pair with the given key.
func (d Dict) Get(key string) (Value, bool) {
	for _, p := range d {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for _, p := range d {
		keys = append(keys, p.Key)
	}
	return keys
}

// Sorted reports whether keys are in strictly ascending raw byte order.
func (d Dict) Sorted() bool {
	for i := 1; i < len(d); i++ {
		if d[i-1].Key >= d[i].Key {
			return false
		}
	}
	return true
}

// SortKeys returns a copy of d with pairs ordered by raw key bytes. Nested
// dictionaries are left untouched.
func SortKeys(d Dict) Dict {
	ret := make(Dict, len(d))
	copy(ret, d)
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Key < ret[j].Key
	})
	return ret
}

// Text builds the string variant matching the content: String for valid UTF-8,
// Bytes otherwise.
func Text(b []byte) Value {
	if utf8.Valid(b) {
		return String(b)
	}
	return Bytes(append([]byte(nil), b...))
}

// Raw returns the octets of a string-typed value.
func Raw(v Value) ([]byte, bool) {
	switch s := v.(type) {
	case String:
		return []byte(s), true
	case Bytes:
		return []byte(s), true
	default:
		return nil, false
	}
}

// Equal compares two values structurally. String and Bytes holding the same
// octets are equal since they share one encoding.
func Equal(a, b Value) bool {
	if ra, ok := Raw(a); ok {
		rb, ok := Raw(b)
		return ok && bytes.Equal(ra, rb)
	}
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Dict:
		y, ok := b.(Dict)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i].Key != y[i].Key || !Equal(x[i].Value, y[i].Value) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Validate rejects trees holding a nil element, which has no encoding.
func Validate(v Value) error {
	return validate(v, "")
}

func validate(v Value, path string) error {
	switch x := v.(type) {
	case nil:
		if path == "" {
			return errors.NotValidf("nil value")
		}
		return errors.NotValidf("nil value at %s", path)
	case List:
		for i, item := range x {
			err := validate(item, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return err
			}
		}
	case Dict:
		for _, p := range x {
			err := validate(p.Value, path+"."+p.Key)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
