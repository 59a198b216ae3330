package bencode

import (
	"strings"
)

func GetString(dict Dict, path string) (string, bool) {
	r := GetByPath(dict, path)
	if r == nil {
		return "", false
	}
	raw, ok := Raw(r)
	if !ok {
		return "", false
	}
	return string(raw), true
}

func GetInt(dict Dict, path string) (int64, bool) {
	r := GetByPath(dict, path)
	switch v := r.(type) {
	case Int:
		return int64(v), true
	default:
		return 0, false
	}
}

func GetDict(dict Dict, path string) (Dict, bool) {
	r := GetByPath(dict, path)
	switch v := r.(type) {
	case Dict:
		return v, true
	default:
		return nil, false
	}
}

func GetList(dict Dict, path string) (List, bool) {
	r := GetByPath(dict, path)
	switch v := r.(type) {
	case List:
		return v, true
	default:
		return nil, false
	}
}

// GetByPath walks nested dictionaries along a dot separated path, e.g.
// "info.piece length". It returns nil when any segment is missing.
func GetByPath(dict Dict, path string) Value {
	parts := strings.Split(path, ".")
	var m Value = dict
	for _, part := range parts {
		d, ok := m.(Dict)
		if !ok {
			return nil
		}
		m, ok = d.Get(part)
		if !ok {
			return nil
		}
	}
	return m
}

func MustGetBytes(dict Dict, path string) []byte {
	raw, _ := Raw(GetByPath(dict, path))
	return raw
}

func CheckPath(dict Dict, path string) bool {
	return GetByPath(dict, path) != nil
}

// ToInterface converts v into plain Go values: int64, string, []byte, []any
// and map[string]any. The first pair wins when a dictionary repeats a key.
func ToInterface(v Value) any {
	switch x := v.(type) {
	case Int:
		return int64(x)
	case String:
		return string(x)
	case Bytes:
		return []byte(x)
	case List:
		ret := make([]any, 0, len(x))
		for _, item := range x {
			ret = append(ret, ToInterface(item))
		}
		return ret
	case Dict:
		ret := make(map[string]any, len(x))
		for _, p := range x {
			if _, ok := ret[p.Key]; ok {
				continue
			}
			ret[p.Key] = ToInterface(p.Value)
		}
		return ret
	default:
		return nil
	}
}
