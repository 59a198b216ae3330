package bencode

import (
	"sort"

	"github.com/elliotchance/orderedmap"
	"github.com/juju/errors"
)

// ToOrderedMap converts a dictionary into an ordered map keeping pair order.
// Nested dictionaries become ordered maps as well, lists become []any.
func ToOrderedMap(d Dict) *orderedmap.OrderedMap {
	ret := orderedmap.NewOrderedMap()
	for _, p := range d {
		if _, ok := ret.Get(p.Key); ok {
			continue
		}
		ret.Set(p.Key, toOrderedAny(p.Value))
	}
	return ret
}

func toOrderedAny(v Value) any {
	switch x := v.(type) {
	case Dict:
		return ToOrderedMap(x)
	case List:
		ret := make([]any, 0, len(x))
		for _, item := range x {
			ret = append(ret, toOrderedAny(item))
		}
		return ret
	default:
		return ToInterface(v)
	}
}

// FromOrderedMap builds a dictionary in the map's insertion order.
func FromOrderedMap(m *orderedmap.OrderedMap) (Dict, error) {
	ret := make(Dict, 0, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		key, ok := el.Key.(string)
		if !ok {
			return nil, errors.Errorf("unsupported key type %T", el.Key)
		}
		v, err := FromInterface(el.Value)
		if err != nil {
			return nil, errors.Annotatef(err, "key %q", key)
		}
		ret = append(ret, Pair{Key: key, Value: v})
	}
	return ret, nil
}

// FromInterface converts plain Go values into a Value. Go maps are emitted
// with sorted keys, ordered maps keep their order.
func FromInterface(item any) (Value, error) {
	switch v := item.(type) {
	case Value:
		err := Validate(v)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return v, nil
	case int:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case string:
		return Text([]byte(v)), nil
	case []byte:
		return Text(v), nil
	case []string:
		ret := make(List, 0, len(v))
		for _, s := range v {
			ret = append(ret, Text([]byte(s)))
		}
		return ret, nil
	case []any:
		ret := make(List, 0, len(v))
		for _, e := range v {
			ev, err := FromInterface(e)
			if err != nil {
				return nil, errors.Trace(err)
			}
			ret = append(ret, ev)
		}
		return ret, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ret := make(Dict, 0, len(v))
		for _, k := range keys {
			ev, err := FromInterface(v[k])
			if err != nil {
				return nil, errors.Annotatef(err, "key %q", k)
			}
			ret = append(ret, Pair{Key: k, Value: ev})
		}
		return ret, nil
	case *orderedmap.OrderedMap:
		d, err := FromOrderedMap(v)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return d, nil
	default:
		return nil, errors.Errorf("unsupported type %T", item)
	}
}
