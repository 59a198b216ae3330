package main

import (
	"fmt"

	"bt-announce/bencode"

	"github.com/elliotchance/orderedmap"
	"github.com/juju/errors"
)

// metainfoView returns the metainfo with the piece hashes replaced by a count,
// keeping the order the keys were written in.
func metainfoView(v bencode.Value) (bencode.Value, error) {
	root, ok := v.(bencode.Dict)
	if !ok {
		return v, nil
	}
	m := bencode.ToOrderedMap(root)
	if info, ok := m.Get("info"); ok {
		if info, ok := info.(*orderedmap.OrderedMap); ok && bencode.CheckPath(root, "info.pieces") {
			pieces := bencode.MustGetBytes(root, "info.pieces")
			info.Set("pieces", fmt.Sprintf("<%d hashes>", len(pieces)/20))
		}
	}
	ret, err := bencode.FromOrderedMap(m)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ret, nil
}
