package bittorrent

import (
	"crypto/sha1"
	"os"
	"reflect"
	"strings"

	"bt-announce/bencode"

	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
)

var ErrInvalidTorrent = errors.New("invalid torrent")

// ParseTorrent decodes a metainfo file. The info hash is the SHA-1 of the
// info dictionary encoded back exactly as it was read.
func ParseTorrent(data []byte) (*Torrent, error) {
	v, err := bencode.Decode(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	root, ok := v.(bencode.Dict)
	if !ok {
		return nil, errors.Annotatef(ErrInvalidTorrent, "top level value is not a dictionary")
	}
	info, ok := bencode.GetDict(root, "info")
	if !ok {
		return nil, errors.Annotatef(ErrInvalidTorrent, "missing info dictionary")
	}

	torrent := &Torrent{
		InfoHash: sha1.Sum(bencode.Encode(info)),
	}
	decoder, err := newDecoder(torrent)
	if err != nil {
		return nil, errors.Trace(err)
	}
	err = decoder.Decode(bencode.ToInterface(root))
	if err != nil {
		return nil, errors.Annotatef(ErrInvalidTorrent, "%v", err)
	}
	if len(torrent.Info.Name) == 0 {
		return nil, errors.Annotatef(ErrInvalidTorrent, "missing name")
	}
	return torrent, nil
}

func ReadTorrentFile(path string) (*Torrent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	t, err := ParseTorrent(data)
	if err != nil {
		return nil, errors.Annotatef(err, "parse %s", path)
	}
	return t, nil
}

func newDecoder(result any) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           result,
		DecodeHook: func(src reflect.Kind, target reflect.Kind, from interface{}) (interface{}, error) {
			if target == reflect.String {
				if v, ok := from.([]byte); ok {
					return strings.ToValidUTF8(string(v), ""), nil
				}
			}
			return from, nil
		},
	})
}
