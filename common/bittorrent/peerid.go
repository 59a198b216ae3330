package bittorrent

import (
	"encoding/hex"
	"math/rand"

	"github.com/juju/errors"
)

// PeerIDPrefix is the Azureus style client tag of generated peer ids.
const PeerIDPrefix = "-BA0001-"

// GeneratePeerID returns PeerIDPrefix followed by 12 random digits.
func GeneratePeerID() [20]byte {
	var id [20]byte
	copy(id[:], PeerIDPrefix)
	for i := len(PeerIDPrefix); i < len(id); i++ {
		id[i] = byte('0' + rand.Intn(10))
	}
	return id
}

// ParsePeerID accepts a 20 character id or its 40 digit hex form.
func ParsePeerID(s string) ([20]byte, error) {
	var id [20]byte
	switch len(s) {
	case 20:
		copy(id[:], s)
	case 40:
		raw, err := hex.DecodeString(s)
		if err != nil {
			return id, errors.NotValidf("peer id %q", s)
		}
		copy(id[:], raw)
	default:
		return id, errors.NotValidf("peer id %q", s)
	}
	return id, nil
}
