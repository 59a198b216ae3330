package bittorrent

import (
	"encoding/hex"
)

// Torrent is a parsed metainfo file.
type Torrent struct {
	InfoHash     [20]byte       `mapstructure:"-" json:"-"`
	Announce     string         `mapstructure:"announce" json:"announce,omitempty"`
	AnnounceList [][]string     `mapstructure:"announce-list" json:"announce_list,omitempty"`
	Comment      string         `mapstructure:"comment" json:"comment,omitempty"`
	CreatedBy    string         `mapstructure:"created by" json:"created_by,omitempty"`
	CreationDate int64          `mapstructure:"creation date" json:"creation_date,omitempty"`
	Info         Info           `mapstructure:"info" json:"info"`
	Other        map[string]any `mapstructure:",remain" json:"other,omitempty"`
}

type Info struct {
	Name        string         `mapstructure:"name" json:"name"`
	PieceLength int64          `mapstructure:"piece length" json:"piece_length"`
	Pieces      []byte         `mapstructure:"pieces" json:"-"`
	Length      int64          `mapstructure:"length" json:"length,omitempty"`
	Private     int64          `mapstructure:"private" json:"private,omitempty"`
	Publisher   string         `mapstructure:"publisher" json:"publisher,omitempty"`
	Source      string         `mapstructure:"source" json:"source,omitempty"`
	Files       []*File        `mapstructure:"files" json:"files,omitempty"`
	Other       map[string]any `mapstructure:",remain" json:"other,omitempty"`
}

func (t *Torrent) HexInfoHash() string {
	return hex.EncodeToString(t.InfoHash[:])
}

// Trackers lists announce followed by every announce-list tier, in order and
// without duplicates.
func (t *Torrent) Trackers() []string {
	seen := make(map[string]struct{})
	ret := make([]string, 0, 1+len(t.AnnounceList))
	add := func(u string) {
		if len(u) == 0 {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		ret = append(ret, u)
	}
	add(t.Announce)
	for _, tier := range t.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}
	return ret
}

// Length is the total payload size of a single or multi file torrent.
func (t *Torrent) Length() int64 {
	if len(t.Info.Files) == 0 {
		return t.Info.Length
	}
	var total int64
	for _, f := range t.Info.Files {
		total += f.Length
	}
	return total
}

func (t *Torrent) Private() bool {
	return t.Info.Private == 1
}

// NumPieces is the number of 20 byte SHA-1 hashes in pieces.
func (t *Torrent) NumPieces() int {
	return len(t.Info.Pieces) / 20
}
