package model

import (
	"time"

	"bt-announce/common/bittorrent"
	"bt-announce/common/bittorrent/tracker"

	"github.com/kamva/mgm/v3"
)

var _ mgm.Model = (*Torrent)(nil)

// Torrent is the announce state of one torrent as last reported by one of its
// trackers. Each tracker of a torrent has its own record, see RecordID.
type Torrent struct {
	ID                 string     `bson:"_id" json:"-"`
	InfoHash           string     `bson:"info_hash" json:"info_hash"`
	Name               string     `bson:"name" json:"name"`
	Files              []*File    `bson:"files" json:"files"`
	Length             int64      `bson:"length" json:"length"`
	Tracker            string     `bson:"tracker" json:"tracker,omitempty"`
	Interval           uint32     `bson:"interval" json:"interval,omitempty"`
	Seeders            *uint32    `bson:"seeders" json:"seeders,omitempty"`
	Leechers           *uint32    `bson:"leechers" json:"leechers,omitempty"`
	Peers              []string   `bson:"peers" json:"peers,omitempty"`
	NewPeers           int        `bson:"new_peers" json:"new_peers"`
	LastError          string     `bson:"last_error" json:"last_error,omitempty"`
	CreatedAt          *time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt          *time.Time `bson:"updated_at" json:"updated_at"`
	TrackerUpdatedAt   *time.Time `bson:"tracker_updated_at" json:"tracker_updated_at,omitempty"`
	TrackerLastTriedAt *time.Time `bson:"tracker_last_tried_at" json:"tracker_last_tried_at,omitempty"`
}

func (t *Torrent) PrepareID(id interface{}) (interface{}, error) {
	return id, nil
}

func (t *Torrent) GetID() interface{} {
	return t.ID
}

func (t *Torrent) SetID(id interface{}) {
	t.ID = id.(string)
}

// RecordID identifies the record of one torrent on one tracker.
func RecordID(infoHash, trackerURL string) string {
	return infoHash + "@" + trackerURL
}

func NewTorrentFromBTTorrent(t *bittorrent.Torrent, trackerURL string) *Torrent {
	now := time.Now()
	ret := &Torrent{
		ID:        RecordID(t.HexInfoHash(), trackerURL),
		InfoHash:  t.HexInfoHash(),
		Tracker:   trackerURL,
		Name:      t.Info.Name,
		Files:     make([]*File, 0, len(t.Info.Files)),
		Length:    t.Length(),
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	for _, file := range t.Info.Files {
		ret.Files = append(ret.Files, NewFileFromBTFile(file))
	}
	return ret
}

// ApplyAnnounce records a successful announce.
func (t *Torrent) ApplyAnnounce(resp *tracker.AnnounceResponse, newPeers int, at time.Time) {
	seeders, leechers := resp.Seeders, resp.Leechers
	t.Interval = resp.Interval
	t.Seeders = &seeders
	t.Leechers = &leechers
	t.Peers = make([]string, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		t.Peers = append(t.Peers, tracker.PeerAddr(p))
	}
	t.NewPeers = newPeers
	t.LastError = ""
	t.UpdatedAt = &at
	t.TrackerUpdatedAt = &at
	t.TrackerLastTriedAt = &at
}

// ApplyFailure records a failed announce, keeping the last known swarm
// numbers.
func (t *Torrent) ApplyFailure(err error, at time.Time) {
	t.LastError = err.Error()
	t.UpdatedAt = &at
	t.TrackerLastTriedAt = &at
}

func (t *Torrent) Valid() bool {
	return len(t.ID) > 0 && len(t.InfoHash) > 0 && len(t.Name) > 0
}
