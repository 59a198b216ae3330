package svc

import (
	"context"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bt-announce/announcer/internal/config"
	"bt-announce/common/bittorrent"
	"bt-announce/common/bittorrent/tracker"
	"bt-announce/common/util"
	"bt-announce/model"
	"bt-announce/storage"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	primaryTracker = "udp://tracker.example.org:6969/announce"
	backupTracker  = "udp://backup.example.net:1337"
)

type fakeSession struct {
	mu     sync.Mutex
	reqs   []tracker.AnnounceRequest
	resp   *tracker.AnnounceResponse
	err    error
	closed bool
}

var _ tracker.Tracker = (*fakeSession)(nil)

func (f *fakeSession) Connect(ctx context.Context) error {
	return nil
}

func (f *fakeSession) Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeSession) Scrape(ctx context.Context, infoHashes [][20]byte) ([]*tracker.ScrapeResult, error) {
	return nil, errors.NotSupportedf("scrape")
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSession) Requests() []tracker.AnnounceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.AnnounceRequest(nil), f.reqs...)
}

type memStorage struct {
	mu      sync.Mutex
	records []*model.Torrent
}

var _ storage.TorrentStorage = (*memStorage)(nil)

func (m *memStorage) Store(ctx context.Context, t *model.Torrent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, t)
	return nil
}

func (m *memStorage) Records() []*model.Torrent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Torrent(nil), m.records...)
}

func newTestServiceContext(t *testing.T, store storage.TorrentStorage) *ServiceContext {
	torrent, err := bittorrent.ReadTorrentFile("../../../common/bittorrent/testdata/single.torrent")
	require.NoError(t, err)
	return &ServiceContext{
		Config: config.Config{
			PeerID:             "-GO0001-123456789012",
			Port:               6881,
			NumWant:            -1,
			Workers:            2,
			MaxQueueSize:       8,
			MinIntervalSeconds: 60,
			MaxIntervalSeconds: 3600,
			BloomFilterPath:    filepath.Join(t.TempDir(), "bloom.bin"),
		},
		Torrents: []*bittorrent.Torrent{torrent},
		Storages: []storage.TorrentStorage{store},
		Seen:     util.NewBloomFilter(1 << 16),
		Limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

func sessionFactory(sessions map[string]*fakeSession) SessionFactory {
	return func(ctx context.Context, addr string) (tracker.Tracker, error) {
		s, ok := sessions[addr]
		if !ok {
			return nil, errors.Annotatef(tracker.ErrResolutionFailed, "unknown tracker %s", addr)
		}
		return s, nil
	}
}

func runAnnouncer(t *testing.T, a *Announcer, until func() bool) {
	done := make(chan struct{})
	go func() {
		a.Start()
		close(done)
	}()
	require.Eventually(t, until, 5*time.Second, 10*time.Millisecond)
	a.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("announcer did not stop")
	}
}

func TestAnnouncer(t *testing.T) {
	peer := netip.MustParseAddrPort("10.0.0.1:6881")
	sessions := map[string]*fakeSession{
		primaryTracker: {resp: &tracker.AnnounceResponse{Interval: 1800, Seeders: 7, Leechers: 3, Peers: []netip.AddrPort{peer}}},
		backupTracker:  {resp: &tracker.AnnounceResponse{Interval: 900, Seeders: 5, Leechers: 1, Peers: []netip.AddrPort{peer}}},
	}
	store := &memStorage{}
	svcCtx := newTestServiceContext(t, store)
	a := NewAnnouncer(svcCtx, sessionFactory(sessions))
	assert.Len(t, a.jobs, 2)

	runAnnouncer(t, a, func() bool {
		return len(store.Records()) == 2
	})

	torrent := svcCtx.Torrents[0]
	for addr, s := range sessions {
		reqs := s.Requests()
		require.Len(t, reqs, 2, addr)
		assert.Equal(t, tracker.EventStarted, reqs[0].Event, addr)
		assert.Equal(t, tracker.EventStopped, reqs[1].Event, addr)
		assert.Equal(t, torrent.InfoHash, reqs[0].InfoHash)
		assert.Equal(t, "-GO0001-123456789012", string(reqs[0].PeerID[:]))
		assert.Equal(t, uint64(123456), reqs[0].Left)
		assert.Equal(t, int32(-1), reqs[0].NumWant)
		assert.Equal(t, uint16(6881), reqs[0].Port)
		assert.True(t, s.Closed(), addr)
	}

	newPeers := 0
	seeders := map[string]uint32{}
	for _, r := range store.Records() {
		assert.Equal(t, torrent.HexInfoHash(), r.InfoHash)
		assert.Equal(t, model.RecordID(r.InfoHash, r.Tracker), r.ID)
		if assert.NotNil(t, r.Seeders) {
			seeders[r.Tracker] = *r.Seeders
		}
		assert.Equal(t, "debian-12.iso", r.Name)
		assert.Equal(t, []string{"10.0.0.1:6881"}, r.Peers)
		assert.Empty(t, r.LastError)
		newPeers += r.NewPeers
	}
	assert.Equal(t, 1, newPeers)
	// each tracker keeps its own swarm numbers
	assert.Equal(t, map[string]uint32{primaryTracker: 7, backupTracker: 5}, seeders)
	assert.FileExists(t, svcCtx.Config.BloomFilterPath)
}

func TestAnnouncerFailure(t *testing.T) {
	sessions := map[string]*fakeSession{
		primaryTracker: {resp: &tracker.AnnounceResponse{Interval: 1800, Seeders: 7}},
		backupTracker:  {err: errors.Annotatef(tracker.ErrTimeout, "announce")},
	}
	store := &memStorage{}
	a := NewAnnouncer(newTestServiceContext(t, store), sessionFactory(sessions))

	runAnnouncer(t, a, func() bool {
		return len(store.Records()) == 2
	})

	assert.Len(t, sessions[primaryTracker].Requests(), 2)
	assert.Len(t, sessions[backupTracker].Requests(), 1)

	failed := 0
	for _, r := range store.Records() {
		if r.LastError != "" {
			failed++
			assert.Equal(t, backupTracker, r.Tracker)
			assert.NotNil(t, r.TrackerLastTriedAt)
			// the primary tracker's numbers stay on the primary record
			assert.Nil(t, r.Seeders)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestAnnouncerIntervals(t *testing.T) {
	a := NewAnnouncer(newTestServiceContext(t, &memStorage{}), sessionFactory(nil))

	assert.Equal(t, time.Minute, a.nextInterval(10))
	assert.Equal(t, 30*time.Minute, a.nextInterval(1800))
	assert.Equal(t, time.Hour, a.nextInterval(100000))

	assert.Equal(t, time.Minute, a.retryDelay(1))
	assert.Equal(t, 2*time.Minute, a.retryDelay(2))
	assert.Equal(t, 4*time.Minute, a.retryDelay(3))
	assert.Equal(t, time.Hour, a.retryDelay(10))
}
