package svc

import (
	"context"
	"strings"
	"sync"
	"time"

	"bt-announce/common/bittorrent"
	"bt-announce/common/bittorrent/tracker"
	"bt-announce/common/executor"
	"bt-announce/model"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/metric"
	"github.com/zeromicro/go-zero/core/threading"
)

const (
	metricNamespace = "bt_announce"
	metricSubsystem = "announcer"

	stopAnnounceTimeout = 5 * time.Second
)

var (
	metricAnnounceCounter = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "announce",
		Labels:    []string{"event", "result"},
	})
	metricPeerCounter = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "peers",
		Labels:    []string{"type"},
	})
	metricQueueSize = metric.NewGaugeVec(&metric.GaugeVecOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "queue_size",
		Labels:    []string{"type"},
	})
)

// SessionFactory opens a tracker session for an announce URL.
type SessionFactory func(ctx context.Context, addr string) (tracker.Tracker, error)

type announceJob struct {
	torrent  *bittorrent.Torrent
	tracker  string
	started  bool
	failures int
}

// Announcer keeps every loaded torrent announced to each of its UDP trackers,
// honouring the interval the tracker asks for.
type Announcer struct {
	ctx    context.Context
	cancel context.CancelFunc
	svcCtx *ServiceContext

	executor   *executor.Executor[*announceJob]
	newSession SessionFactory
	peerID     [20]byte
	now        func() time.Time

	mu       sync.Mutex
	jobs     []*announceJob
	timers   map[*announceJob]*time.Timer
	sessions map[string]tracker.Tracker
	records  map[string]*model.Torrent
}

func InjectAnnouncer(svcCtx *ServiceContext) {
	c := svcCtx.Config
	svcCtx.Announcer = NewAnnouncer(svcCtx, func(ctx context.Context, addr string) (tracker.Tracker, error) {
		return tracker.NewUDPTracker(ctx, addr,
			tracker.WithBaseTimeout(c.BaseTimeout()),
			tracker.WithMaxAttempts(c.MaxAttempts),
			tracker.WithLogger(logrus.WithFields(logrus.Fields{"service": c.Name, "tracker": addr})),
		)
	})
}

func NewAnnouncer(svcCtx *ServiceContext, newSession SessionFactory) *Announcer {
	a := &Announcer{
		svcCtx:     svcCtx,
		newSession: newSession,
		now:        time.Now,
		timers:     make(map[*announceJob]*time.Timer),
		sessions:   make(map[string]tracker.Tracker),
		records:    make(map[string]*model.Torrent),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.peerID = bittorrent.GeneratePeerID()
	if len(svcCtx.Config.PeerID) > 0 {
		id, err := bittorrent.ParsePeerID(svcCtx.Config.PeerID)
		if err != nil {
			logx.Errorf("Illegal peer id, using %s: %v", string(a.peerID[:]), err)
		} else {
			a.peerID = id
		}
	}
	a.executor = executor.NewExecutor[*announceJob](a.ctx, svcCtx.Config.Workers, svcCtx.Config.MaxQueueSize, a.handle)
	for _, t := range svcCtx.Torrents {
		for _, u := range t.Trackers() {
			if !strings.HasPrefix(u, "udp://") {
				logx.Infof("Skipping tracker %s of %s, only udp is supported", u, t.HexInfoHash())
				continue
			}
			a.jobs = append(a.jobs, &announceJob{torrent: t, tracker: u})
		}
	}
	return a
}

func (a *Announcer) Start() {
	a.executor.Start()
	logx.Infof("Announcing %d torrents on %d tracker slots", len(a.svcCtx.Torrents), len(a.jobs))
	for _, job := range a.jobs {
		if !a.executor.Commit(job) {
			return
		}
	}
	<-a.ctx.Done()
}

// Stop cancels pending announces, then tells every tracker that acknowledged
// a started event that we are leaving.
func (a *Announcer) Stop() {
	a.mu.Lock()
	for job, timer := range a.timers {
		timer.Stop()
		delete(a.timers, job)
	}
	a.mu.Unlock()
	a.cancel()
	a.executor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), stopAnnounceTimeout)
	defer cancel()
	group := threading.NewRoutineGroup()
	for _, job := range a.jobs {
		if !job.started {
			continue
		}
		job := job
		group.RunSafe(func() {
			_, err := a.announce(ctx, job, tracker.EventStopped)
			if err != nil {
				logx.Infof("Failed to send stopped to %s for %s: %v", job.tracker, job.torrent.HexInfoHash(), err)
			}
		})
	}
	group.Wait()

	a.mu.Lock()
	for addr, session := range a.sessions {
		_ = session.Close()
		delete(a.sessions, addr)
	}
	a.mu.Unlock()

	if path := a.svcCtx.Config.BloomFilterPath; len(path) > 0 {
		err := saveBloomFilter(path, a.svcCtx.Seen)
		if err != nil {
			logx.Errorf("Failed to save bloom filter: %+v", err)
		}
	}
}

func (a *Announcer) handle(ctx context.Context, job *announceJob) {
	metricQueueSize.Set(float64(a.executor.QueueSize()), "announce")
	err := a.svcCtx.Limiter.Wait(ctx)
	if err != nil {
		return
	}
	event := tracker.EventNone
	if !job.started {
		event = tracker.EventStarted
	}
	resp, err := a.announce(ctx, job, event)
	now := a.now()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		job.failures++
		delay := a.retryDelay(job.failures)
		logx.Errorf("Failed to announce %s to %s (failure %d), retry in %s: %v",
			job.torrent.HexInfoHash(), job.tracker, job.failures, delay, err)
		a.record(ctx, job, func(r *model.Torrent) {
			r.ApplyFailure(err, now)
		})
		a.schedule(job, delay)
		return
	}
	job.failures = 0
	job.started = true
	newPeers := a.countNewPeers(job.torrent, resp)
	logx.Infof("Announced %s to %s: seeders %d leechers %d peers %d new %d",
		job.torrent.HexInfoHash(), job.tracker, resp.Seeders, resp.Leechers, len(resp.Peers), newPeers)
	a.record(ctx, job, func(r *model.Torrent) {
		r.ApplyAnnounce(resp, newPeers, now)
	})
	a.schedule(job, a.nextInterval(resp.Interval))
}

func (a *Announcer) announce(ctx context.Context, job *announceJob, event tracker.Event) (*tracker.AnnounceResponse, error) {
	session, err := a.session(ctx, job.tracker)
	if err != nil {
		metricAnnounceCounter.Inc(event.String(), "session_fail")
		return nil, errors.Trace(err)
	}
	c := a.svcCtx.Config
	req := tracker.AnnounceRequest{
		InfoHash: job.torrent.InfoHash,
		PeerID:   a.peerID,
		Left:     uint64(job.torrent.Length()),
		Event:    event,
		NumWant:  int32(c.NumWant),
		Port:     uint16(c.Port),
	}
	if c.Seeding {
		req.Left = 0
	}
	resp, err := session.Announce(ctx, req)
	if err != nil {
		metricAnnounceCounter.Inc(event.String(), "fail")
		if errors.Is(err, tracker.ErrIO) {
			a.dropSession(job.tracker, session)
		}
		return nil, errors.Trace(err)
	}
	metricAnnounceCounter.Inc(event.String(), "ok")
	return resp, nil
}

// session returns the shared session of a tracker, opening it on first use.
func (a *Announcer) session(ctx context.Context, addr string) (tracker.Tracker, error) {
	a.mu.Lock()
	s, ok := a.sessions[addr]
	a.mu.Unlock()
	if ok {
		return s, nil
	}
	s, err := a.newSession(ctx, addr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.sessions[addr]; ok {
		_ = s.Close()
		return existing, nil
	}
	a.sessions[addr] = s
	return s, nil
}

func (a *Announcer) dropSession(addr string, s tracker.Tracker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessions[addr] == s {
		delete(a.sessions, addr)
		_ = s.Close()
	}
}

func (a *Announcer) countNewPeers(t *bittorrent.Torrent, resp *tracker.AnnounceResponse) int {
	cnt := 0
	for _, p := range resp.Peers {
		key := append(t.InfoHash[:], tracker.PeerAddr(p)...)
		if a.svcCtx.Seen.TestAndAdd(key) {
			metricPeerCounter.Inc("seen")
			continue
		}
		metricPeerCounter.Inc("new")
		cnt++
	}
	return cnt
}

func (a *Announcer) record(ctx context.Context, job *announceJob, apply func(r *model.Torrent)) {
	id := model.RecordID(job.torrent.HexInfoHash(), job.tracker)
	a.mu.Lock()
	r, ok := a.records[id]
	if !ok {
		r = model.NewTorrentFromBTTorrent(job.torrent, job.tracker)
		a.records[id] = r
	}
	apply(r)
	snapshot := *r
	a.mu.Unlock()

	for _, s := range a.svcCtx.Storages {
		err := s.Store(ctx, &snapshot)
		if err != nil {
			logx.Errorf("Failed to store announce %s: %+v", id, err)
		}
	}
}

func (a *Announcer) schedule(job *announceJob, delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.Err() != nil {
		return
	}
	a.timers[job] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.timers, job)
		a.mu.Unlock()
		a.executor.Commit(job)
	})
}

func (a *Announcer) nextInterval(seconds uint32) time.Duration {
	c := a.svcCtx.Config
	d := time.Duration(seconds) * time.Second
	if d < c.MinInterval() {
		d = c.MinInterval()
	}
	if d > c.MaxInterval() {
		d = c.MaxInterval()
	}
	return d
}

// retryDelay doubles the minimum interval per consecutive failure.
func (a *Announcer) retryDelay(failures int) time.Duration {
	c := a.svcCtx.Config
	d := c.MinInterval()
	for i := 1; i < failures && d < c.MaxInterval(); i++ {
		d *= 2
	}
	if d > c.MaxInterval() {
		d = c.MaxInterval()
	}
	return d
}
