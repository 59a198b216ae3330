package tracker

import (
	"context"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	// ConnectionIDTTL is how long a tracker honours a connection id.
	ConnectionIDTTL    = time.Minute
	DefaultBaseTimeout = 15 * time.Second
	DefaultMaxAttempts = 8
	// Largest UDP payload over IPv4, a reply must never be truncated by Read.
	maxPacketSize = 65507
)

var errAttemptTimeout = errors.New("attempt timed out")

// Transport is a connected datagram socket. *net.UDPConn satisfies it.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type AddrFamily int

const (
	IPv4 AddrFamily = iota
	IPv6
)

func (f AddrFamily) peerSize() int {
	if f == IPv6 {
		return IPv6PeerSize
	}
	return IPv4PeerSize
}

// ConnectionState is either disconnected or holds the connection id issued
// by the tracker together with the time it was received.
type ConnectionState struct {
	Connected    bool
	ConnectionID uint64
	ObtainedAt   time.Time
}

// Valid reports whether the connection id may still be used at now.
func (s ConnectionState) Valid(now time.Time) bool {
	return s.Connected && now.Sub(s.ObtainedAt) < ConnectionIDTTL
}

type Option func(t *UDPTracker)

// WithBaseTimeout sets the wait of the first attempt, attempt n waits
// base*2^n.
func WithBaseTimeout(d time.Duration) Option {
	return func(t *UDPTracker) {
		t.baseTimeout = d
	}
}

func WithMaxAttempts(n int) Option {
	return func(t *UDPTracker) {
		t.maxAttempts = n
	}
}

// WithClock replaces the clock used for connection id expiry.
func WithClock(now func() time.Time) Option {
	return func(t *UDPTracker) {
		t.now = now
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(t *UDPTracker) {
		t.logger = logger
	}
}

func WithAddrFamily(f AddrFamily) Option {
	return func(t *UDPTracker) {
		t.family = f
	}
}

var _ Tracker = (*UDPTracker)(nil)

// UDPTracker is a session with one UDP tracker. It owns its socket, calls are
// serialized and a failed or cancelled exchange leaves the connection state
// as it was.
type UDPTracker struct {
	addr   string
	conn   Transport
	family AddrFamily
	key    uint32

	mu    sync.Mutex
	state ConnectionState

	baseTimeout      time.Duration
	maxAttempts      int
	now              func() time.Time
	newTransactionID func() uint32
	logger           logrus.FieldLogger
}

// NewUDPTracker resolves addr ("host:port" or "udp://host:port/announce") and
// binds a connected UDP socket to it.
func NewUDPTracker(ctx context.Context, addr string, opts ...Option) (*UDPTracker, error) {
	remote, err := Resolve(ctx, addr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(remote))
	if err != nil {
		return nil, errors.Annotatef(ErrIO, "dial %s: %v", remote, err)
	}
	family := IPv4
	if remote.Addr().Is6() {
		family = IPv6
	}
	opts = append([]Option{
		WithAddrFamily(family),
		WithLogger(logrus.WithFields(logrus.Fields{"tracker": addr, "remote": remote.String()})),
	}, opts...)
	t := NewUDPTrackerWithTransport(c, opts...)
	t.addr = addr
	return t, nil
}

// NewUDPTrackerWithTransport builds a session over an already connected
// transport.
func NewUDPTrackerWithTransport(conn Transport, opts ...Option) *UDPTracker {
	t := &UDPTracker{
		conn:             conn,
		family:           IPv4,
		key:              rand.Uint32(),
		baseTimeout:      DefaultBaseTimeout,
		maxAttempts:      DefaultMaxAttempts,
		now:              time.Now,
		newTransactionID: rand.Uint32,
		logger:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.maxAttempts < 1 {
		t.maxAttempts = 1
	}
	return t
}

func (t *UDPTracker) Addr() string {
	return t.addr
}

// State returns a copy of the current connection state.
func (t *UDPTracker) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *UDPTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = ConnectionState{}
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Connect acquires a fresh connection id.
func (t *UDPTracker) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connect(ctx)
}

func (t *UDPTracker) connect(ctx context.Context) error {
	req := ConnectRequest{
		ProtocolID:    ProtocolID,
		Action:        ActionConnect,
		TransactionID: t.newTransactionID(),
	}
	resp, err := t.roundTrip(ctx, ActionConnect, req.TransactionID, req.Marshal(), ConnectResponseSize)
	if err != nil {
		return errors.Trace(err)
	}
	cr, err := UnmarshalConnectResponse(resp)
	if err != nil {
		return errors.Trace(err)
	}
	t.state = ConnectionState{
		Connected:    true,
		ConnectionID: cr.ConnectionID,
		ObtainedAt:   t.now(),
	}
	t.logger.Debugf("Connected: %d", cr.ConnectionID)
	return nil
}

func (t *UDPTracker) ensureConnected(ctx context.Context) error {
	if t.state.Valid(t.now()) {
		return nil
	}
	if t.state.Connected {
		t.logger.Debugf("Connection id %d expired, reconnecting", t.state.ConnectionID)
	}
	return t.connect(ctx)
}

// Announce reports progress and returns the tracker's peer list. The
// ConnectionID and TransactionID of req are filled in by the session, a zero
// Key is replaced with the session key.
func (t *UDPTracker) Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.ensureConnected(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.ConnectionID = t.state.ConnectionID
	req.TransactionID = t.newTransactionID()
	if req.Key == 0 {
		req.Key = t.key
	}
	resp, err := t.roundTrip(ctx, ActionAnnounce, req.TransactionID, req.Marshal(), AnnounceResponseHeaderSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ar, err := UnmarshalAnnounceResponse(resp, t.family.peerSize())
	if err != nil {
		metricTrackerResult.Inc(actionName(ActionAnnounce), "malformed")
		return nil, errors.Trace(err)
	}
	t.logger.Debugf("Announced %x event %s: interval %d seeders %d leechers %d peers %d",
		req.InfoHash, req.Event, ar.Interval, ar.Seeders, ar.Leechers, len(ar.Peers))
	return ar, nil
}

// Scrape fetches swarm statistics for up to 74 torrents.
func (t *UDPTracker) Scrape(ctx context.Context, infoHashes [][20]byte) ([]*ScrapeResult, error) {
	if len(infoHashes) == 0 || len(infoHashes) > MaxScrapeInfoHashes {
		return nil, errors.NotValidf("scrape of %d info hashes", len(infoHashes))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.ensureConnected(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	req := ScrapeRequest{
		ConnectionID:  t.state.ConnectionID,
		TransactionID: t.newTransactionID(),
		InfoHashes:    infoHashes,
	}
	resp, err := t.roundTrip(ctx, ActionScrape, req.TransactionID, req.Marshal(), ResponseHeaderSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	entries, err := UnmarshalScrapeResponse(resp, len(infoHashes))
	if err != nil {
		metricTrackerResult.Inc(actionName(ActionScrape), "malformed")
		return nil, errors.Trace(err)
	}
	results := make([]*ScrapeResult, 0, len(entries))
	for i, e := range entries {
		results = append(results, &ScrapeResult{
			InfoHash:       infoHashes[i],
			ScrapeResponse: e,
		})
	}
	return results, nil
}

// roundTrip sends req and waits for the reply to tid. The same datagram is
// retransmitted on every attempt so a late reply to an earlier send is still
// accepted.
func (t *UDPTracker) roundTrip(ctx context.Context, action, tid uint32, req []byte, minSize int) ([]byte, error) {
	if t.conn == nil {
		return nil, errors.Annotatef(ErrIO, "%s: session closed", actionName(action))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	name := actionName(action)
	buf := make([]byte, maxPacketSize)
	mismatched := false
	ioFailures := 0
	var lastIOErr error
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		if ctxDeadline, ok := ctx.Deadline(); ok && !time.Now().Before(ctxDeadline) {
			metricTrackerResult.Inc(name, "cancelled")
			return nil, errors.Trace(context.DeadlineExceeded)
		}
		deadline := time.Now().Add(t.baseTimeout << attempt)
		metricTrackerSend.Inc(name, attemptLabel(attempt))
		_, err := t.conn.Write(req)
		if err != nil {
			ioFailures++
			lastIOErr = err
			t.logger.Warnf("Failed to send %s (attempt %d): %v", name, attempt+1, err)
			err = sleepUntil(ctx, deadline)
			if err != nil {
				return nil, errors.Trace(err)
			}
			continue
		}
		resp, err := t.receive(ctx, action, tid, deadline, buf, minSize, &mismatched)
		switch {
		case err == nil:
			metricTrackerResult.Inc(name, "ok")
			return resp, nil
		case errors.Is(err, errAttemptTimeout):
			t.logger.Debugf("No %s reply within %s (attempt %d)", name, t.baseTimeout<<attempt, attempt+1)
		case ctx.Err() != nil:
			metricTrackerResult.Inc(name, "cancelled")
			return nil, errors.Trace(ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			metricTrackerResult.Inc(name, "cancelled")
			return nil, err
		case isTrackerError(err):
			metricTrackerResult.Inc(name, "error")
			return nil, err
		default:
			ioFailures++
			lastIOErr = err
			t.logger.Warnf("Failed to receive %s reply (attempt %d): %v", name, attempt+1, err)
			err = sleepUntil(ctx, deadline)
			if err != nil {
				return nil, errors.Trace(err)
			}
		}
	}
	switch {
	case mismatched:
		metricTrackerResult.Inc(name, "mismatch")
		return nil, errors.Annotatef(ErrProtocolMismatch, "%s: replies to transaction %d carried the wrong action", name, tid)
	case ioFailures == t.maxAttempts:
		metricTrackerResult.Inc(name, "io")
		return nil, errors.Annotatef(ErrIO, "%s: %v", name, lastIOErr)
	default:
		metricTrackerResult.Inc(name, "timeout")
		return nil, errors.Annotatef(ErrTimeout, "%s: no reply after %d attempts", name, t.maxAttempts)
	}
}

// receive reads datagrams until one answers tid with the expected action.
// Replies to other transactions are dropped.
func (t *UDPTracker) receive(ctx context.Context, action, tid uint32, deadline time.Time, buf []byte, minSize int, mismatched *bool) ([]byte, error) {
	// a read that stops at the context's deadline ends the call, not the attempt
	capped := false
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
		capped = true
	}
	err := t.conn.SetReadDeadline(deadline)
	if err != nil {
		return nil, errors.Trace(err)
	}
	// the cancel hook may have fired before the deadline above replaced its own
	if ctx.Err() != nil {
		return nil, errors.Trace(ctx.Err())
	}
	name := actionName(action)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Trace(ctx.Err())
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if capped {
					return nil, errors.Trace(context.DeadlineExceeded)
				}
				return nil, errAttemptTimeout
			}
			return nil, err
		}
		hdr, ok := ParseResponseHeader(buf[:n])
		if !ok {
			metricTrackerReceive.Inc(name, "short")
			t.logger.Debugf("Dropped %d byte datagram", n)
			continue
		}
		if hdr.TransactionID != tid {
			metricTrackerReceive.Inc(name, "stale")
			t.logger.Debugf("Dropped reply to transaction %d, waiting for %d", hdr.TransactionID, tid)
			continue
		}
		if hdr.Action == ActionError && action != ActionError {
			metricTrackerReceive.Inc(name, "error")
			return nil, errors.Trace(&TrackerError{Message: string(buf[ResponseHeaderSize:n])})
		}
		if hdr.Action != action {
			metricTrackerReceive.Inc(name, "mismatch")
			*mismatched = true
			t.logger.Debugf("Reply to transaction %d has action %d, want %d", tid, hdr.Action, action)
			continue
		}
		if n < minSize {
			metricTrackerReceive.Inc(name, "short")
			*mismatched = true
			t.logger.Debugf("Reply to transaction %d has %d bytes, want at least %d", tid, n, minSize)
			continue
		}
		metricTrackerReceive.Inc(name, "ok")
		resp := make([]byte, n)
		copy(resp, buf[:n])
		return resp, nil
	}
}

func isTrackerError(err error) bool {
	var te *TrackerError
	return errors.As(err, &te)
}

func attemptLabel(attempt int) string {
	if attempt == 0 {
		return "first"
	}
	return "retransmit"
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PeerAddr renders a compact peer the way logs and storage want it.
func PeerAddr(p netip.AddrPort) string {
	return net.JoinHostPort(p.Addr().String(), strconv.Itoa(int(p.Port())))
}
