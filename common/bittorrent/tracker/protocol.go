package tracker

import (
	"encoding/binary"
	"net/netip"

	"github.com/juju/errors"
)

const (
	ProtocolID uint64 = 0x41727101980
)

const (
	ActionConnect  uint32 = 0x00
	ActionAnnounce uint32 = 0x01
	ActionScrape   uint32 = 0x02
	ActionError    uint32 = 0x03
)

const (
	ConnectRequestSize         = 16
	ConnectResponseSize        = 16
	AnnounceRequestSize        = 98
	AnnounceResponseHeaderSize = 20
	ResponseHeaderSize         = 8
	ScrapeRequestHeaderSize    = 16
	ScrapeResponseEntrySize    = 12
	MaxScrapeInfoHashes        = 74

	IPv4PeerSize = 6
	IPv6PeerSize = 18
)

func actionName(action uint32) string {
	switch action {
	case ActionConnect:
		return "connect"
	case ActionAnnounce:
		return "announce"
	case ActionScrape:
		return "scrape"
	case ActionError:
		return "error"
	default:
		return "unknown"
	}
}

type Event uint32

const (
	EventNone Event = iota
	EventCompleted
	EventStarted
	EventStopped
)

var eventNames = []string{"none", "completed", "started", "stopped"}

func (e Event) String() string {
	if int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

type ConnectRequest struct {
	ProtocolID    uint64
	Action        uint32
	TransactionID uint32
}

func (r *ConnectRequest) Marshal() []byte {
	buf := make([]byte, 0, ConnectRequestSize)
	buf = binary.BigEndian.AppendUint64(buf, r.ProtocolID)
	buf = binary.BigEndian.AppendUint32(buf, r.Action)
	buf = binary.BigEndian.AppendUint32(buf, r.TransactionID)
	return buf
}

func UnmarshalConnectRequest(buf []byte) (*ConnectRequest, error) {
	if len(buf) < ConnectRequestSize {
		return nil, errors.Annotatef(ErrMalformedInput, "connect request of %d bytes", len(buf))
	}
	return &ConnectRequest{
		ProtocolID:    binary.BigEndian.Uint64(buf[0:]),
		Action:        binary.BigEndian.Uint32(buf[8:]),
		TransactionID: binary.BigEndian.Uint32(buf[12:]),
	}, nil
}

// ResponseHeader opens every tracker reply.
type ResponseHeader struct {
	Action        uint32
	TransactionID uint32
}

func (h *ResponseHeader) appendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, h.Action)
	return binary.BigEndian.AppendUint32(buf, h.TransactionID)
}

func ParseResponseHeader(buf []byte) (ResponseHeader, bool) {
	if len(buf) < ResponseHeaderSize {
		return ResponseHeader{}, false
	}
	return ResponseHeader{
		Action:        binary.BigEndian.Uint32(buf[0:]),
		TransactionID: binary.BigEndian.Uint32(buf[4:]),
	}, true
}

type ConnectResponse struct {
	ResponseHeader
	ConnectionID uint64
}

func (r *ConnectResponse) Marshal() []byte {
	buf := make([]byte, 0, ConnectResponseSize)
	buf = r.appendTo(buf)
	return binary.BigEndian.AppendUint64(buf, r.ConnectionID)
}

func UnmarshalConnectResponse(buf []byte) (*ConnectResponse, error) {
	hdr, ok := ParseResponseHeader(buf)
	if !ok || len(buf) < ConnectResponseSize {
		return nil, errors.Annotatef(ErrMalformedInput, "connect response of %d bytes", len(buf))
	}
	return &ConnectResponse{
		ResponseHeader: hdr,
		ConnectionID:   binary.BigEndian.Uint64(buf[8:]),
	}, nil
}

// AnnounceRequest is the 98 byte IPv4/IPv6 announce. NumWant is signed, -1
// asks the tracker for its default and is sent as 0xFFFFFFFF.
type AnnounceRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHash      [20]byte
	PeerID        [20]byte
	Downloaded    uint64
	Left          uint64
	Uploaded      uint64
	Event         Event
	IPAddress     uint32
	Key           uint32
	NumWant       int32
	Port          uint16
}

func (r *AnnounceRequest) Marshal() []byte {
	buf := make([]byte, 0, AnnounceRequestSize)
	buf = binary.BigEndian.AppendUint64(buf, r.ConnectionID)
	buf = binary.BigEndian.AppendUint32(buf, ActionAnnounce)
	buf = binary.BigEndian.AppendUint32(buf, r.TransactionID)
	buf = append(buf, r.InfoHash[:]...)
	buf = append(buf, r.PeerID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, r.Downloaded)
	buf = binary.BigEndian.AppendUint64(buf, r.Left)
	buf = binary.BigEndian.AppendUint64(buf, r.Uploaded)
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.Event))
	buf = binary.BigEndian.AppendUint32(buf, r.IPAddress)
	buf = binary.BigEndian.AppendUint32(buf, r.Key)
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.NumWant))
	buf = binary.BigEndian.AppendUint16(buf, r.Port)
	return buf
}

func UnmarshalAnnounceRequest(buf []byte) (*AnnounceRequest, error) {
	if len(buf) < AnnounceRequestSize {
		return nil, errors.Annotatef(ErrMalformedInput, "announce request of %d bytes", len(buf))
	}
	if action := binary.BigEndian.Uint32(buf[8:]); action != ActionAnnounce {
		return nil, errors.Annotatef(ErrMalformedInput, "announce request with action %d", action)
	}
	r := &AnnounceRequest{
		ConnectionID:  binary.BigEndian.Uint64(buf[0:]),
		TransactionID: binary.BigEndian.Uint32(buf[12:]),
		Downloaded:    binary.BigEndian.Uint64(buf[56:]),
		Left:          binary.BigEndian.Uint64(buf[64:]),
		Uploaded:      binary.BigEndian.Uint64(buf[72:]),
		Event:         Event(binary.BigEndian.Uint32(buf[80:])),
		IPAddress:     binary.BigEndian.Uint32(buf[84:]),
		Key:           binary.BigEndian.Uint32(buf[88:]),
		NumWant:       int32(binary.BigEndian.Uint32(buf[92:])),
		Port:          binary.BigEndian.Uint16(buf[96:]),
	}
	copy(r.InfoHash[:], buf[16:36])
	copy(r.PeerID[:], buf[36:56])
	return r, nil
}

type AnnounceResponse struct {
	ResponseHeader
	Interval uint32
	Leechers uint32
	Seeders  uint32
	Peers    []netip.AddrPort
}

// Marshal writes IPv4 peers in 6 bytes and every other address in 18.
func (r *AnnounceResponse) Marshal() []byte {
	buf := make([]byte, 0, AnnounceResponseHeaderSize+IPv6PeerSize*len(r.Peers))
	buf = r.appendTo(buf)
	buf = binary.BigEndian.AppendUint32(buf, r.Interval)
	buf = binary.BigEndian.AppendUint32(buf, r.Leechers)
	buf = binary.BigEndian.AppendUint32(buf, r.Seeders)
	for _, p := range r.Peers {
		addr := p.Addr()
		if addr.Is4() {
			a := addr.As4()
			buf = append(buf, a[:]...)
		} else {
			a := addr.As16()
			buf = append(buf, a[:]...)
		}
		buf = binary.BigEndian.AppendUint16(buf, p.Port())
	}
	return buf
}

// UnmarshalAnnounceResponse parses a reply whose peer list uses peerSize
// bytes per entry. A peer list that is not a whole number of entries is
// rejected as a whole.
func UnmarshalAnnounceResponse(buf []byte, peerSize int) (*AnnounceResponse, error) {
	hdr, ok := ParseResponseHeader(buf)
	if !ok || len(buf) < AnnounceResponseHeaderSize {
		return nil, errors.Annotatef(ErrMalformedInput, "announce response of %d bytes", len(buf))
	}
	if peerSize != IPv4PeerSize && peerSize != IPv6PeerSize {
		return nil, errors.NotValidf("peer size %d", peerSize)
	}
	peers, err := parseCompactPeers(buf[AnnounceResponseHeaderSize:], peerSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &AnnounceResponse{
		ResponseHeader: hdr,
		Interval:       binary.BigEndian.Uint32(buf[8:]),
		Leechers:       binary.BigEndian.Uint32(buf[12:]),
		Seeders:        binary.BigEndian.Uint32(buf[16:]),
		Peers:          peers,
	}, nil
}

func parseCompactPeers(data []byte, peerSize int) ([]netip.AddrPort, error) {
	if len(data)%peerSize != 0 {
		return nil, errors.Annotatef(ErrMalformedInput, "peer list of %d bytes is not a multiple of %d", len(data), peerSize)
	}
	ipSize := peerSize - 2
	peers := make([]netip.AddrPort, 0, len(data)/peerSize)
	for i := 0; i < len(data); i += peerSize {
		addr, _ := netip.AddrFromSlice(data[i : i+ipSize])
		port := binary.BigEndian.Uint16(data[i+ipSize:])
		peers = append(peers, netip.AddrPortFrom(addr, port))
	}
	return peers, nil
}

type ScrapeRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHashes    [][20]byte
}

func (r *ScrapeRequest) Marshal() []byte {
	buf := make([]byte, 0, ScrapeRequestHeaderSize+20*len(r.InfoHashes))
	buf = binary.BigEndian.AppendUint64(buf, r.ConnectionID)
	buf = binary.BigEndian.AppendUint32(buf, ActionScrape)
	buf = binary.BigEndian.AppendUint32(buf, r.TransactionID)
	for _, infoHash := range r.InfoHashes {
		buf = append(buf, infoHash[:]...)
	}
	return buf
}

type ScrapeResponse struct {
	Seeders   uint32
	Completed uint32
	Leechers  uint32
}

type ScrapeResult struct {
	InfoHash [20]byte
	ScrapeResponse
}

// UnmarshalScrapeResponse expects exactly count entries after the header.
func UnmarshalScrapeResponse(buf []byte, count int) ([]ScrapeResponse, error) {
	if len(buf) < ResponseHeaderSize {
		return nil, errors.Annotatef(ErrMalformedInput, "scrape response of %d bytes", len(buf))
	}
	body := buf[ResponseHeaderSize:]
	if len(body) != count*ScrapeResponseEntrySize {
		return nil, errors.Annotatef(ErrMalformedInput, "scrape response body of %d bytes for %d info hashes", len(body), count)
	}
	ret := make([]ScrapeResponse, 0, count)
	for i := 0; i < len(body); i += ScrapeResponseEntrySize {
		ret = append(ret, ScrapeResponse{
			Seeders:   binary.BigEndian.Uint32(body[i:]),
			Completed: binary.BigEndian.Uint32(body[i+4:]),
			Leechers:  binary.BigEndian.Uint32(body[i+8:]),
		})
	}
	return ret, nil
}

func MarshalScrapeResponse(hdr ResponseHeader, entries []ScrapeResponse) []byte {
	buf := make([]byte, 0, ResponseHeaderSize+ScrapeResponseEntrySize*len(entries))
	buf = hdr.appendTo(buf)
	for _, e := range entries {
		buf = binary.BigEndian.AppendUint32(buf, e.Seeders)
		buf = binary.BigEndian.AppendUint32(buf, e.Completed)
		buf = binary.BigEndian.AppendUint32(buf, e.Leechers)
	}
	return buf
}

// ErrorResponse carries a human readable message after the header.
type ErrorResponse struct {
	ResponseHeader
	Message string
}

func (r *ErrorResponse) Marshal() []byte {
	buf := make([]byte, 0, ResponseHeaderSize+len(r.Message))
	buf = r.appendTo(buf)
	return append(buf, r.Message...)
}
