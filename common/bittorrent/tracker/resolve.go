package tracker

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// SplitTrackerAddr accepts "host:port" or an announce URL such as
// "udp://tracker.example.org:6969/announce" and returns host and port.
func SplitTrackerAddr(addr string) (string, uint16, error) {
	hostPort := addr
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return "", 0, errors.Annotatef(ErrResolutionFailed, "parse %q: %v", addr, err)
		}
		if u.Scheme != "udp" {
			return "", 0, errors.Annotatef(ErrResolutionFailed, "%q is not a udp tracker", addr)
		}
		hostPort = u.Host
	}
	host, rawPort, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, errors.Annotatef(ErrResolutionFailed, "split %q: %v", addr, err)
	}
	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil || port == 0 {
		return "", 0, errors.Annotatef(ErrResolutionFailed, "illegal port in %q", addr)
	}
	return host, uint16(port), nil
}

// Resolve turns a tracker address into one socket address. Literal IPs are
// used as is, host names resolve to the first address returned.
func Resolve(ctx context.Context, addr string) (netip.AddrPort, error) {
	host, port, err := SplitTrackerAddr(addr)
	if err != nil {
		return netip.AddrPort{}, errors.Trace(err)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), port), nil
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, errors.Annotatef(ErrResolutionFailed, "lookup %s: %v", host, err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, errors.Annotatef(ErrResolutionFailed, "no address for %s", host)
	}
	return netip.AddrPortFrom(ips[0].Unmap(), port), nil
}
