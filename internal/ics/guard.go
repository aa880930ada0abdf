package ics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"
)

// ErrForbiddenHost is returned for calendar URLs the server must not fetch.
var ErrForbiddenHost = errors.New("ics: host not allowed")

// PublicOnlyClient returns a client that refuses to connect to loopback,
// private, link-local, multicast or unspecified addresses. The check runs on
// the resolved address at dial time, so DNS names pointing inward fail too.
func PublicOnlyClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			return checkPublic(address)
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func checkPublic(address string) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, address)
	}
	ip := ap.Addr().Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, ip)
	}
	return nil
}

// HostAllowed reports whether rawURL's host is in allowed. An empty list
// allows every host; entries match case-insensitively, and ".example.com"
// matches any subdomain.
func HostAllowed(rawURL string, allowed []string) error {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return err
	}
	if len(allowed) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if host == a || (strings.HasPrefix(a, ".") && strings.HasSuffix(host, a)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
}
