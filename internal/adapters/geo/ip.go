package geo

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Proxies lists the peers allowed to report a client address through
// X-Forwarded-For or X-Real-IP. A nil *Proxies trusts nobody.
type Proxies struct {
	trusted []netip.Prefix
}

// ParseProxies accepts CIDR prefixes or bare addresses, e.g.
// "10.0.0.0/8, 192.0.2.10". Empty entries are skipped.
func ParseProxies(list string) (*Proxies, error) {
	p := &Proxies{}
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			addr = addr.Unmap()
			p.trusted = append(p.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		p.trusted = append(p.trusted, prefix.Masked())
	}
	return p, nil
}

func (p *Proxies) trusts(s string) bool {
	if p == nil {
		return false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP extracts the caller address. Forwarding headers count only
// when the direct peer is a trusted proxy; X-Forwarded-For is then read
// right to left and the first untrusted hop wins. Loopback and private
// addresses yield "" so the lookup service resolves the server's public
// address instead.
func (p *Proxies) ClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if p.trusts(ip) {
		if fwd := r.Header.Values("X-Forwarded-For"); len(fwd) > 0 {
			hops := strings.Split(strings.Join(fwd, ","), ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop == "" {
					continue
				}
				ip = hop
				if !p.trusts(hop) {
					break
				}
			}
		} else if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
			ip = xr
		}
	}
	if isLocal(ip) {
		return ""
	}
	return ip
}

// ClientIP is the peer address of r, ignoring forwarding headers.
func ClientIP(r *http.Request) string {
	return (*Proxies)(nil).ClientIP(r)
}

func isLocal(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return true
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast()
}
