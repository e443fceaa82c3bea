package middleware

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-auth-nosql/internal/config"
)

// RealIP replaces RemoteAddr with the client address from X-Forwarded-For or
// X-Real-IP, but only when the connecting peer is one of trusted. Without
// trusted proxies the headers are ignored and RemoteAddr is the socket peer.
func RealIP(trusted []string) func(http.Handler) http.Handler {
	var nets []netip.Prefix
	for _, s := range trusted {
		p, err := config.ParseProxy(s)
		if err != nil {
			slog.Warn("ignoring trusted proxy", "value", s, "err", err)
			continue
		}
		nets = append(nets, p)
	}
	return func(next http.Handler) http.Handler {
		if len(nets) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := forwardedClient(r, nets); ip != "" {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedClient walks X-Forwarded-For from the right and returns the first
// hop that is not a trusted proxy. Entries left of it are client-controlled.
func forwardedClient(r *http.Request, nets []netip.Prefix) string {
	peer, ok := parseAddr(ClientIP(r))
	if !ok || !trustedAddr(nets, peer) {
		return ""
	}
	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(hops[i])
			if !ok {
				break
			}
			if !trustedAddr(nets, addr) {
				return addr.String()
			}
			last = addr
		}
		if last.IsValid() {
			return last.String()
		}
		return ""
	}
	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return ""
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func trustedAddr(nets []netip.Prefix, addr netip.Addr) bool {
	for _, n := range nets {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}
