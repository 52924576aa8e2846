package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/lsc-studio/lscauth"
)

// ClientIP returns the first X-Forwarded-For entry, or the host part of RemoteAddr.
//
// X-Forwarded-For is trusted as sent; deploy behind a proxy that overwrites it.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestContext attaches the client IP and User-Agent to the request context, where the
// Engine reads them for rate limiting, refresh token metadata and audit entries.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := lscauth.WithClientIP(r.Context(), ClientIP(r))
		ctx = lscauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
