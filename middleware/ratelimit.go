package middleware

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/lsc-studio/lscauth"
)

// RateLimit counts every request against class for the client IP. Unknown classes fall
// back to the general policy. Rejected requests get a 429 envelope and are logged at WARN.
func RateLimit(engine *lscauth.Engine, class string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			decision, err := engine.AllowRequest(r.Context(), class, ip)
			if decision.Limit > 0 {
				SetRateLimitHeaders(w, decision.Limit, decision.Remaining, decision.ResetIn)
			}
			if err != nil {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					"path", r.URL.Path,
					"ip", ip,
					"class", class,
				)
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetRateLimitHeaders writes the RateLimit-* headers. Reset is in whole seconds, rounded up.
func SetRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetIn time.Duration) {
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("RateLimit-Reset", strconv.Itoa(ceilSeconds(resetIn)))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func retryAfter(err error) (int, int, bool) {
	var e *lscauth.Error
	if !errors.As(err, &e) || e.Kind != lscauth.KindRateLimited {
		return 0, 0, false
	}
	return e.Limit, max(ceilSeconds(e.RetryAfter), 1), true
}
