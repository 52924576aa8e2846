package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/lsc-studio/lscauth"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access token payload stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*lscauth.AccessPayload, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*lscauth.AccessPayload)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx the way [Guard] does.
func WithClaims(ctx context.Context, claims *lscauth.AccessPayload) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard rejects requests without a valid "Authorization: Bearer" access token and stores
// the verified claims in the request context.
func Guard(engine *lscauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, lscauth.ErrInvalidToken)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, lscauth.ErrInvalidToken)
				return
			}

			claims, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequirePlatformRole allows requests whose claims carry one of roles. It must run after
// [Guard]; requests without claims are rejected as unauthenticated.
func RequirePlatformRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteError(w, lscauth.ErrInvalidToken)
				return
			}
			if _, ok := allowed[claims.PlatformRole]; !ok {
				writeEnvelope(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
