package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

// RevocationChecker answers whether a jti has been revoked.
type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// RevocationGuard rejects requests under the given path prefixes whose
// bearer token has been revoked. Requests without a verifiable token pass
// through unchanged; authentication is left to the handler. A checker error
// fails closed with 503.
func RevocationGuard(v TokenVerifier, checker RevocationChecker, prefixes ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasAnyPrefix(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := v.Verify(raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			revoked, err := checker.IsBlacklisted(ctx, claims.ID)
			if err != nil {
				slogx.FromContext(ctx).Error("revocation check failed", "err", err, "user_id", claims.Subject)
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusServiceUnavailable, "backend_unavailable", "revocation state unavailable")
				return
			}
			if revoked {
				slogx.FromContext(ctx).Info("revoked token rejected", "user_id", claims.Subject, "session_id", claims.SID)
				WriteError(w, http.StatusUnauthorized, "token_revoked", "token has been revoked")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
