package httpx

import "net/http"

// RequireStaff lets only privileged principals through. It must run after
// AuthnMiddleware.
func RequireStaff() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if !ok || !c.Staff {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				WriteError(w, http.StatusForbidden, "forbidden", "staff privileges required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
