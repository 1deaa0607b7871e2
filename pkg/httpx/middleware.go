// Package httpx carries the net/http plumbing shared by the session
// service: middleware chaining, bearer authentication, the revocation
// guard, rate limiting and JSON responses.
package httpx

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
