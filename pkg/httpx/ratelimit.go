package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

// RateProfile is a token bucket refilled at Requests per Window. Burst
// defaults to Requests.
type RateProfile struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// ParseRateProfile reads "requests/window", e.g. "5/1m" or "1000/1m".
func ParseRateProfile(s string) (RateProfile, error) {
	n, w, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return RateProfile{}, fmt.Errorf("rate %q: want requests/window", s)
	}
	requests, err := strconv.Atoi(n)
	if err != nil || requests <= 0 {
		return RateProfile{}, fmt.Errorf("rate %q: requests must be a positive integer", s)
	}
	window, err := time.ParseDuration(w)
	if err != nil || window <= 0 {
		return RateProfile{}, fmt.Errorf("rate %q: window must be a positive duration", s)
	}
	return RateProfile{Requests: requests, Window: window}, nil
}

func (p RateProfile) String() string {
	return fmt.Sprintf("%d/%s", p.Requests, p.Window)
}

func (p RateProfile) bucket() (rate.Limit, int) {
	burst := p.Burst
	if burst <= 0 {
		burst = p.Requests
	}
	return rate.Limit(float64(p.Requests) / p.Window.Seconds()), burst
}

// RateProfiles are the tiers routes are assigned to.
type RateProfiles struct {
	// Strict guards credential checks against brute force.
	Strict RateProfile
	// Moderate covers token exchange and session mutations.
	Moderate RateProfile
	// Lenient covers reads and health probes.
	Lenient RateProfile
	// Public covers unauthenticated, cacheable reads such as the JWKS.
	Public RateProfile
}

// DefaultRateProfiles returns 5, 20, 100 and 1000 requests per minute.
func DefaultRateProfiles() RateProfiles {
	return RateProfiles{
		Strict:   RateProfile{Requests: 5, Window: time.Minute},
		Moderate: RateProfile{Requests: 20, Window: time.Minute},
		Lenient:  RateProfile{Requests: 100, Window: time.Minute},
		Public:   RateProfile{Requests: 1000, Window: time.Minute},
	}
}

// KeyFunc picks the bucket a request is charged to. An empty key skips
// limiting for that request.
type KeyFunc func(*http.Request) string

// ClientIP returns the caller's address, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then the connection's peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByUser keys on the authenticated subject. It must run after
// AuthnMiddleware.
func ByUser(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// JSONField keys on a top level string field of a JSON body, lowercased.
// The body is restored for the handler.
func JSONField(name string) KeyFunc {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if json.Unmarshal(body, &fields) != nil {
			return ""
		}
		var v string
		if json.Unmarshal(fields[name], &v) != nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(v))
	}
}

// maxPeekBytes bounds how much of a body JSONField buffers.
const maxPeekBytes = 64 << 10

// Keys joins several KeyFuncs with ":", skipping empty parts.
func Keys(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(fns))
		for _, fn := range fns {
			if k := fn(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, ":")
	}
}

// RateLimiter hands out one token bucket per key. Buckets idle for longer
// than the profile's window are swept so the map stays bounded.
type RateLimiter struct {
	profile RateProfile
	limit   rate.Limit
	burst   int
	now     func() time.Time

	// OnReject, when set, is called for every refused request.
	OnReject func(r *http.Request)

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns a limiter for p.
func NewRateLimiter(p RateProfile) *RateLimiter {
	limit, burst := p.bucket()
	return &RateLimiter{
		profile:   p,
		limit:     limit,
		burst:     burst,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Allow charges one request to key and reports whether it may proceed and,
// if not, how long until it would.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.sweepLocked(now)
	l.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	idle := max(2*l.profile.Window, time.Minute)
	if now.Sub(l.lastSweep) < idle {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, k)
		}
	}
}

// Middleware refuses requests over the limit with 429 and Retry-After.
func (l *RateLimiter) Middleware(key KeyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				slogx.FromContext(r.Context()).Warn("rate limit: no key for request, allowing")
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := l.Allow(k)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int((wait+time.Second-1)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", l.profile.String())
			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"path", r.URL.Path,
				"limit", l.profile.String(),
				"retry_after", retryAfter,
			)
			if l.OnReject != nil {
				l.OnReject(r)
			}
			WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, retry later")
		})
	}
}

// RateLimit builds a fresh limiter for p keyed by key.
func RateLimit(p RateProfile, key KeyFunc, onReject func(*http.Request)) Middleware {
	l := NewRateLimiter(p)
	l.OnReject = onReject
	return l.Middleware(key)
}
