// Package revcache caches token revocation verdicts in front of the durable
// revocation store: a bounded in-process tier and an optional Redis tier
// shared by every process.
package revcache

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds a Local cache created with a non-positive size.
const DefaultMaxEntries = 100_000

type localEntry struct {
	revoked bool
	expires time.Time
}

// Local is a process-local TTL cache of revocation verdicts keyed by jti.
// When full, expired entries are dropped first, then negative ones. A
// positive entry is never evicted before it expires; if the cache is full of
// positives the new verdict is simply not cached.
type Local struct {
	mu         sync.Mutex
	entries    map[string]localEntry
	maxEntries int
	now        func() time.Time
}

// NewLocal returns an empty cache holding at most maxEntries verdicts.
func NewLocal(maxEntries int) *Local {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Local{
		entries:    make(map[string]localEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock overrides the clock, for tests.
func (l *Local) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Get returns the cached verdict. ok is false on miss or expiry.
func (l *Local) Get(jti string) (revoked, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, found := l.entries[jti]
	if !found {
		return false, false
	}
	if !l.now().Before(e.expires) {
		delete(l.entries, jti)
		return false, false
	}
	return e.revoked, true
}

// Set caches a verdict for ttl. A negative verdict never overwrites a live
// positive one.
func (l *Local) Set(jti string, revoked bool, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, found := l.entries[jti]; found && cur.revoked && !revoked && now.Before(cur.expires) {
		return
	}
	if _, found := l.entries[jti]; !found && len(l.entries) >= l.maxEntries {
		if !l.makeRoom(now) {
			return
		}
	}
	l.entries[jti] = localEntry{revoked: revoked, expires: now.Add(ttl)}
}

// Forget drops any cached verdict for jti.
func (l *Local) Forget(jti string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, jti)
}

// Purge drops expired entries and returns how many were removed.
func (l *Local) Purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.purgeExpired(l.now())
}

// Len returns the number of cached verdicts, live or not yet purged.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Local) purgeExpired(now time.Time) int {
	n := 0
	for k, e := range l.entries {
		if !now.Before(e.expires) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// makeRoom must be called with mu held.
func (l *Local) makeRoom(now time.Time) bool {
	if l.purgeExpired(now) > 0 {
		return true
	}
	for k, e := range l.entries {
		if !e.revoked {
			delete(l.entries, k)
			return true
		}
	}
	return false
}
