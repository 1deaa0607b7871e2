package domain

import "time"

// RevocationEntry tracks an issued jti until it expires. Subject is empty
// for tombstones written when an unknown jti is blacklisted.
type RevocationEntry struct {
	JTI         string
	Subject     string
	ExpiresAt   time.Time
	Blacklisted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Usable reports whether the token may still be honoured at now.
func (e *RevocationEntry) Usable(now time.Time) bool {
	return !e.Blacklisted && now.Before(e.ExpiresAt)
}
