package domain

import (
	"strconv"
	"strings"
	"time"
)

// ClientType tags the kind of device a session belongs to. Unknown values
// are kept verbatim; they only partition the single-session policy.
type ClientType string

const (
	ClientWeb         ClientType = "web"
	ClientMobile      ClientType = "mobile"
	ClientTelegramBot ClientType = "telegram_bot"
	ClientUnknown     ClientType = "unknown"
)

// NormalizeClientType lowercases and trims, defaulting to "unknown".
func NormalizeClientType(s string) ClientType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ClientUnknown
	}
	return ClientType(s)
}

// SecondaryIdentity is an optional per-platform identity attached to a
// session, e.g. the Telegram account a bot session acts for.
type SecondaryIdentity struct {
	Present          bool
	TelegramUserID   int64
	TelegramUsername string
}

// Key returns the discriminator used by the single-active-session index:
// "" when absent, the Telegram user id otherwise.
func (s SecondaryIdentity) Key() string {
	if !s.Present {
		return ""
	}
	return "tg:" + strconv.FormatInt(s.TelegramUserID, 10)
}

// CarriesSecondary reports whether sessions of this client type act for a
// secondary identity. Only bot sessions do.
func (c ClientType) CarriesSecondary() bool {
	return c == ClientTelegramBot
}

// SessionKey identifies the slot at most one active session may occupy.
type SessionKey struct {
	UserID      string
	ClientType  ClientType
	SecondaryID string
}

// NewSessionKey builds the slot for a login. The secondary identity only
// splits slots for client types that carry one.
func NewSessionKey(userID string, ct ClientType, sec SecondaryIdentity) SessionKey {
	k := SessionKey{UserID: userID, ClientType: ct}
	if ct.CarriesSecondary() {
		k.SecondaryID = sec.Key()
	}
	return k
}

// Session is one device's authenticated presence.
type Session struct {
	ID           string
	UserID       string
	RefreshJTI   string
	AccessJTI    *string
	ClientType   ClientType
	DeviceName   string
	IPAddress    string
	UserAgent    string
	Secondary    SecondaryIdentity
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	IsActive     bool
}

// Key returns the slot this session occupies.
func (s *Session) Key() SessionKey {
	return NewSessionKey(s.UserID, s.ClientType, s.Secondary)
}

// IsExpired reports whether the session lifetime has passed.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionMeta is what a client tells us about itself on login.
type SessionMeta struct {
	ClientType ClientType
	DeviceName string
	IPAddress  string
	UserAgent  string
	Secondary  SecondaryIdentity
}
