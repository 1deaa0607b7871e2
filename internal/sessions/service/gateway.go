package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

// Gateway runs the login, refresh and logout flows. Every step is an
// explicit call; there are no hooks or signals between components.
type Gateway struct {
	Identity    IdentityStore
	Store       store.Store
	Issuer      *jwtx.Issuer
	Sessions    *SessionRegistry
	Revocations *RevocationStore
	Metrics     *Metrics

	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool
	Timeout       time.Duration
	Now           func() time.Time
}

type LoginRequest struct {
	Identifier string // username, or email when it contains "@"
	Password   string
	Meta       domain.SessionMeta
}

type LoginResult struct {
	Access    string
	Refresh   string
	SessionID string
	Principal domain.Principal
}

type RefreshResult struct {
	Access  string
	Refresh string // empty when rotation is off
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID  string
	IsStaff bool
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	t := g.Timeout
	if t <= 0 {
		t = DefaultBackendTimeout
	}
	return context.WithTimeout(ctx, t)
}

func (g *Gateway) accessTTL() time.Duration {
	if g.AccessTTL > 0 {
		return g.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (g *Gateway) refreshTTL() time.Duration {
	if g.RefreshTTL > 0 {
		return g.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

func custom(sid string, p domain.Principal) jwtx.Custom {
	return jwtx.Custom{SID: sid, Username: p.Username, Email: p.Email, Staff: p.IsStaff}
}

// mintPair signs an access token and, when withRefresh, a refresh token
// for the session, recording every jti in revs.
func (g *Gateway) mintPair(ctx context.Context, revs store.Revocations, userID string, c jwtx.Custom, withRefresh bool) (access, refresh jwtx.Minted, err error) {
	access, err = g.Issuer.Mint(userID, jwtx.TypeAccess, g.accessTTL(), c)
	if err != nil {
		return access, refresh, err
	}
	if err := g.Revocations.record(ctx, revs, access.JTI, userID, access.ExpiresAt); err != nil {
		return access, refresh, err
	}
	if !withRefresh {
		return access, refresh, nil
	}

	refresh, err = g.Issuer.Mint(userID, jwtx.TypeRefresh, g.refreshTTL(), c)
	if err != nil {
		return access, refresh, err
	}
	err = g.Revocations.record(ctx, revs, refresh.JTI, userID, refresh.ExpiresAt)
	return access, refresh, err
}

// Login verifies credentials and opens a session for the device. The
// session row, its tokens and their revocation entries commit together.
func (g *Gateway) Login(ctx context.Context, req LoginRequest) (res LoginResult, err error) {
	l := slogx.FromContext(ctx)
	defer func() { g.Metrics.login(err) }()

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	principal, err := g.Identity.VerifyCredentials(ctx, req.Identifier, req.Password)
	if err != nil {
		err = backendErr(err)
		l.Info("login refused", slog.String("reason", result(err)))
		return LoginResult{}, err
	}

	var stale []domain.RevocationEntry
	err = g.Store.WithTx(ctx, func(tx store.Tx) error {
		sess, replaced, err := g.Sessions.createOrReplace(ctx, tx, principal.UserID, req.Meta)
		if err != nil {
			return err
		}
		stale = replaced

		access, refresh, err := g.mintPair(ctx, tx.Revocations(), principal.UserID, custom(sess.ID, principal), true)
		if err != nil {
			return err
		}
		if err := tx.Sessions().AttachTokens(ctx, sess.ID, access.JTI, refresh.JTI); err != nil {
			return err
		}

		res = LoginResult{
			Access:    access.Token,
			Refresh:   refresh.Token,
			SessionID: sess.ID,
			Principal: principal,
		}
		return nil
	})
	if err != nil {
		err = backendErr(err)
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			l.Warn("login conflict", slog.String("user_id", principal.UserID), slog.String("client_type", string(conflict.ClientType)))
		} else {
			l.Error("login failed", slog.String("user_id", principal.UserID), slog.Any("error", err))
		}
		return LoginResult{}, err
	}

	g.Revocations.publish(ctx, stale...)
	l.Info("login",
		slog.String("user_id", principal.UserID),
		slog.String("session_id", res.SessionID),
		slog.String("client_type", string(domain.NormalizeClientType(string(req.Meta.ClientType)))),
		slog.Int("replaced_tokens", len(stale)),
	)
	return res, nil
}

func verifyErr(err error) error {
	if errors.Is(err, jwtx.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

// Refresh exchanges a refresh token for a new access token, and a new
// refresh token too when rotation is on.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (res RefreshResult, err error) {
	l := slogx.FromContext(ctx)
	defer func() { g.Metrics.refresh(err) }()

	claims, err := g.Issuer.VerifyType(refreshToken, jwtx.TypeRefresh)
	if err != nil {
		return RefreshResult{}, verifyErr(err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	revoked, err := g.Revocations.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return RefreshResult{}, err
	}
	if revoked {
		l.Info("refresh with revoked token", slog.String("user_id", claims.Subject))
		return RefreshResult{}, ErrTokenRevoked
	}

	principal, err := g.Identity.Principal(ctx, claims.Subject)
	if err != nil {
		return RefreshResult{}, backendErr(err)
	}

	var (
		expired bool
		stale   []domain.RevocationEntry
	)
	err = g.Store.WithTx(ctx, func(tx store.Tx) error {
		sess, err := tx.Sessions().GetSessionByRefreshJTI(ctx, claims.ID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if !sess.IsActive {
			return ErrSessionNotFound
		}
		if sess.UserID != claims.Subject {
			return ErrTokenInvalid
		}
		if sess.IsExpired(g.now()) {
			// Commit the revocation, then report the session gone.
			expired = true
			_, stale, err = g.Sessions.revoke(ctx, tx, sess)
			return err
		}

		access, refresh, err := g.mintPair(ctx, tx.Revocations(), sess.UserID, custom(sess.ID, principal), g.RotateRefresh)
		if err != nil {
			return err
		}

		var old []string
		if sess.AccessJTI != nil {
			old = append(old, *sess.AccessJTI)
		}
		if g.RotateRefresh {
			old = append(old, sess.RefreshJTI)
		}
		for _, jti := range old {
			entry, err := g.Revocations.blacklist(ctx, tx.Revocations(), jti)
			if err != nil {
				return err
			}
			stale = append(stale, entry)
		}

		if err := g.Sessions.updateOnRefresh(ctx, tx, sess.RefreshJTI, access.JTI, refresh.JTI); err != nil {
			return err
		}

		res = RefreshResult{Access: access.Token, Refresh: refresh.Token}
		return nil
	})
	if err != nil {
		return RefreshResult{}, backendErr(err)
	}

	g.Revocations.publish(ctx, stale...)
	if expired {
		l.Info("refresh on expired session", slog.String("user_id", claims.Subject), slog.String("session_id", claims.SID))
		return RefreshResult{}, ErrSessionNotFound
	}
	l.Debug("refresh", slog.String("user_id", claims.Subject), slog.String("session_id", claims.SID), slog.Bool("rotated", g.RotateRefresh))
	return res, nil
}

// Logout ends the session bound to refreshToken. It is idempotent and also
// accepts expired refresh tokens.
func (g *Gateway) Logout(ctx context.Context, refreshToken string) (err error) {
	l := slogx.FromContext(ctx)
	defer func() { g.Metrics.logout("single", err) }()

	claims, err := g.Issuer.VerifyType(refreshToken, jwtx.TypeRefresh)
	if errors.Is(err, jwtx.ErrExpired) {
		// The signature was checked before expiry, so the decoded claims
		// are genuine.
		claims, err = g.Issuer.Decode(refreshToken)
		if err != nil || claims.ID == "" {
			return ErrTokenUndecodable
		}
		if claims.Type != jwtx.TypeRefresh {
			return ErrLogoutTokenRejected
		}
	} else if err != nil {
		if errors.Is(err, jwtx.ErrMalformed) {
			return ErrTokenUndecodable
		}
		return fmt.Errorf("%w: %w", ErrLogoutTokenRejected, err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var (
		changed bool
		stale   []domain.RevocationEntry
	)
	err = g.Store.WithTx(ctx, func(tx store.Tx) error {
		sess, err := tx.Sessions().GetSessionByRefreshJTI(ctx, claims.ID)
		if errors.Is(err, store.ErrNotFound) {
			entry, err := g.Revocations.blacklist(ctx, tx.Revocations(), claims.ID)
			if err != nil {
				return err
			}
			stale = append(stale, entry)
			return nil
		}
		if err != nil {
			return err
		}
		changed, stale, err = g.Sessions.revoke(ctx, tx, sess)
		return err
	})
	if err != nil {
		return backendErr(err)
	}

	g.Revocations.publish(ctx, stale...)
	l.Info("logout", slog.String("user_id", claims.Subject), slog.String("session_id", claims.SID), slog.Bool("changed", changed))
	return nil
}

// LogoutAll revokes every active session of userID (the caller's own when
// empty). It carries on past individual failures and returns how many
// sessions it revoked together with the joined errors.
func (g *Gateway) LogoutAll(ctx context.Context, caller Caller, userID string) (n int, err error) {
	l := slogx.FromContext(ctx)
	defer func() { g.Metrics.logout("all", err) }()

	target, err := g.target(caller, userID)
	if err != nil {
		return 0, err
	}

	sessions, err := g.Sessions.ListActive(ctx, target)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, sess := range sessions {
		changed, err := g.Sessions.Revoke(ctx, sess)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			l.Warn("logout_all: revoke failed", slog.String("session_id", sess.ID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		if changed {
			n++
		}
	}

	l.Info("logout_all",
		slog.String("user_id", target),
		slog.String("by", caller.UserID),
		slog.Int("revoked_sessions", n),
		slog.Int("failures", len(errs)),
	)
	return n, errors.Join(errs...)
}

// target resolves whose sessions a caller may act on.
func (g *Gateway) target(caller Caller, userID string) (string, error) {
	if userID == "" || userID == caller.UserID {
		return caller.UserID, nil
	}
	if !caller.IsStaff {
		return "", ErrForbidden
	}
	return userID, nil
}

// RevokeSession ends one session. Callers may revoke their own sessions;
// staff may revoke anyone's.
func (g *Gateway) RevokeSession(ctx context.Context, caller Caller, sessionID string) error {
	sess, err := g.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != caller.UserID && !caller.IsStaff {
		return ErrForbidden
	}

	changed, err := g.Sessions.Revoke(ctx, sess)
	if err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("session revoked",
		slog.String("user_id", sess.UserID),
		slog.String("session_id", sess.ID),
		slog.String("by", caller.UserID),
		slog.Bool("changed", changed),
	)
	return nil
}

// ListSessions returns active sessions of userID (the caller's own when
// empty).
func (g *Gateway) ListSessions(ctx context.Context, caller Caller, userID string) ([]domain.Session, error) {
	target, err := g.target(caller, userID)
	if err != nil {
		return nil, err
	}
	return g.Sessions.ListActive(ctx, target)
}
