package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/sessions/internal/sessions/domain"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/cryptox"
	"github.com/aussiebroadwan/sessions/pkg/idx"
)

// IdentityStore checks credentials. The session service only ever asks it
// two questions and never sees password hashes.
type IdentityStore interface {
	// VerifyCredentials returns the principal for identifier/password, or
	// ErrInvalidCredentials / ErrAccountDisabled.
	VerifyCredentials(ctx context.Context, identifier, password string) (domain.Principal, error)

	// Principal reloads a user, failing ErrAccountDisabled when the
	// account has been switched off since login.
	Principal(ctx context.Context, userID string) (domain.Principal, error)
}

// LocalIdentityStore keeps users in the service's own database.
type LocalIdentityStore struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher

	// dummyHash is verified against when the user does not exist so both
	// paths cost one argon2 evaluation.
	dummyHash string
}

func NewLocalIdentityStore(st store.Store, hasher *cryptox.PasswordHasher) (*LocalIdentityStore, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, err
	}
	return &LocalIdentityStore{Store: st, Hasher: hasher, dummyHash: dummy}, nil
}

// VerifyCredentials looks identifier up as an email when it contains "@",
// otherwise as a username.
func (s *LocalIdentityStore) VerifyCredentials(ctx context.Context, identifier, password string) (domain.Principal, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return domain.Principal{}, ErrInvalidCredentials
	}

	var (
		user domain.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.Store.Users().GetUserByEmail(ctx, identifier)
	} else {
		user, err = s.Store.Users().GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, store.ErrNotFound) {
		_ = s.Hasher.Verify(password, s.dummyHash)
		return domain.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Principal{}, err
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		return domain.Principal{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.Principal{}, ErrAccountDisabled
	}
	return user.Principal(), nil
}

func (s *LocalIdentityStore) Principal(ctx context.Context, userID string) (domain.Principal, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Principal{}, ErrTokenInvalid
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if !user.IsActive {
		return domain.Principal{}, ErrAccountDisabled
	}
	return user.Principal(), nil
}

// NewUser is the input to CreateUser.
type NewUser struct {
	Username string
	Email    string
	Password string
	IsStaff  bool
}

// CreateUser hashes the password and stores a new active user. Username
// and email are stored lowercased.
func (s *LocalIdentityStore) CreateUser(ctx context.Context, in NewUser) (domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || strings.Contains(username, "@") {
		return domain.User{}, errors.New("username is required and must not contain '@'")
	}
	if in.Password == "" {
		return domain.User{}, errors.New("password is required")
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      in.IsStaff,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
