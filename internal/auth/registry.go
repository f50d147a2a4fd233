// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionRegistry maps session tokens to user identities.
//
// Every lookup failure, including an expired session, is reported as
// ErrNotFound. Expiry is checked lazily on Resolve; expired sessions are
// never swept.
type SessionRegistry interface {
	// Create mints a fresh token bound to userID.
	// Returns ErrNotFound if the user does not exist.
	Create(ctx context.Context, userID ulid.ULID) (string, error)

	// Resolve returns the user bound to token.
	Resolve(ctx context.Context, token string) (ulid.ULID, error)

	// Destroy invalidates exactly the session identified by token.
	Destroy(ctx context.Context, token string) error

	// DestroyUser invalidates every session of a user.
	// Returns ErrNotFound if the user has no active session.
	DestroyUser(ctx context.Context, userID ulid.ULID) error
}

// RegistryOption configures a session registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	duration time.Duration
	clock    func() time.Time
}

// WithSessionDuration sets how long a session stays valid after creation.
// A duration <= 0 means sessions never expire.
func WithSessionDuration(d time.Duration) RegistryOption {
	return func(c *registryConfig) {
		c.duration = d
	}
}

// WithClock replaces time.Now for creation stamps and expiry checks.
func WithClock(clock func() time.Time) RegistryOption {
	return func(c *registryConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func newRegistryConfig(opts []RegistryOption) registryConfig {
	cfg := registryConfig{clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// InlineRegistry keeps the session token on the user record itself.
//
// A user has at most one session. A second Create for the same user
// overwrites the first token, which stops resolving; the holder of the
// older token is not notified.
type InlineRegistry struct {
	users UserRepository
	cfg   registryConfig
}

// NewInlineRegistry creates an InlineRegistry over the credential store.
func NewInlineRegistry(users UserRepository, opts ...RegistryOption) (*InlineRegistry, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	return &InlineRegistry{users: users, cfg: newRegistryConfig(opts)}, nil
}

// Create overwrites the user's session token and creation time.
func (r *InlineRegistry) Create(ctx context.Context, userID ulid.ULID) (string, error) {
	if _, err := r.users.GetByID(ctx, userID); err != nil {
		return "", translateNotFound(err, "SESSION_CREATE_FAILED", "user %s not found", userID)
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	now := r.cfg.clock()
	update := UserUpdate{
		SessionTokenHash: Assign(&tokenHash),
		SessionCreatedAt: Assign(&now),
	}
	if err := r.users.Update(ctx, userID, update); err != nil {
		return "", translateNotFound(err, "SESSION_CREATE_FAILED", "user %s not found", userID)
	}
	return token, nil
}

// Resolve finds the user carrying token. An expired session is reported as
// not found but left in place.
func (r *InlineRegistry) Resolve(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, notFound("session token is empty")
	}

	user, err := r.users.Find(ctx, UserFilter{SessionTokenHash: HashToken(token)})
	if err != nil {
		return ulid.ULID{}, translateNotFound(err, "SESSION_RESOLVE_FAILED", "session not found")
	}

	if r.cfg.duration > 0 {
		if user.SessionCreatedAt == nil || IsExpiredAt(*user.SessionCreatedAt, r.cfg.duration, r.cfg.clock()) {
			return ulid.ULID{}, notFound("session expired")
		}
	}
	return user.ID, nil
}

// Destroy clears the session from the user carrying token.
func (r *InlineRegistry) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return notFound("session token is empty")
	}
	user, err := r.users.Find(ctx, UserFilter{SessionTokenHash: HashToken(token)})
	if err != nil {
		return translateNotFound(err, "SESSION_DESTROY_FAILED", "session not found")
	}
	return r.clear(ctx, user.ID)
}

// DestroyUser clears the user's session. The store is not written when the
// user has no session.
func (r *InlineRegistry) DestroyUser(ctx context.Context, userID ulid.ULID) error {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return translateNotFound(err, "SESSION_DESTROY_FAILED", "user %s not found", userID)
	}
	if !user.HasSession() {
		return notFound("user %s has no active session", userID)
	}
	return r.clear(ctx, userID)
}

func (r *InlineRegistry) clear(ctx context.Context, userID ulid.ULID) error {
	update := UserUpdate{
		SessionTokenHash: Null[string](),
		SessionCreatedAt: Null[time.Time](),
	}
	if err := r.users.Update(ctx, userID, update); err != nil {
		return translateNotFound(err, "SESSION_DESTROY_FAILED", "user %s not found", userID)
	}
	return nil
}

// StoredRegistry keeps sessions as standalone records, so a user may hold
// several live sessions that are destroyed independently.
type StoredRegistry struct {
	users    UserRepository
	sessions SessionRepository
	cfg      registryConfig
}

// NewStoredRegistry creates a StoredRegistry over a session repository.
func NewStoredRegistry(users UserRepository, sessions SessionRepository, opts ...RegistryOption) (*StoredRegistry, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	return &StoredRegistry{users: users, sessions: sessions, cfg: newRegistryConfig(opts)}, nil
}

// Create persists a new session record for userID.
func (r *StoredRegistry) Create(ctx context.Context, userID ulid.ULID) (string, error) {
	if _, err := r.users.GetByID(ctx, userID); err != nil {
		return "", translateNotFound(err, "SESSION_CREATE_FAILED", "user %s not found", userID)
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	session, err := NewSession(userID, tokenHash, r.cfg.clock())
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return token, nil
}

// Resolve looks up the session record for token.
func (r *StoredRegistry) Resolve(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, notFound("session token is empty")
	}
	session, err := r.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return ulid.ULID{}, translateNotFound(err, "SESSION_RESOLVE_FAILED", "session not found")
	}
	if session.IsExpiredAt(r.cfg.duration, r.cfg.clock()) {
		return ulid.ULID{}, notFound("session expired")
	}
	return session.UserID, nil
}

// Destroy removes exactly the record for token.
func (r *StoredRegistry) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return notFound("session token is empty")
	}
	if err := r.sessions.DeleteByTokenHash(ctx, HashToken(token)); err != nil {
		return translateNotFound(err, "SESSION_DESTROY_FAILED", "session not found")
	}
	return nil
}

// DestroyUser removes every record owned by userID.
func (r *StoredRegistry) DestroyUser(ctx context.Context, userID ulid.ULID) error {
	n, err := r.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if n == 0 {
		return notFound("user %s has no active session", userID)
	}
	return nil
}

// translateNotFound replaces a storage not-found with a fresh domain
// not-found, and wraps anything else under failCode.
func translateNotFound(err error, failCode, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return notFound(format, args...)
	}
	return oops.Code(failCode).Wrap(err)
}

// Compile-time interface checks.
var (
	_ SessionRegistry = (*InlineRegistry)(nil)
	_ SessionRegistry = (*StoredRegistry)(nil)
)
