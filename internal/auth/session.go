// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenBytes is the size of a session token before hex encoding.
const SessionTokenBytes = 32 // 32 bytes = 64 hex chars

// Session is a standalone session record used by StoredRegistry.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	CreatedAt time.Time
}

// NewSession creates a validated Session instance.
func NewSession(userID ulid.ULID, tokenHash string, createdAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if createdAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_CREATED_AT").Errorf("creation time cannot be zero")
	}
	return &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
	}, nil
}

// IsExpiredAt reports whether a session created at createdAt has outlived
// duration at time now. A duration <= 0 never expires. A session resolved
// exactly at createdAt+duration is still valid.
func IsExpiredAt(createdAt time.Time, duration time.Duration, now time.Time) bool {
	if duration <= 0 {
		return false
	}
	return now.After(createdAt.Add(duration))
}

// IsExpiredAt reports whether the session has outlived duration at time now.
func (s *Session) IsExpiredAt(duration time.Duration, now time.Time) bool {
	return IsExpiredAt(s.CreatedAt, duration, now)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken computes the hex-encoded SHA-256 digest of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages standalone session records.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	// Returns ErrNotFound if no session has that hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteByTokenHash removes exactly one session.
	// Returns ErrNotFound if no session has that hash.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUser removes every session of a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)
}
