// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// SessionRepository keeps session records in memory, indexed by token hash
// and by owning user.
type SessionRepository struct {
	mu     sync.RWMutex
	byHash map[string]auth.Session
	byUser map[ulid.ULID]map[string]struct{}
}

// NewSessionRepository creates an empty SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byHash: make(map[string]auth.Session),
		byUser: make(map[ulid.ULID]map[string]struct{}),
	}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[session.TokenHash]; exists {
		return oops.Code("SESSION_HASH_EXISTS").
			With("session_id", session.ID.String()).
			Wrap(auth.ErrAlreadyExists)
	}
	r.byHash[session.TokenHash] = *session
	hashes, ok := r.byUser[session.UserID]
	if !ok {
		hashes = make(map[string]struct{})
		r.byUser[session.UserID] = hashes
	}
	hashes[session.TokenHash] = struct{}{}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &s, nil
}

// DeleteByTokenHash removes one session.
func (r *SessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byHash[tokenHash]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(r.byHash, tokenHash)
	if hashes, ok := r.byUser[s.UserID]; ok {
		delete(hashes, tokenHash)
		if len(hashes) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
	return nil
}

// DeleteByUser removes every session of userID.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hashes := r.byUser[userID]
	for h := range hashes {
		delete(r.byHash, h)
	}
	delete(r.byUser, userID)
	return int64(len(hashes)), nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHash)
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
