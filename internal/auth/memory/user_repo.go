// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// UserRepository stores users in a map guarded by a mutex. Returned users
// are copies; mutating them does not change the store.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Find returns the first user matching filter.
func (r *UserRepository) Find(_ context.Context, filter auth.UserFilter) (*auth.User, error) {
	if filter.IsEmpty() {
		return nil, oops.Code("USER_FILTER_EMPTY").Errorf("user filter cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if filter.ID.Compare(ulid.ULID{}) != 0 {
		if u, ok := r.byID[filter.ID]; ok && filter.Matches(u) {
			return copyUser(u), nil
		}
		return nil, userNotFound(filter)
	}
	if filter.Email != "" {
		if id, ok := r.byEmail[filter.Email]; ok && filter.Matches(r.byID[id]) {
			return copyUser(r.byID[id]), nil
		}
		return nil, userNotFound(filter)
	}
	for _, u := range r.byID {
		if filter.Matches(u) {
			return copyUser(u), nil
		}
	}
	return nil, userNotFound(filter)
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.Find(ctx, auth.UserFilter{ID: id})
}

// Add stores a new user.
func (r *UserRepository) Add(_ context.Context, email, passwordHash string) (*auth.User, error) {
	user, err := auth.NewUser(email, passwordHash)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return nil, oops.Code("USER_EMAIL_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	return copyUser(user), nil
}

// Update applies update to the stored user.
func (r *UserRepository) Update(_ context.Context, id ulid.ULID, update auth.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	update.Apply(u, time.Now())
	return nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func userNotFound(filter auth.UserFilter) error {
	e := oops.Code("USER_NOT_FOUND")
	if filter.ID.Compare(ulid.ULID{}) != 0 {
		e = e.With("id", filter.ID.String())
	}
	return e.Wrap(auth.ErrNotFound)
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	c.ResetTokenHash = copyPtr(u.ResetTokenHash)
	c.SessionTokenHash = copyPtr(u.SessionTokenHash)
	c.SessionCreatedAt = copyPtr(u.SessionCreatedAt)
	return &c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ auth.UserRepository = (*UserRepository)(nil)
