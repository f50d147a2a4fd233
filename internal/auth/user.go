// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Credential constraints.
const (
	MaxEmailLength = 254

	// MaxPasswordBytes is the bcrypt input limit; argon2id shares it so that
	// switching algorithms never rejects an existing password.
	MaxPasswordBytes = 72
)

// User represents a registered account.
//
// Token fields hold SHA-256 digests, never the tokens handed to clients.
type User struct {
	ID               ulid.ULID
	Email            string
	PasswordHash     string
	ResetTokenHash   *string
	SessionTokenHash *string
	SessionCreatedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUser creates a validated User with a fresh ID.
func NewUser(email, passwordHash string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, validationError("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasSession reports whether the user record carries a session token.
func (u *User) HasSession() bool {
	return u.SessionTokenHash != nil && *u.SessionTokenHash != ""
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address so
// lookups by email are exact matches.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare RFC 5322 address.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeValidation).
			With("max", MaxEmailLength).
			Wrapf(ErrValidation, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email is not a valid address")
	}
	return nil
}

// ValidatePassword checks a plaintext password before it is hashed.
func ValidatePassword(password string) error {
	if password == "" {
		return validationError("password cannot be empty")
	}
	if len(password) > MaxPasswordBytes {
		return oops.Code(CodeValidation).
			With("max_bytes", MaxPasswordBytes).
			Wrapf(ErrValidation, "password must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

// UserFilter is an exact-match predicate over user fields. Empty fields are
// not part of the predicate. Callers must only filter on fields kept unique.
type UserFilter struct {
	ID               ulid.ULID
	Email            string
	SessionTokenHash string
	ResetTokenHash   string
}

// IsEmpty reports whether the filter constrains nothing.
func (f UserFilter) IsEmpty() bool {
	return f.ID.Compare(ulid.ULID{}) == 0 &&
		f.Email == "" &&
		f.SessionTokenHash == "" &&
		f.ResetTokenHash == ""
}

// Matches reports whether u satisfies every field set on the filter.
func (f UserFilter) Matches(u *User) bool {
	if f.IsEmpty() {
		return false
	}
	if f.ID.Compare(ulid.ULID{}) != 0 && f.ID != u.ID {
		return false
	}
	if f.Email != "" && f.Email != u.Email {
		return false
	}
	if f.SessionTokenHash != "" && (u.SessionTokenHash == nil || *u.SessionTokenHash != f.SessionTokenHash) {
		return false
	}
	if f.ResetTokenHash != "" && (u.ResetTokenHash == nil || *u.ResetTokenHash != f.ResetTokenHash) {
		return false
	}
	return true
}

// Field marks a value in a partial update. Only fields with Set == true are
// written.
type Field[T any] struct {
	Value T
	Set   bool
}

// Assign returns a Field that writes v.
func Assign[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Null returns a Field that clears a nullable column.
func Null[T any]() Field[*T] {
	return Field[*T]{Set: true}
}

// UserUpdate lists the fields to change on a user. Unset fields are left
// untouched.
type UserUpdate struct {
	PasswordHash     Field[string]
	ResetTokenHash   Field[*string]
	SessionTokenHash Field[*string]
	SessionCreatedAt Field[*time.Time]
}

// IsEmpty reports whether the update changes nothing.
func (u UserUpdate) IsEmpty() bool {
	return !u.PasswordHash.Set &&
		!u.ResetTokenHash.Set &&
		!u.SessionTokenHash.Set &&
		!u.SessionCreatedAt.Set
}

// Apply writes the set fields onto user and bumps UpdatedAt.
func (u UserUpdate) Apply(user *User, now time.Time) {
	if u.PasswordHash.Set {
		user.PasswordHash = u.PasswordHash.Value
	}
	if u.ResetTokenHash.Set {
		user.ResetTokenHash = u.ResetTokenHash.Value
	}
	if u.SessionTokenHash.Set {
		user.SessionTokenHash = u.SessionTokenHash.Value
	}
	if u.SessionCreatedAt.Set {
		user.SessionCreatedAt = u.SessionCreatedAt.Value
	}
	user.UpdatedAt = now
}

// UserRepository is the credential store.
type UserRepository interface {
	// Find returns the unique user matching filter.
	// Returns ErrNotFound if no user matches.
	Find(ctx context.Context, filter UserFilter) (*User, error)

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// Add stores a new user. Returns ErrAlreadyExists if the email is taken.
	Add(ctx context.Context, email, passwordHash string) (*User, error)

	// Update writes the set fields of update. Returns ErrNotFound if no user
	// has the given ID.
	Update(ctx context.Context, id ulid.ULID, update UserUpdate) error
}
