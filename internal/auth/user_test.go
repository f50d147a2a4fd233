// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "bob@example.com", auth.NormalizeEmail("  Bob@Example.COM "))
	assert.Equal(t, "", auth.NormalizeEmail("   "))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"bob@example.com", true},
		{"bob+tag@sub.example.com", true},
		{"", false},
		{"not-an-email", false},
		{"Bob <bob@example.com>", false},
		{strings.Repeat("a", 250) + "@b.io", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := auth.ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, auth.ErrValidation))
			assert.Equal(t, auth.CodeValidation, auth.ErrorCode(err))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, auth.ValidatePassword("secret"))
	assert.NoError(t, auth.ValidatePassword(strings.Repeat("x", auth.MaxPasswordBytes)))
	assert.True(t, errors.Is(auth.ValidatePassword(""), auth.ErrValidation))
	assert.True(t, errors.Is(auth.ValidatePassword(strings.Repeat("x", auth.MaxPasswordBytes+1)), auth.ErrValidation))
}

func TestNewUser(t *testing.T) {
	u, err := auth.NewUser("bob@example.com", "hash")
	require.NoError(t, err)
	assert.NotEqual(t, ulid.ULID{}, u.ID)
	assert.False(t, u.HasSession())
	assert.Nil(t, u.ResetTokenHash)

	_, err = auth.NewUser("bad", "hash")
	assert.True(t, errors.Is(err, auth.ErrValidation))

	_, err = auth.NewUser("bob@example.com", "")
	assert.True(t, errors.Is(err, auth.ErrValidation))
}

func TestUserFilter_Matches(t *testing.T) {
	session := "session-hash"
	reset := "reset-hash"
	u := &auth.User{
		ID:               ulid.Make(),
		Email:            "bob@example.com",
		SessionTokenHash: &session,
		ResetTokenHash:   &reset,
	}

	assert.True(t, auth.UserFilter{ID: u.ID}.Matches(u))
	assert.True(t, auth.UserFilter{Email: "bob@example.com"}.Matches(u))
	assert.True(t, auth.UserFilter{SessionTokenHash: session}.Matches(u))
	assert.True(t, auth.UserFilter{ResetTokenHash: reset}.Matches(u))
	assert.True(t, auth.UserFilter{Email: "bob@example.com", ResetTokenHash: reset}.Matches(u))

	assert.False(t, auth.UserFilter{}.Matches(u), "empty filter matches nothing")
	assert.False(t, auth.UserFilter{Email: "other@example.com"}.Matches(u))
	assert.False(t, auth.UserFilter{Email: "bob@example.com", ResetTokenHash: "nope"}.Matches(u))
	assert.False(t, auth.UserFilter{SessionTokenHash: session}.Matches(&auth.User{}))
}

func TestUserUpdate_Apply(t *testing.T) {
	session := "s"
	created := time.Now().Add(-time.Hour)
	u := &auth.User{PasswordHash: "old", SessionTokenHash: &session, SessionCreatedAt: &created}

	assert.True(t, auth.UserUpdate{}.IsEmpty())

	reset := "r"
	now := time.Now()
	update := auth.UserUpdate{
		PasswordHash:     auth.Assign("new"),
		ResetTokenHash:   auth.Assign(&reset),
		SessionTokenHash: auth.Null[string](),
		SessionCreatedAt: auth.Null[time.Time](),
	}
	require.False(t, update.IsEmpty())
	update.Apply(u, now)

	assert.Equal(t, "new", u.PasswordHash)
	require.NotNil(t, u.ResetTokenHash)
	assert.Equal(t, "r", *u.ResetTokenHash)
	assert.Nil(t, u.SessionTokenHash)
	assert.Nil(t, u.SessionCreatedAt)
	assert.Equal(t, now, u.UpdatedAt)
}
