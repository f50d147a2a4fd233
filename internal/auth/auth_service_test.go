// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/mocks"
	"github.com/holomush/warden/pkg/errutil"
)

const testHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

type serviceFixture struct {
	users    *mocks.MockUserRepository
	sessions *mocks.MockSessionRegistry
	hasher   *mocks.MockPasswordHasher
	svc      *auth.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		users:    mocks.NewMockUserRepository(t),
		sessions: mocks.NewMockSessionRegistry(t),
		hasher:   mocks.NewMockPasswordHasher(t),
	}
	svc, err := auth.NewAuthService(f.users, f.sessions, f.hasher)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func testUser() *auth.User {
	return &auth.User{ID: ulid.Make(), Email: "bob@example.com", PasswordHash: testHash}
}

func TestNewAuthService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		users       auth.UserRepository
		sessions    auth.SessionRegistry
		hasher      auth.PasswordHasher
		expectError string
	}{
		{
			name:        "nil users repository",
			sessions:    mocks.NewMockSessionRegistry(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "users repository is required",
		},
		{
			name:        "nil session registry",
			users:       mocks.NewMockUserRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "session registry is required",
		},
		{
			name:        "nil password hasher",
			users:       mocks.NewMockUserRepository(t),
			sessions:    mocks.NewMockSessionRegistry(t),
			expectError: "password hasher is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewAuthService(tt.users, tt.sessions, tt.hasher)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes password and stores normalized email", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.hasher.On("Hash", "password123").Return(testHash, nil)
		f.users.On("Add", mock.Anything, "bob@example.com", testHash).Return(user, nil)

		got, err := f.svc.Register(ctx, "  Bob@Example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("duplicate email fails with AlreadyExists", func(t *testing.T) {
		f := newServiceFixture(t)

		f.hasher.On("Hash", "other").Return(testHash, nil)
		f.users.On("Add", mock.Anything, "bob@example.com", testHash).
			Return(nil, errors.Join(errors.New("unique violation"), auth.ErrAlreadyExists))

		_, err := f.svc.Register(ctx, "bob@example.com", "other")
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrAlreadyExists))
		errutil.AssertErrorCode(t, err, auth.CodeAlreadyExists)
		assert.NotContains(t, err.Error(), "unique violation", "storage detail must not leak")
	})

	t.Run("invalid input fails before hashing", func(t *testing.T) {
		f := newServiceFixture(t)

		_, err := f.svc.Register(ctx, "not-an-email", "password123")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)

		_, err = f.svc.Register(ctx, "bob@example.com", "")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)

		f.hasher.AssertNotCalled(t, "Hash", mock.Anything)
	})

	t.Run("propagates storage errors", func(t *testing.T) {
		f := newServiceFixture(t)
		boom := errors.New("connection refused")

		f.hasher.On("Hash", "password123").Return(testHash, nil)
		f.users.On("Add", mock.Anything, "bob@example.com", testHash).Return(nil, boom)

		_, err := f.svc.Register(ctx, "bob@example.com", "password123")
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "error", auth.OutcomeOf(err))
	})
}

func TestAuthService_ValidateLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("matching credentials", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "password123", testHash).Return(true, nil)

		ok, err := f.svc.ValidateLogin(ctx, "bob@example.com", "password123")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown email still verifies against a dummy hash", func(t *testing.T) {
		f := newServiceFixture(t)

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "nobody@example.com"}).Return(nil, auth.ErrNotFound)
		f.hasher.On("Verify", "password123", mock.AnythingOfType("string")).Return(false, nil)

		ok, err := f.svc.ValidateLogin(ctx, "nobody@example.com", "password123")
		require.NoError(t, err)
		assert.False(t, ok)
		f.hasher.AssertNumberOfCalls(t, "Verify", 1)
	})

	t.Run("malformed email verifies without a lookup", func(t *testing.T) {
		f := newServiceFixture(t)

		f.hasher.On("Verify", "password123", mock.AnythingOfType("string")).Return(false, nil)

		ok, err := f.svc.ValidateLogin(ctx, "garbage", "password123")
		require.NoError(t, err)
		assert.False(t, ok)
		f.users.AssertNotCalled(t, "Find", mock.Anything, mock.Anything)
	})

	t.Run("propagates storage errors", func(t *testing.T) {
		f := newServiceFixture(t)
		boom := errors.New("timeout")

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(nil, boom)

		ok, err := f.svc.ValidateLogin(ctx, "bob@example.com", "password123")
		require.Error(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the matching user without a session", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "password123", testHash).Return(true, nil)

		got, err := f.svc.Authenticate(ctx, "Bob@Example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newServiceFixture(t)

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(testUser(), nil)
		f.hasher.On("Verify", "wrong-password", testHash).Return(false, nil)

		got, err := f.svc.Authenticate(ctx, "bob@example.com", "wrong-password")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login creates session", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "password123", testHash).Return(true, nil)
		f.hasher.On("NeedsUpgrade", testHash).Return(false)
		f.sessions.On("Create", mock.Anything, user.ID).Return("session-token", nil)

		token, err := f.svc.Login(ctx, "bob@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "session-token", token)
	})

	t.Run("wrong password fails with InvalidCredentials", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "wrong", testHash).Return(false, nil)

		token, err := f.svc.Login(ctx, "bob@example.com", "wrong")
		require.Error(t, err)
		assert.Empty(t, token)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "nobody@example.com"}).Return(nil, auth.ErrNotFound)
		f.hasher.On("Verify", "wrong", mock.AnythingOfType("string")).Return(false, nil)

		_, errWrong := f.svc.Login(ctx, "bob@example.com", "wrong")
		_, errUnknown := f.svc.Login(ctx, "nobody@example.com", "wrong")

		assert.Equal(t, errWrong.Error(), errUnknown.Error())
		assert.Equal(t, auth.ErrorCode(errWrong), auth.ErrorCode(errUnknown))
	})

	t.Run("oversized password is verified and rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()
		long := string(make([]byte, auth.MaxPasswordBytes+1))

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", mock.AnythingOfType("string"), testHash).Return(true, nil)

		_, err := f.svc.Login(ctx, "bob@example.com", long)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		f.hasher.AssertNumberOfCalls(t, "Verify", 1)
	})

	t.Run("upgrades password hash when needed", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()
		const upgraded = "$argon2id$v=19$m=131072,t=2,p=4$bmV3c2FsdA$bmV3aGFzaA"

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "password123", testHash).Return(true, nil)
		f.hasher.On("NeedsUpgrade", testHash).Return(true)
		f.hasher.On("Hash", "password123").Return(upgraded, nil)
		f.users.On("Update", mock.Anything, user.ID, mock.MatchedBy(func(u auth.UserUpdate) bool {
			return u.PasswordHash.Set && u.PasswordHash.Value == upgraded && !u.SessionTokenHash.Set
		})).Return(nil)
		f.sessions.On("Create", mock.Anything, user.ID).Return("session-token", nil)

		_, err := f.svc.Login(ctx, "bob@example.com", "password123")
		require.NoError(t, err)
	})

	t.Run("login succeeds even if password upgrade fails", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "password123", testHash).Return(true, nil)
		f.hasher.On("NeedsUpgrade", testHash).Return(true)
		f.hasher.On("Hash", "password123").Return("", errors.New("rand exhausted"))
		f.sessions.On("Create", mock.Anything, user.ID).Return("session-token", nil)

		token, err := f.svc.Login(ctx, "bob@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "session-token", token)
	})

	t.Run("propagates hasher verify errors", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "password123", testHash).Return(false, errors.New("corrupt hash"))

		_, err := f.svc.Login(ctx, "bob@example.com", "password123")
		require.Error(t, err)
		assert.False(t, errors.Is(err, auth.ErrInvalidCredentials))
		errutil.AssertErrorContext(t, err, "operation", "verify password")
	})

	t.Run("propagates session create errors", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.hasher.On("Verify", "password123", testHash).Return(true, nil)
		f.hasher.On("NeedsUpgrade", testHash).Return(false)
		f.sessions.On("Create", mock.Anything, user.ID).Return("", errors.New("redis down"))

		_, err := f.svc.Login(ctx, "bob@example.com", "password123")
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "operation", "create session")
	})
}

func TestAuthService_ResolveSession(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the session's user", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.sessions.On("Resolve", mock.Anything, "tok").Return(user.ID, nil)
		f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

		got, err := f.svc.ResolveSession(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("unknown token fails with NotFound", func(t *testing.T) {
		f := newServiceFixture(t)

		f.sessions.On("Resolve", mock.Anything, "tok").Return(ulid.ULID{}, auth.ErrNotFound)

		_, err := f.svc.ResolveSession(ctx, "tok")
		errutil.AssertErrorCode(t, err, auth.CodeNotFound)
	})

	t.Run("deleted user fails with NotFound", func(t *testing.T) {
		f := newServiceFixture(t)
		id := ulid.Make()

		f.sessions.On("Resolve", mock.Anything, "tok").Return(id, nil)
		f.users.On("GetByID", mock.Anything, id).Return(nil, auth.ErrNotFound)

		_, err := f.svc.ResolveSession(ctx, "tok")
		errutil.AssertErrorCode(t, err, auth.CodeNotFound)
	})

	t.Run("propagates registry errors", func(t *testing.T) {
		f := newServiceFixture(t)

		f.sessions.On("Resolve", mock.Anything, "tok").Return(ulid.ULID{}, errors.New("boom"))

		_, err := f.svc.ResolveSession(ctx, "tok")
		require.Error(t, err)
		assert.False(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestAuthService_GetUser(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	user := testUser()
	missing := ulid.Make()

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.users.On("GetByID", mock.Anything, missing).Return(nil, auth.ErrNotFound)

	got, err := f.svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = f.svc.GetUser(ctx, missing)
	errutil.AssertErrorCode(t, err, auth.CodeNotFound)
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("destroys session", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Destroy", mock.Anything, "tok").Return(nil)
		require.NoError(t, f.svc.Logout(ctx, "tok"))
	})

	t.Run("returns NotFound for unknown session", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Destroy", mock.Anything, "tok").Return(auth.ErrNotFound)
		errutil.AssertErrorCode(t, f.svc.Logout(ctx, "tok"), auth.CodeNotFound)
	})

	t.Run("propagates registry errors", func(t *testing.T) {
		f := newServiceFixture(t)
		f.sessions.On("Destroy", mock.Anything, "tok").Return(errors.New("boom"))
		err := f.svc.Logout(ctx, "tok")
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "operation", "destroy session")
	})
}

func TestAuthService_LogoutUser(t *testing.T) {
	ctx := context.Background()

	t.Run("destroys user sessions", func(t *testing.T) {
		f := newServiceFixture(t)
		id := ulid.Make()
		f.sessions.On("DestroyUser", mock.Anything, id).Return(nil)
		require.NoError(t, f.svc.LogoutUser(ctx, id))
	})

	t.Run("user without session fails with NotFound", func(t *testing.T) {
		f := newServiceFixture(t)
		id := ulid.Make()
		f.sessions.On("DestroyUser", mock.Anything, id).Return(auth.ErrNotFound)
		errutil.AssertErrorCode(t, f.svc.LogoutUser(ctx, id), auth.CodeNotFound)
	})
}

func TestAuthService_IssueResetToken(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the token digest", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		var stored string
		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "bob@example.com"}).Return(user, nil)
		f.users.On("Update", mock.Anything, user.ID, mock.MatchedBy(func(u auth.UserUpdate) bool {
			return u.ResetTokenHash.Set && u.ResetTokenHash.Value != nil && !u.PasswordHash.Set
		})).Run(func(args mock.Arguments) {
			stored = *args.Get(2).(auth.UserUpdate).ResetTokenHash.Value
		}).Return(nil)

		token, err := f.svc.IssueResetToken(ctx, "BOB@example.com")
		require.NoError(t, err)
		assert.Len(t, token, 64)
		assert.Equal(t, auth.HashToken(token), stored)
	})

	t.Run("unknown email fails with NotFound", func(t *testing.T) {
		f := newServiceFixture(t)
		f.users.On("Find", mock.Anything, auth.UserFilter{Email: "nobody@example.com"}).Return(nil, auth.ErrNotFound)

		_, err := f.svc.IssueResetToken(ctx, "nobody@example.com")
		errutil.AssertErrorCode(t, err, auth.CodeNotFound)
	})
}

func TestAuthService_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces password and clears token", func(t *testing.T) {
		f := newServiceFixture(t)
		user := testUser()

		f.users.On("Find", mock.Anything, auth.UserFilter{ResetTokenHash: auth.HashToken("reset")}).Return(user, nil)
		f.hasher.On("Hash", "new-password").Return("new-hash", nil)
		f.users.On("Update", mock.Anything, user.ID, mock.MatchedBy(func(u auth.UserUpdate) bool {
			return u.PasswordHash.Set && u.PasswordHash.Value == "new-hash" &&
				u.ResetTokenHash.Set && u.ResetTokenHash.Value == nil
		})).Return(nil)

		require.NoError(t, f.svc.ResetPassword(ctx, "reset", "new-password"))
	})

	t.Run("unknown token fails with InvalidToken", func(t *testing.T) {
		f := newServiceFixture(t)
		f.users.On("Find", mock.Anything, auth.UserFilter{ResetTokenHash: auth.HashToken("stale")}).Return(nil, auth.ErrNotFound)

		err := f.svc.ResetPassword(ctx, "stale", "new-password")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
		assert.Equal(t, "invalid_token", auth.OutcomeOf(err))
	})

	t.Run("empty token fails without a lookup", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.svc.ResetPassword(ctx, "", "new-password")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	})

	t.Run("invalid new password fails with Validation", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.svc.ResetPassword(ctx, "reset", "")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{auth.ErrInvalidCredentials, "invalid_credentials"},
		{auth.ErrAlreadyExists, "already_exists"},
		{auth.ErrNotFound, "not_found"},
		{auth.ErrInvalidToken, "invalid_token"},
		{auth.ErrValidation, "validation"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.OutcomeOf(tt.err))
		})
	}
}
