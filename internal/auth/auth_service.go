// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/holomush/warden/internal/observability"
)

var tracer = otel.Tracer("warden/auth")

// dummyPasswordHash is verified against when the email is unknown and the
// hasher cannot produce a dummy hash of its own.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service provides authentication operations.
type Service struct {
	users    UserRepository
	sessions SessionRegistry
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewAuthService creates a new Service with the default logger.
func NewAuthService(users UserRepository, sessions SessionRegistry, hasher PasswordHasher) (*Service, error) {
	return NewAuthServiceWithLogger(users, sessions, hasher, slog.Default())
}

// NewAuthServiceWithLogger creates a new Service that logs best-effort
// failures to logger.
func NewAuthServiceWithLogger(users UserRepository, sessions SessionRegistry, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session registry is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// Register hashes password and stores a new user.
// Returns ErrValidation for malformed input and ErrAlreadyExists when the
// email is taken.
func (s *Service) Register(ctx context.Context, email, password string) (user *User, err error) {
	ctx, end := startOperation(ctx, "register")
	defer func() { end(err) }()

	email = NormalizeEmail(email)
	if err = ValidateEmail(email); err != nil {
		return nil, err
	}
	if err = ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err = s.users.Add(ctx, email, hash)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code(CodeAlreadyExists).Wrapf(ErrAlreadyExists, "email already registered")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "add user").
			Wrap(err)
	}
	return user, nil
}

// ValidateLogin reports whether email and password identify a user. Unknown
// emails and wrong passwords both yield (false, nil) after the same hash
// verification work.
func (s *Service) ValidateLogin(ctx context.Context, email, password string) (valid bool, err error) {
	ctx, end := startOperation(ctx, "validate_login")
	defer func() { end(err) }()

	_, err = s.authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Authenticate returns the user identified by email and password without
// creating a session. Returns ErrInvalidCredentials on any mismatch.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user *User, err error) {
	ctx, end := startOperation(ctx, "authenticate")
	defer func() { end(err) }()

	return s.authenticate(ctx, email, password)
}

// Login validates the credentials and creates a session for the user.
// Returns the plaintext session token.
func (s *Service) Login(ctx context.Context, email, password string) (token string, err error) {
	ctx, end := startOperation(ctx, "login")
	defer func() { end(err) }()

	user, err := s.authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}

	s.upgradeHash(ctx, user, password)

	token, err = s.sessions.Create(ctx, user.ID)
	if err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "create session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// ResolveSession returns the user bound to token. Unknown, destroyed and
// expired tokens all return ErrNotFound.
func (s *Service) ResolveSession(ctx context.Context, token string) (user *User, err error) {
	ctx, end := startOperation(ctx, "resolve_session")
	defer func() { end(err) }()

	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("session not found")
		}
		return nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "resolve session").
			Wrap(err)
	}

	user, err = s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("session not found")
		}
		return nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

// GetUser returns the user with id.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (user *User, err error) {
	ctx, end := startOperation(ctx, "get_user")
	defer func() { end(err) }()

	user, err = s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("user %s not found", id)
		}
		return nil, oops.Code("AUTH_GET_USER_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// Logout destroys the session identified by token.
// Returns ErrNotFound if no such session is active.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, end := startOperation(ctx, "logout")
	defer func() { end(err) }()

	if err = s.sessions.Destroy(ctx, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("no active session")
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "destroy session").
			Wrap(err)
	}
	return nil
}

// LogoutUser destroys every session of the user.
// Returns ErrNotFound if the user has no active session; nothing is written
// in that case.
func (s *Service) LogoutUser(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, end := startOperation(ctx, "logout_user")
	defer func() { end(err) }()

	if err = s.sessions.DestroyUser(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("no active session for user %s", userID)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "destroy user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// IssueResetToken generates a reset token for the user with email, replacing
// any token issued before. Returns the plaintext token; only its hash is
// stored. Returns ErrNotFound for an unknown email.
func (s *Service) IssueResetToken(ctx context.Context, email string) (token string, err error) {
	ctx, end := startOperation(ctx, "issue_reset_token")
	defer func() { end(err) }()

	user, err := s.users.Find(ctx, UserFilter{Email: NormalizeEmail(email)})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", notFound("user not found")
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err = s.users.Update(ctx, user.ID, UserUpdate{ResetTokenHash: Assign(&hash)}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", notFound("user not found")
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// ResetPassword replaces the password of the user holding token and clears
// the token so it cannot be used again.
// Returns ErrInvalidToken if no user holds token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, end := startOperation(ctx, "reset_password")
	defer func() { end(err) }()

	if token == "" {
		return invalidToken()
	}
	if err = ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.Find(ctx, UserFilter{ResetTokenHash: HashToken(token)})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidToken()
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	update := UserUpdate{
		PasswordHash:   Assign(hash),
		ResetTokenHash: Null[string](),
	}
	if err = s.users.Update(ctx, user.ID, update); err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidToken()
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// authenticate returns the user for a matching email and password, or
// ErrInvalidCredentials. A password is always verified, against a dummy
// hash when the email is unknown or malformed, so both failures cost the
// same.
func (s *Service) authenticate(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)

	var user *User
	if ValidateEmail(email) == nil {
		found, err := s.users.Find(ctx, UserFilter{Email: email})
		switch {
		case err == nil:
			user = found
		case errors.Is(err, ErrNotFound):
		default:
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "find user by email").
				Wrap(err)
		}
	}

	targetHash := s.dummyHash()
	if user != nil {
		targetHash = user.PasswordHash
	}

	// Oversized passwords are still verified against the target so the
	// failure is indistinguishable from a mismatch.
	candidate := password
	if ValidatePassword(password) != nil {
		candidate = dummyPassword + "!"
		user = nil
	}

	valid, err := s.hasher.Verify(candidate, targetHash)
	if err != nil {
		if user == nil {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if user == nil || !valid {
		return nil, invalidCredentials()
	}
	return user, nil
}

// upgradeHash rehashes the password with the hasher's current settings when
// the stored hash is outdated. Failures are logged; login proceeds.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "hash password",
			"user_id", user.ID.String(),
			"error", err,
		)
		return
	}
	if err := s.users.Update(ctx, user.ID, UserUpdate{PasswordHash: Assign(newHash)}); err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "update password hash",
			"user_id", user.ID.String(),
			"error", err,
		)
		return
	}
	user.PasswordHash = newHash
}

func (s *Service) dummyHash() string {
	if p, ok := s.hasher.(dummyHashProvider); ok {
		if h := p.DummyHash(); h != "" {
			return h
		}
	}
	return dummyPasswordHash
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrapf(ErrInvalidCredentials, "invalid email or password")
}

func invalidToken() error {
	return oops.Code(CodeInvalidToken).Wrapf(ErrInvalidToken, "invalid reset token")
}

// startOperation opens a trace span for an auth operation. The returned
// function ends the span and counts the outcome.
func startOperation(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "auth."+operation)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RecordAuthOperation(operation, OutcomeOf(err))
		span.End()
	}
}

// OutcomeOf classifies err into a short label for metrics and logs.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
