// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

const userColumns = `id, email, password_hash, reset_token_hash, session_token_hash, session_created_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Find returns the user matching every set field of filter.
func (r *UserRepository) Find(ctx context.Context, filter auth.UserFilter) (*auth.User, error) {
	if filter.IsEmpty() {
		return nil, oops.Code("USER_FILTER_EMPTY").Errorf("user filter cannot be empty")
	}

	where, args := filterClause(filter)
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, args...)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		e := oops.Code("USER_NOT_FOUND")
		if filter.ID.Compare(ulid.ULID{}) != 0 {
			e = e.With("id", filter.ID.String())
		}
		return nil, e.Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "find user").
			Wrap(err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.Find(ctx, auth.UserFilter{ID: id})
}

// Add stores a new user.
func (r *UserRepository) Add(ctx context.Context, email, passwordHash string) (*auth.User, error) {
	user, err := auth.NewUser(email, passwordHash)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC().Truncate(time.Microsecond)
	user.UpdatedAt = user.CreatedAt

	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_EMAIL_EXISTS").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrAlreadyExists)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return user, nil
}

// Update writes the set fields of update and bumps updated_at.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, update auth.UserUpdate) error {
	set, args := setClause(update, time.Now().UTC())
	args = append(args, id.String())

	result, err := r.pool.Exec(ctx,
		`UPDATE users SET `+set+` WHERE id = $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// filterClause renders the set filter fields as an AND of equalities.
func filterClause(f auth.UserFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	if f.ID.Compare(ulid.ULID{}) != 0 {
		add("id", f.ID.String())
	}
	if f.Email != "" {
		add("email", f.Email)
	}
	if f.SessionTokenHash != "" {
		add("session_token_hash", f.SessionTokenHash)
	}
	if f.ResetTokenHash != "" {
		add("reset_token_hash", f.ResetTokenHash)
	}
	return strings.Join(conds, " AND "), args
}

// setClause renders the set update fields followed by updated_at.
func setClause(u auth.UserUpdate, now time.Time) (string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if u.PasswordHash.Set {
		add("password_hash", u.PasswordHash.Value)
	}
	if u.ResetTokenHash.Set {
		add("reset_token_hash", u.ResetTokenHash.Value)
	}
	if u.SessionTokenHash.Set {
		add("session_token_hash", u.SessionTokenHash.Value)
	}
	if u.SessionCreatedAt.Set {
		add("session_created_at", u.SessionCreatedAt.Value)
	}
	add("updated_at", now)
	return strings.Join(sets, ", "), args
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user  auth.User
		idStr string
	)
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.PasswordHash,
		&user.ResetTokenHash,
		&user.SessionTokenHash,
		&user.SessionCreatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish pgx.ErrNoRows
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	return &user, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
