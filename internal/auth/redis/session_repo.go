// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis implements auth.SessionRepository on Redis.
//
// Each session is a JSON document under <prefix>session:<token hash>; each
// user has a set of token hashes under <prefix>user:<id>:sessions. Keys
// carry no TTL: expiry is decided by the registry when a token is resolved.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// DefaultKeyPrefix namespaces every key the repository writes.
const DefaultKeyPrefix = "warden:"

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRepository implements auth.SessionRepository using Redis.
type SessionRepository struct {
	rdb    goredis.Cmdable
	prefix string
}

// NewSessionRepository creates a SessionRepository. An empty prefix uses
// DefaultKeyPrefix.
func NewSessionRepository(rdb goredis.Cmdable, prefix string) *SessionRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &SessionRepository{rdb: rdb, prefix: prefix}
}

func (r *SessionRepository) sessionKey(tokenHash string) string {
	return r.prefix + "session:" + tokenHash
}

func (r *SessionRepository) userKey(userID ulid.ULID) string {
	return r.prefix + "user:" + userID.String() + ":sessions"
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	payload, err := json.Marshal(sessionRecord{
		ID:        session.ID.String(),
		UserID:    session.UserID.String(),
		CreatedAt: session.CreatedAt.UTC(),
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "marshal session").Wrap(err)
	}

	ok, err := r.rdb.SetNX(ctx, r.sessionKey(session.TokenHash), payload, 0).Result()
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "set session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	if !ok {
		return oops.Code("SESSION_HASH_EXISTS").
			With("session_id", session.ID.String()).
			Wrap(auth.ErrAlreadyExists)
	}

	if err := r.rdb.SAdd(ctx, r.userKey(session.UserID), session.TokenHash).Err(); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "index session by user").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	rec, err := r.load(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	session := &auth.Session{TokenHash: tokenHash, CreatedAt: rec.CreatedAt}
	if session.ID, err = ulid.Parse(rec.ID); err != nil {
		return nil, oops.Code("SESSION_CORRUPT_ID").With("id", rec.ID).Wrap(err)
	}
	if session.UserID, err = ulid.Parse(rec.UserID); err != nil {
		return nil, oops.Code("SESSION_CORRUPT_ID").With("user_id", rec.UserID).Wrap(err)
	}
	return session, nil
}

// DeleteByTokenHash removes one session and its user index entry.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	rec, err := r.load(ctx, tokenHash)
	if err != nil {
		return err
	}
	userID, err := ulid.Parse(rec.UserID)
	if err != nil {
		return oops.Code("SESSION_CORRUPT_ID").With("user_id", rec.UserID).Wrap(err)
	}

	var del *goredis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, r.sessionKey(tokenHash))
		pipe.SRem(ctx, r.userKey(userID), tokenHash)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	if del.Val() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes every session of userID.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	hashes, err := r.rdb.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "list user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = r.sessionKey(h)
	}

	var del *goredis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.Del(ctx, r.userKey(userID))
		return nil
	})
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return del.Val(), nil
}

func (r *SessionRepository) load(ctx context.Context, tokenHash string) (*sessionRecord, error) {
	data, err := r.rdb.Get(ctx, r.sessionKey(tokenHash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session").
			Wrap(err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("operation", "unmarshal session").Wrap(err)
	}
	return &rec, nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
