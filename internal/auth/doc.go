// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides session-based authentication for warden.
//
// # Domain Types
//
// Users are created through a UserRepository (the credential store) and
// changed only through partial UserUpdate values, so concurrent writers
// never clobber fields they did not touch. Session records for the stored
// registry are built with NewSession.
//
// Tokens handed to clients are 32 random bytes, hex-encoded. Only their
// SHA-256 digests are persisted.
//
// # Session Registries
//
// A SessionRegistry maps tokens to user IDs:
//   - InlineRegistry - one session per user, kept on the user record
//   - StoredRegistry - any number of sessions per user in a SessionRepository
//
// Both accept WithSessionDuration and check expiry lazily on Resolve.
//
// # Service
//
// Service coordinates registration, login, session resolution, logout and
// password reset. Failures carry one of the Code* constants and wrap one of
// the Err* sentinels.
package auth
