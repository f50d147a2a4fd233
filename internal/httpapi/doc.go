// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth service over HTTP.
//
// Routes:
//
//	GET    /                 welcome message
//	GET    /api/v1/status    liveness for clients
//	POST   /users            register (form: email, password)
//	POST   /sessions         log in and set the session cookie
//	DELETE /sessions         log out and redirect to /
//	GET    /profile          email of the current user
//	POST   /reset_password   issue a reset token (form: email)
//	PUT    /reset_password   reset a password (form: email, reset_token, new_password)
//
// Every request whose path is not excluded by the auth policy must carry a
// session token (cookie first, then header) or, when enabled, Basic
// credentials. Missing credentials yield 401; credentials that resolve to no
// user yield 403.
package httpapi
