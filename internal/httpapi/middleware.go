// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/policy"
)

// unmatchedRoute labels requests no route handled, keeping metric
// cardinality bounded.
const unmatchedRoute = "unmatched"

// observe records request metrics and logs each request at debug level.
func (a *api) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)

		a.metrics.ObserveRequest(route, strconv.Itoa(status), elapsed)
		a.logger.DebugContext(r.Context(), "request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
		)
	})
}

// recoverer turns a handler panic into a 500 and logs it.
func (a *api) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
				panic(rec)
			}
			a.logger.ErrorContext(r.Context(), "handler panicked",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
			)
			abort(w, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth rejects requests to protected paths that carry no usable
// credentials and stores the resolved user in the request context.
func (a *api) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.policy.RequiresAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.currentUser(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// errNoCredentials means the request carried neither a token nor an
// Authorization header.
var errNoCredentials = errors.New("no credentials")

// sessionToken returns the token from the session cookie, falling back to
// the token header.
func (a *api) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, _ := policy.ExtractToken(r.Header, a.tokenHeader)
	return token
}

// currentUser resolves the caller. Missing credentials return
// errNoCredentials; credentials that identify nobody return an auth
// not-found or invalid-credentials error.
func (a *api) currentUser(r *http.Request) (*auth.User, error) {
	if user, ok := UserFromContext(r.Context()); ok {
		return user, nil
	}

	if token := a.sessionToken(r); token != "" {
		return a.svc.ResolveSession(r.Context(), token)
	}

	header, ok := policy.ExtractToken(r.Header, policy.AuthorizationHeader)
	if !ok || header == "" {
		return nil, errNoCredentials
	}
	if !a.allowBasic {
		return nil, auth.ErrNotFound
	}
	email, password, ok := policy.ParseBasicCredentials(header)
	if !ok {
		return nil, auth.ErrNotFound
	}
	user, err := a.svc.Authenticate(r.Context(), email, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		// A bad Basic pair is a failed resolution, not a login attempt.
		return nil, auth.ErrNotFound
	}
	return user, err
}
