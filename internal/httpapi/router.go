// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/observability"
	"github.com/holomush/warden/internal/policy"
)

// DefaultCookieName is the session cookie set by POST /sessions.
const DefaultCookieName = "session_id"

// AuthService is the subset of auth.Service the API calls.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ResolveSession(ctx context.Context, token string) (*auth.User, error)
	Logout(ctx context.Context, token string) error
	IssueResetToken(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Options configures the router.
type Options struct {
	Service AuthService
	// Policy decides which paths need credentials. Nil requires them
	// everywhere.
	Policy *policy.Policy
	// CookieName defaults to DefaultCookieName.
	CookieName   string
	CookieSecure bool
	// TokenHeader is consulted when no cookie is present. Defaults to
	// policy.SessionHeader.
	TokenHeader string
	// AllowBasic accepts "Authorization: Basic" credentials on protected
	// paths.
	AllowBasic bool
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

type api struct {
	svc          AuthService
	policy       *policy.Policy
	cookieName   string
	cookieSecure bool
	tokenHeader  string
	allowBasic   bool
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewRouter builds the API handler.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Service == nil {
		return nil, oops.Errorf("auth service is required")
	}
	a := &api{
		svc:          opts.Service,
		policy:       opts.Policy,
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		tokenHeader:  opts.TokenHeader,
		allowBasic:   opts.AllowBasic,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}
	if a.cookieName == "" {
		a.cookieName = DefaultCookieName
	}
	if a.tokenHeader == "" {
		a.tokenHeader = policy.SessionHeader
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.recoverer)
	r.Use(a.observe)
	r.Use(a.requireAuth)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		abort(w, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		abort(w, http.StatusMethodNotAllowed)
	})

	r.Get("/", a.handleIndex)
	r.Get("/api/v1/status", a.handleStatus)
	r.Post("/users", a.handleRegister)
	r.Post("/sessions", a.handleLogin)
	r.Delete("/sessions", a.handleLogout)
	r.Get("/profile", a.handleProfile)
	r.Post("/reset_password", a.handleIssueResetToken)
	r.Put("/reset_password", a.handleResetPassword)

	// Trailing slashes are accepted on every route.
	return middleware.StripSlashes(r), nil
}
