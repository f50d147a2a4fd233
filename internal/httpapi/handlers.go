// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/holomush/warden/internal/auth"
)

func (a *api) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenue"})
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleRegister creates a user from the email and password form fields.
func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Register(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email already registered"})
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": user.Email, "message": "user created"})
}

// handleLogin creates a session and sets it as a cookie.
func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token, err := a.svc.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"email": auth.NormalizeEmail(email), "message": "logged in"})
}

// handleLogout destroys the caller's session, clears the cookie and
// redirects home.
func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := a.sessionToken(r)
	if token == "" {
		abort(w, http.StatusForbidden)
		return
	}
	if err := a.svc.Logout(r.Context(), token); err != nil {
		a.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleProfile returns the current user's email.
func (a *api) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		// Anonymous callers get 403 here even when the path is excluded
		// from the auth middleware.
		if errors.Is(err, errNoCredentials) {
			err = auth.ErrNotFound
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": user.Email})
}

func (a *api) handleIssueResetToken(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	token, err := a.svc.IssueResetToken(r.Context(), email)
	if err != nil {
		// Unknown and malformed emails look the same to the caller.
		if errors.Is(err, auth.ErrValidation) {
			err = auth.ErrNotFound
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": auth.NormalizeEmail(email), "reset_token": token})
}

func (a *api) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	err := a.svc.ResetPassword(r.Context(), r.PostFormValue("reset_token"), r.PostFormValue("new_password"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": auth.NormalizeEmail(email), "message": "Password updated"})
}
