// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"runtime"
)

// LimitedHasher bounds the number of concurrent hash computations performed
// by the wrapped hasher. Requests beyond the limit wait for a free slot, so a
// burst of logins cannot exhaust CPU or argon2 memory for unrelated handlers.
type LimitedHasher struct {
	inner PasswordHasher
	slots chan struct{}
}

// NewLimitedHasher wraps inner. A limit <= 0 uses GOMAXPROCS.
func NewLimitedHasher(inner PasswordHasher, limit int) *LimitedHasher {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &LimitedHasher{
		inner: inner,
		slots: make(chan struct{}, limit),
	}
}

func (h *LimitedHasher) acquire() func() {
	h.slots <- struct{}{}
	return func() { <-h.slots }
}

// Hash hashes the password once a slot is free.
func (h *LimitedHasher) Hash(password string) (string, error) {
	release := h.acquire()
	defer release()
	//nolint:wrapcheck // passthrough decorator
	return h.inner.Hash(password)
}

// Verify verifies the password once a slot is free.
func (h *LimitedHasher) Verify(password, hash string) (bool, error) {
	release := h.acquire()
	defer release()
	//nolint:wrapcheck // passthrough decorator
	return h.inner.Verify(password, hash)
}

// NeedsUpgrade does not hash and is not limited.
func (h *LimitedHasher) NeedsUpgrade(hash string) bool {
	return h.inner.NeedsUpgrade(hash)
}

// DummyHash forwards to the wrapped hasher when it provides one.
func (h *LimitedHasher) DummyHash() string {
	if p, ok := h.inner.(dummyHashProvider); ok {
		return p.DummyHash()
	}
	return ""
}

// InFlight returns the number of computations currently holding a slot.
func (h *LimitedHasher) InFlight() int {
	return len(h.slots)
}
