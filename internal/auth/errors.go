// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes returned by the auth service. The HTTP boundary maps these to
// status codes; callers should match on them with ErrorCode or errors.Is.
const (
	CodeAlreadyExists      = "AUTH_ALREADY_EXISTS"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeValidation         = "AUTH_VALIDATION"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when inserting a user whose email is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredentials is returned when an email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a reset token does not match any user.
	ErrInvalidToken = errors.New("invalid token")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// ErrorCode returns the oops code carried by err, or "" when err carries no
// code. When codes are nested, oops reports the innermost one.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

func notFound(format string, args ...any) error {
	return oops.Code(CodeNotFound).Wrapf(ErrNotFound, format, args...)
}

func validationError(format string, args ...any) error {
	return oops.Code(CodeValidation).Wrapf(ErrValidation, format, args...)
}
