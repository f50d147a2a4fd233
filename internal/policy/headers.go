// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package policy

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Header names read by default.
const (
	AuthorizationHeader = "Authorization"
	SessionHeader       = "X-Session-Token"
)

const basicScheme = "Basic "

// ExtractToken returns the value of the header called name, compared
// case-insensitively. It does not validate the value.
func ExtractToken(headers http.Header, name string) (string, bool) {
	if headers == nil || name == "" {
		return "", false
	}
	if v, ok := headers[http.CanonicalHeaderKey(name)]; ok && len(v) > 0 {
		return v[0], true
	}
	for key, v := range headers {
		if strings.EqualFold(key, name) && len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}

// ParseBasicCredentials decodes an "Authorization: Basic ..." value into an
// email and password. The password may itself contain ':'.
func ParseBasicCredentials(header string) (email, password string, ok bool) {
	if len(header) < len(basicScheme) || !strings.EqualFold(header[:len(basicScheme)], basicScheme) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(basicScheme):]))
	if err != nil || !utf8.Valid(decoded) {
		return "", "", false
	}
	email, password, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return email, password, true
}
