// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Redaction replaces redacted values.
const Redaction = "***"

// FieldSeparator ends a field=value run inside a log message.
const FieldSeparator = ";"

// PIIFields are redacted by default.
var PIIFields = []string{"name", "email", "phone", "ssn", "password"}

// FilterDatum replaces the value of every field=value<separator> run in
// message whose field is listed in fields. The separator is kept.
// Patterns are compiled per call; handlers reuse a datumFilter instead.
func FilterDatum(fields []string, redaction, message, separator string) string {
	return newDatumFilter(fields, redaction, separator).apply(message)
}

// datumFilter holds one compiled field=value pattern per field.
type datumFilter struct {
	patterns     []*regexp.Regexp
	replacements []string
}

func newDatumFilter(fields []string, redaction, separator string) *datumFilter {
	f := &datumFilter{
		patterns:     make([]*regexp.Regexp, 0, len(fields)),
		replacements: make([]string, 0, len(fields)),
	}
	for _, field := range fields {
		f.patterns = append(f.patterns, regexp.MustCompile(regexp.QuoteMeta(field)+"=.+?"+regexp.QuoteMeta(separator)))
		f.replacements = append(f.replacements, field+"="+redaction+separator)
	}
	return f
}

func (f *datumFilter) apply(message string) string {
	for i, re := range f.patterns {
		message = re.ReplaceAllLiteralString(message, f.replacements[i])
	}
	return message
}

// redactingHandler masks attribute values whose key is a configured field,
// at any group depth, and filters field=value runs in the message.
type redactingHandler struct {
	handler slog.Handler
	filter  *datumFilter
	keys    map[string]struct{}
}

func newRedactingHandler(h slog.Handler, fields []string) *redactingHandler {
	keys := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		keys[strings.ToLower(f)] = struct{}{}
	}
	return &redactingHandler{
		handler: h,
		filter:  newDatumFilter(fields, Redaction, FieldSeparator),
		keys:    keys,
	}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.filter.apply(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redact(a)
	}
	return &redactingHandler{handler: h.handler.WithAttrs(redacted), filter: h.filter, keys: h.keys}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{handler: h.handler.WithGroup(name), filter: h.filter, keys: h.keys}
}

func (h *redactingHandler) redact(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		group := v.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = h.redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}
	if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redaction)
	}
	return slog.Attr{Key: a.Key, Value: v}
}
