// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package errutil logs and asserts on oops errors.
package errutil

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// Masked replaces the value of a sensitive context key.
const Masked = "[MASKED]"

// sensitiveKeys are context keys whose values are never logged. Token
// fingerprints are logged under "token" and stay visible.
var sensitiveKeys = []string{"password", "secret", "authorization", "refresh_token", "access_token"}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Attrs returns slog key-value pairs for err. Oops errors contribute their
// code and context, with sensitive context values masked.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		safe := make(map[string]any, len(ctx))
		for k, v := range ctx {
			if sensitive(k) {
				v = Masked
			}
			safe[k] = v
		}
		attrs = append(attrs, "context", safe)
	}
	return attrs
}

// LogError logs err at error level with its oops code and context.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	LogErrorContext(context.Background(), logger, msg, err, attrs...)
}

// LogErrorContext is LogError with a context, so trace ids reach the record.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logger.ErrorContext(ctx, msg, append(Attrs(err), attrs...)...)
}
