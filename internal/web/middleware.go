// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bugreport/bugreport/internal/auth"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const (
	ctxRequestID = "request_id"
	ctxUserID    = "user_id"

	maxRequestIDLength = 128
	unmatchedRoute     = "unmatched"
)

// HTTPMetrics records one observation per request.
type HTTPMetrics interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveHTTP(string, string, int, time.Duration) {}

// route is the matched route template. Raw paths are never used as labels
// or log fields because activation paths embed a token.
func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return unmatchedRoute
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// withRequestID reuses a well-formed inbound X-Request-ID or issues a new one.
func withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// withTracing opens a server span around the request.
func withTracing(tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route(c),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route(c)),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// withAccessLog logs and measures every request once it completes.
func withAccessLog(logger *slog.Logger, metrics HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		metrics.ObserveHTTP(c.Request.Method, route(c), status, elapsed)

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route(c),
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", requestID(c),
			"client_ip", c.ClientIP(),
		}
		if id, ok := userID(c); ok {
			attrs = append(attrs, "user_id", id.String())
		}
		logger.Log(c.Request.Context(), level, "http request", attrs...)
	}
}

// withRecovery turns a panic into a 500 General response.
func withRecovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "handler panicked",
			"route", route(c),
			"request_id", requestID(c),
			"panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{
			Type:    TypeGeneral,
			Message: "Internal server error",
		})
	})
}

// Authorizer validates the Authorization header of a request.
type Authorizer interface {
	CheckAuthorization(ctx context.Context, header string) (ulid.ULID, error)
}

// requireAuth rejects requests without a valid access token and stores the
// caller's user ID for handlers.
func requireAuth(authz Authorizer, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authz.CheckAuthorization(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			abortWithError(c, logger, err)
			return
		}
		c.Set(ctxUserID, id)
		c.Next()
	}
}

func userID(c *gin.Context) (ulid.ULID, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return ulid.ULID{}, false
	}
	id, ok := v.(ulid.ULID)
	return id, ok
}

// selfOnly rejects requests whose :id is not the caller. It must run after
// requireAuth.
func selfOnly(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := pathUserID(c)
		if err != nil {
			abortWithError(c, logger, err)
			return
		}
		caller, ok := userID(c)
		if !ok || caller != target {
			abortWithError(c, logger, forbidden())
			return
		}
		c.Next()
	}
}

func pathUserID(c *gin.Context) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(c.Param("id"))
	if err != nil {
		return ulid.ULID{}, auth.NewNotFoundError("USER_NOT_FOUND", "user")
	}
	return id, nil
}
