// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/pkg/errutil"
)

// Error body types.
const (
	TypeGeneral     = "General"
	TypeValidation  = "Validation"
	TypeAccess      = "Access"
	TypeNotFound    = "NotFound"
	TypeUnavailable = "Unavailable"
)

// APIError is the body of every error response.
type APIError struct {
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// errForbidden marks an attempt to act on another user's account.
var errForbidden = errors.New("access denied")

func forbidden() error {
	return oops.Code("ACCESS_FORBIDDEN").Wrap(errForbidden)
}

var errStorageDisabled = errors.New("object storage is not configured")

// errBadBody is returned when a request body is not valid JSON.
var errBadBody = auth.NewValidationError("REQUEST_INVALID_BODY", "", "Invalid request body", "InvalidBody")

// classify maps err to a status code and body.
func classify(err error) (int, APIError) {
	var (
		ve *auth.ValidationError
		ae *auth.AuthenticationError
		ne *auth.NotFoundError
		ue *auth.UnavailableError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, APIError{Type: TypeValidation, Field: ve.Field, Message: ve.Message}
	case errors.As(err, &ae):
		status := http.StatusUnauthorized
		if ae.Reason == auth.MissingAuthorization {
			status = http.StatusBadRequest
		}
		return status, APIError{Type: TypeAccess, Message: ae.Error()}
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, APIError{Type: TypeAccess, Message: "Access denied"}
	case errors.As(err, &ne):
		return http.StatusNotFound, APIError{Type: TypeNotFound, Message: ne.Error()}
	case errors.As(err, &ue):
		return http.StatusServiceUnavailable, APIError{Type: TypeUnavailable, Message: "Service unavailable"}
	default:
		return http.StatusInternalServerError, APIError{Type: TypeGeneral, Message: "Internal server error"}
	}
}

// abortWithError writes the mapped response and stops the handler chain.
// Server-side failures are logged with their oops code and context.
func abortWithError(c *gin.Context, logger *slog.Logger, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(c.Request.Context(), logger, "request failed", err,
			"route", route(c), "request_id", requestID(c))
	}
	_ = c.Error(err) //nolint:errcheck // attaches err for the access log
	c.AbortWithStatusJSON(status, body)
}
