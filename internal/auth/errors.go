// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by a UserRepository when the email is already registered.
var ErrEmailTaken = errors.New("email already exists")

// ValidationError reports malformed input that the caller can correct.
type ValidationError struct {
	Field   string
	Message string
	Rule    string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// AuthFailure is the reason an AuthenticationError was raised.
type AuthFailure string

// Authentication failure reasons.
const (
	MissingAuthorization AuthFailure = "MissingAuthorization"
	InvalidToken         AuthFailure = "InvalidToken"
	Revoked              AuthFailure = "Revoked"
	Expired              AuthFailure = "Expired"
	InvalidCredentials   AuthFailure = "InvalidCredentials"
	NotActivated         AuthFailure = "NotActivated"
)

// AuthenticationError reports bad credentials or an unusable token.
type AuthenticationError struct {
	Reason AuthFailure
}

func (e *AuthenticationError) Error() string {
	switch e.Reason {
	case MissingAuthorization:
		return "Missing authorization"
	case InvalidToken:
		return "Invalid token"
	case Revoked:
		return "Token revoked"
	case Expired:
		return "Token expired"
	case InvalidCredentials:
		return "Invalid email or password"
	case NotActivated:
		return "Account not activated"
	default:
		return "Authentication failed"
	}
}

// Is matches another AuthenticationError with the same reason. A target
// with an empty reason matches any AuthenticationError.
func (e *AuthenticationError) Is(target error) bool {
	t, ok := target.(*AuthenticationError)
	if !ok {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// NotFoundError reports an unknown user or token.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// UnavailableError reports a collaborator failure. Callers may retry.
type UnavailableError struct {
	Op    string
	cause error
}

// Error omits the cause, which may carry driver detail unsuitable for clients.
func (e *UnavailableError) Error() string {
	return "service unavailable: " + e.Op
}

func (e *UnavailableError) Unwrap() error {
	return e.cause
}

// IsClassified reports whether err already carries one of the package's
// error types and can cross the service boundary unchanged.
func IsClassified(err error) bool {
	var (
		ve *ValidationError
		ae *AuthenticationError
		ne *NotFoundError
		ue *UnavailableError
	)
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &ne) || errors.As(err, &ue)
}

// unavailable converts a collaborator error into an UnavailableError
// carrying the given oops code. oops reports the innermost code and lets
// inner context win, so a coded repository error keeps its own code and
// operation; the service boundary is recorded under service_code and
// service_operation instead.
func unavailable(code, op string, err error) error {
	if IsClassified(err) {
		return err
	}
	return oops.Code(code).
		With("service_code", code).
		With("service_operation", op).
		Wrap(&UnavailableError{Op: op, cause: err})
}

func validation(code, field, message, rule string) error {
	return oops.Code(code).With("field", field).With("rule", rule).Wrap(&ValidationError{
		Field:   field,
		Message: message,
		Rule:    rule,
	})
}

func authFailure(code string, reason AuthFailure) error {
	return oops.Code(code).With("reason", string(reason)).Wrap(&AuthenticationError{Reason: reason})
}

func notFound(code, resource string) error {
	return oops.Code(code).With("resource", resource).Wrap(&NotFoundError{Resource: resource})
}

// NewValidationError builds a coded ValidationError for packages that share
// this error taxonomy.
func NewValidationError(code, field, message, rule string) error {
	return validation(code, field, message, rule)
}

// NewNotFoundError builds a coded NotFoundError.
func NewNotFoundError(code, resource string) error {
	return notFound(code, resource)
}

// NewUnavailableError wraps a collaborator failure. Errors that are already
// classified pass through unchanged.
func NewUnavailableError(code, op string, err error) error {
	return unavailable(code, op, err)
}

// Fingerprint returns a short, non-reversible identifier for a secret token,
// safe to include in logs.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}
