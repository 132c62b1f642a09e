// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshSession records an issued refresh token so it can be revoked
// before it expires.
type RefreshSession struct {
	ID        ulid.ULID // token ID (jti)
	UserID    ulid.ULID
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// NewRefreshSession builds the revocation record for an issued refresh token.
func NewRefreshSession(tok *Token) (*RefreshSession, error) {
	if tok == nil || tok.Kind != KindRefresh {
		return nil, oops.Code("SESSION_INVALID_KIND").Errorf("only refresh tokens are recorded")
	}
	if tok.Subject.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tok.ExpiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &RefreshSession{
		ID:        tok.ID,
		UserID:    tok.Subject,
		ExpiresAt: tok.ExpiresAt,
		CreatedAt: tok.IssuedAt,
	}, nil
}

// IsRevoked reports whether the session has been revoked.
func (s *RefreshSession) IsRevoked() bool {
	return s.RevokedAt != nil
}

// RevocationStore persists refresh sessions and their revocation state.
type RevocationStore interface {
	// Record stores a newly issued refresh session.
	Record(ctx context.Context, session *RefreshSession) error

	// IsRevoked reports whether the token was revoked. Unknown token IDs
	// are reported as revoked.
	IsRevoked(ctx context.Context, tokenID ulid.ULID) (bool, error)

	// Revoke marks a single session revoked. Returns false if it was
	// unknown or already revoked.
	Revoke(ctx context.Context, tokenID ulid.ULID) (bool, error)

	// RevokeAll marks every live session of the user revoked and returns how many changed.
	RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteExpired removes sessions that expired at or before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
