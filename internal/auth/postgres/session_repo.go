// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/store"
)

// SessionRepository implements auth.RevocationStore using PostgreSQL.
type SessionRepository struct {
	db  store.DB
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository. Revocation
// timestamps come from clock; nil selects the system clock.
func NewSessionRepository(db store.DB, clock auth.Clock) *SessionRepository {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &SessionRepository{db: db, now: func() time.Time { return clock.Now().UTC() }}
}

// Record stores a newly issued refresh session.
func (r *SessionRepository) Record(ctx context.Context, session *auth.RefreshSession) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID.String(), session.UserID.String(), session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert refresh session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether the session was revoked. A session that was
// never recorded, or has been swept, counts as revoked.
func (r *SessionRepository) IsRevoked(ctx context.Context, tokenID ulid.ULID) (bool, error) {
	var revokedAt *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT revoked_at FROM refresh_sessions WHERE id = $1
	`, tokenID.String()).Scan(&revokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "check revocation").
			Wrap(err)
	}
	return revokedAt != nil, nil
}

// Revoke marks the session revoked. It returns false when the session was
// unknown or already revoked, which lets concurrent rotations of one
// refresh token agree on a single winner.
func (r *SessionRepository) Revoke(ctx context.Context, tokenID ulid.ULID) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, tokenID.String(), r.now())
	if err != nil {
		return false, oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke refresh session").
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// RevokeAll marks every live session of the user revoked.
func (r *SessionRepository) RevokeAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID.String(), r.now())
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions that expired at or before the given time.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.RevocationStore = (*SessionRepository)(nil)
