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

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	db store.DB
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(db store.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Upsert stores the token. An existing token for the same user and purpose
// is overwritten in place, so at most one is ever live.
func (r *ResetTokenRepository) Upsert(ctx context.Context, token *auth.ResetToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reset_tokens (id, user_id, purpose, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, purpose) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`,
		token.ID.String(),
		token.UserID.String(),
		string(token.Purpose),
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("RESET_UPSERT_FAILED").
			With("operation", "upsert reset token").
			With("user_id", token.UserID.String()).
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return nil
}

// Consume deletes and returns the token with the hash and purpose. The
// delete and read happen in one statement, so concurrent consumers of the
// same token see exactly one success.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string, purpose auth.ResetPurpose) (*auth.ResetToken, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM reset_tokens
		WHERE token_hash = $1 AND purpose = $2
		RETURNING id, user_id, purpose, token_hash, expires_at, created_at
	`, tokenHash, string(purpose))

	token, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume reset token").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return token, nil
}

// DeleteByUser removes the user's token for the purpose.
func (r *ResetTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID, purpose auth.ResetPurpose) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM reset_tokens WHERE user_id = $1 AND purpose = $2
	`, userID.String(), string(purpose))
	if err != nil {
		return oops.Code("RESET_DELETE_BY_USER_FAILED").
			With("operation", "delete reset tokens by user").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	// No rows is a valid state.
	return nil
}

// DeleteExpired removes tokens that expired at or before the given time.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM reset_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired reset tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanResetToken scans a single row into a ResetToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		idStr, userIDStr string
		purpose          string
		token            auth.ResetToken
	)

	err := row.Scan(&idStr, &userIDStr, &purpose, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Wrapf(err, "scan reset token")
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("id", idStr).Wrapf(err, "parse reset token id")
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.With("user_id", userIDStr).Wrapf(err, "parse reset token user id")
	}

	token.ID = id
	token.UserID = userID
	token.Purpose = auth.ResetPurpose(purpose)
	return &token, nil
}

// Compile-time interface check.
var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
