// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32               // 32 bytes = 64 hex chars
	ResetTokenExpiry = 60 * time.Minute // fixed validity window
)

// ResetPurpose scopes a reset token to one state change.
type ResetPurpose string

// Reset token purposes.
const (
	PurposePasswordReset ResetPurpose = "password_reset"
	PurposeActivation    ResetPurpose = "activation"
)

// Valid reports whether p is a known purpose.
func (p ResetPurpose) Valid() bool {
	return p == PurposePasswordReset || p == PurposeActivation
}

var (
	// ErrResetTokenNotFound is returned when no live token matches. Replayed,
	// superseded and wrong-purpose tokens all end up here.
	ErrResetTokenNotFound = oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(&NotFoundError{Resource: "reset token"})

	// ErrResetTokenExpired is returned when the matching token was past its window.
	ErrResetTokenExpired = oops.Code("RESET_TOKEN_EXPIRED").Wrap(&AuthenticationError{Reason: Expired})
)

// ResetToken is a persisted single-use token. Only the hash of the value is stored.
type ResetToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Purpose   ResetPurpose
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt returns true if the token is no longer valid at now.
func (t *ResetToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the SHA256 hash of a token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResetTokenRepository manages reset token persistence.
type ResetTokenRepository interface {
	// Upsert stores the token, replacing any existing token for the same
	// user and purpose in a single atomic statement.
	Upsert(ctx context.Context, token *ResetToken) error

	// Consume deletes and returns the token matching hash and purpose.
	// Returns ErrNotFound if none matched.
	Consume(ctx context.Context, tokenHash string, purpose ResetPurpose) (*ResetToken, error)

	// DeleteByUser removes the token for a user and purpose, if any.
	DeleteByUser(ctx context.Context, userID ulid.ULID, purpose ResetPurpose) error

	// DeleteExpired removes tokens that expired at or before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ResetTokenStore issues and consumes single-use reset and activation tokens.
type ResetTokenStore struct {
	repo   ResetTokenRepository
	clock  Clock
	window time.Duration
}

// NewResetTokenStore creates a store with the standard ResetTokenExpiry window.
func NewResetTokenStore(repo ResetTokenRepository, clock Clock) *ResetTokenStore {
	return NewResetTokenStoreWithWindow(repo, clock, ResetTokenExpiry)
}

// NewResetTokenStoreWithWindow creates a store with a custom validity window.
// A non-positive window selects ResetTokenExpiry.
func NewResetTokenStoreWithWindow(repo ResetTokenRepository, clock Clock, window time.Duration) *ResetTokenStore {
	if clock == nil {
		clock = SystemClock{}
	}
	if window <= 0 {
		window = ResetTokenExpiry
	}
	return &ResetTokenStore{repo: repo, clock: clock, window: window}
}

// Window returns the validity window applied to issued tokens.
func (s *ResetTokenStore) Window() time.Duration {
	return s.window
}

// IssueOrRefresh creates a token for the user and purpose. A previously
// issued token for the same pair stops working immediately.
func (s *ResetTokenStore) IssueOrRefresh(ctx context.Context, userID ulid.ULID, purpose ResetPurpose) (string, error) {
	if !purpose.Valid() {
		return "", validation("RESET_PURPOSE_INVALID", "purpose", "Invalid token purpose", "UnknownPurpose")
	}
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", err
	}

	now := s.clock.Now().UTC()
	record := &ResetToken{
		ID:        ulid.Make(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hash,
		ExpiresAt: now.Add(s.window),
		CreatedAt: now,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "upsert reset token").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return token, nil
}

// Consume validates a token for the purpose and spends it. The token is
// removed whether or not it had expired.
func (s *ResetTokenStore) Consume(ctx context.Context, token string, purpose ResetPurpose) (ulid.ULID, error) {
	if token == "" || !purpose.Valid() {
		return ulid.ULID{}, ErrResetTokenNotFound
	}

	record, err := s.repo.Consume(ctx, HashResetToken(token), purpose)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, ErrResetTokenNotFound
		}
		return ulid.ULID{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume reset token").
			With("purpose", string(purpose)).
			With("token", Fingerprint(token)).
			Wrap(err)
	}

	if record.IsExpiredAt(s.clock.Now()) {
		return ulid.ULID{}, ErrResetTokenExpired
	}
	return record.UserID, nil
}

// Invalidate removes any live token for the user and purpose.
func (s *ResetTokenStore) Invalidate(ctx context.Context, userID ulid.ULID, purpose ResetPurpose) error {
	if err := s.repo.DeleteByUser(ctx, userID, purpose); err != nil {
		return oops.Code("RESET_INVALIDATE_FAILED").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return nil
}

// Sweep deletes expired tokens and returns how many were removed.
func (s *ResetTokenStore) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, oops.Code("RESET_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}
