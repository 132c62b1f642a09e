// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/bugreport/bugreport/pkg/errutil"
)

// BearerPrefix is the scheme expected in the Authorization header.
const BearerPrefix = "Bearer "

// dummyPassword is hashed once at construction. Logins for unknown emails
// verify against it so both paths spend the same time in bcrypt.
//
//nolint:gosec // G101: not a credential
const dummyPassword = "bugreport-timing-equalizer-0!"

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	Access  *Token
	Refresh *Token
}

// Deps holds the collaborators of Service.
type Deps struct {
	Users    UserRepository
	Resets   ResetTokenRepository
	Sessions RevocationStore
	Hasher   PasswordHasher
	Codec    *TokenCodec
	Mailer   Mailer
	Clock    Clock
	Logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Service) { s.accessTTL = d }
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Service) { s.refreshTTL = d }
}

// WithResetWindow sets the reset and activation token window.
func WithResetWindow(d time.Duration) Option {
	return func(s *Service) { s.resetWindow = d }
}

// WithRequireActivation rejects logins for accounts that are not activated.
func WithRequireActivation(required bool) Option {
	return func(s *Service) { s.requireActivation = required }
}

// WithEventRecorder reports auth outcomes to r.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.events = r
		}
	}
}

// Service provides authentication operations.
type Service struct {
	users    UserRepository
	sessions RevocationStore
	resets   *ResetTokenStore
	hasher   PasswordHasher
	codec    *TokenCodec
	mailer   Mailer
	clock    Clock
	logger   *slog.Logger
	events   EventRecorder

	accessTTL         time.Duration
	refreshTTL        time.Duration
	resetWindow       time.Duration
	requireActivation bool
	dummyHash         string
}

// NewAuthService creates a new Service.
func NewAuthService(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	case deps.Resets == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("reset token repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("revocation store is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	case deps.Codec == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token codec is required")
	case deps.Mailer == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("mailer is required")
	}

	s := &Service{
		users:      deps.Users,
		sessions:   deps.Sessions,
		hasher:     deps.Hasher,
		codec:      deps.Codec,
		mailer:     deps.Mailer,
		clock:      deps.Clock,
		logger:     deps.Logger,
		events:     noopRecorder{},
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.accessTTL >= s.refreshTTL {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("access_ttl", s.accessTTL.String()).
			With("refresh_ttl", s.refreshTTL.String()).
			Errorf("access token ttl must be shorter than refresh token ttl")
	}
	s.resets = NewResetTokenStoreWithWindow(deps.Resets, s.clock, s.resetWindow)

	dummy, err := s.hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").With("operation", "hash dummy password").Wrap(err)
	}
	s.dummyHash = dummy

	return s, nil
}

// ResetTokens returns the store backing reset and activation tokens.
func (s *Service) ResetTokens() *ResetTokenStore {
	return s.resets
}

// CheckAuthorization validates an Authorization header carrying an access
// token and returns the authenticated user ID.
func (s *Service) CheckAuthorization(_ context.Context, header string) (ulid.ULID, error) {
	if !strings.HasPrefix(header, BearerPrefix) {
		s.events.RecordAuthEvent("authorize", "missing")
		return ulid.ULID{}, authFailure("AUTH_MISSING_AUTHORIZATION", MissingAuthorization)
	}
	tok, err := s.codec.DecodeKind(strings.TrimPrefix(header, BearerPrefix), KindAccess)
	if err != nil {
		s.events.RecordAuthEvent("authorize", "invalid")
		return ulid.ULID{}, err
	}
	s.events.RecordAuthEvent("authorize", "ok")
	return tok.Subject, nil
}

// CheckRefresh validates a refresh token, including its revocation state.
func (s *Service) CheckRefresh(ctx context.Context, refreshToken string) (*Token, error) {
	tok, err := s.codec.DecodeKind(refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	revoked, err := s.sessions.IsRevoked(ctx, tok.ID)
	if err != nil {
		return nil, unavailable("AUTH_REFRESH_FAILED", "check revocation", err)
	}
	if revoked {
		return nil, authFailure("AUTH_TOKEN_REVOKED", Revoked)
	}
	return tok, nil
}

// Register creates an account and returns a refresh token bound to it.
// All validation happens before anything is persisted. A duplicate email is
// reported ahead of password policy violations. If the refresh session
// cannot be recorded the new user is removed again, so the email stays free
// for a retry.
func (s *Service) Register(ctx context.Context, req RegistrationRequest) (*Token, error) {
	if err := req.validateIdentity(); err != nil {
		s.events.RecordAuthEvent("register", "invalid")
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, unavailable("AUTH_REGISTER_FAILED", "check email", err)
	}
	if exists {
		s.events.RecordAuthEvent("register", "duplicate")
		return nil, emailTaken()
	}

	if err := validatePasswordComposition(req.Password); err != nil {
		s.events.RecordAuthEvent("register", "invalid")
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, unavailable("AUTH_REGISTER_FAILED", "hash password", err)
	}

	now := s.clock.Now().UTC()
	user := &User{
		ID:           ulid.Make(),
		Firstname:    req.Firstname,
		Lastname:     req.Lastname,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.events.RecordAuthEvent("register", "duplicate")
			return nil, emailTaken()
		}
		return nil, unavailable("AUTH_REGISTER_FAILED", "create user", err)
	}

	refresh, err := s.issueRefresh(ctx, user.ID)
	if err != nil {
		s.discardUser(ctx, user.ID)
		return nil, unavailable("AUTH_REGISTER_FAILED", "issue refresh token", err)
	}

	s.events.RecordAuthEvent("register", "ok")
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return refresh, nil
}

// Login verifies credentials and issues a token pair. Unknown emails and
// wrong passwords produce the same error and take the same time.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := s.dummyHash
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
	default:
		return nil, unavailable("AUTH_LOGIN_FAILED", "get user by email", lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		valid = false
	}
	if !userExists || !valid {
		s.events.RecordAuthEvent("login", "invalid_credentials")
		return nil, authFailure("AUTH_INVALID_CREDENTIALS", InvalidCredentials)
	}

	if s.requireActivation && !user.Active {
		s.events.RecordAuthEvent("login", "not_activated")
		return nil, authFailure("AUTH_NOT_ACTIVATED", NotActivated)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, unavailable("AUTH_LOGIN_FAILED", "issue tokens", err)
	}
	s.events.RecordAuthEvent("login", "ok")
	return pair, nil
}

// upgradeHash re-hashes the password with current parameters. Login
// succeeds regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	user.PasswordHash = newHash
	user.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(),
			"error", err)
	}
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tok, err := s.CheckRefresh(ctx, refreshToken)
	if err != nil {
		s.events.RecordAuthEvent("refresh", "rejected")
		return nil, err
	}

	rotated, err := s.sessions.Revoke(ctx, tok.ID)
	if err != nil {
		return nil, unavailable("AUTH_REFRESH_FAILED", "revoke session", err)
	}
	if !rotated {
		// Lost a race with a concurrent refresh or logout of the same token.
		s.events.RecordAuthEvent("refresh", "rejected")
		return nil, authFailure("AUTH_TOKEN_REVOKED", Revoked)
	}

	if _, err := s.users.GetByID(ctx, tok.Subject); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, unavailable("AUTH_REFRESH_FAILED", "get user", err)
	}

	pair, err := s.issuePair(ctx, tok.Subject)
	if err != nil {
		return nil, unavailable("AUTH_REFRESH_FAILED", "issue tokens", err)
	}
	s.events.RecordAuthEvent("refresh", "ok")
	return pair, nil
}

// Logout revokes every refresh session of the token's owner.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tok, err := s.CheckRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, tok.Subject); err != nil {
		return unavailable("AUTH_LOGOUT_FAILED", "revoke sessions", err)
	}
	s.events.RecordAuthEvent("logout", "ok")
	return nil
}

// RequestActivation issues an activation token for the user and mails it.
func (s *Service) RequestActivation(ctx context.Context, userID ulid.ULID) error {
	user, err := s.getUser(ctx, "AUTH_ACTIVATION_FAILED", userID)
	if err != nil {
		return err
	}
	if user.Active {
		return alreadyActivated()
	}

	token, err := s.resets.IssueOrRefresh(ctx, user.ID, PurposeActivation)
	if err != nil {
		return unavailable("AUTH_ACTIVATION_FAILED", "issue activation token", err)
	}
	s.mailer.SendPasswordResetEmail(ctx, user, MailActivate, token)
	s.events.RecordAuthEvent("activation_request", "ok")
	return nil
}

// Activate spends an activation token and marks its owner active.
func (s *Service) Activate(ctx context.Context, token string) error {
	userID, err := s.resets.Consume(ctx, token, PurposeActivation)
	if err != nil {
		s.events.RecordAuthEvent("activate", "rejected")
		return unavailable("AUTH_ACTIVATION_FAILED", "consume activation token", err)
	}

	user, err := s.getUser(ctx, "AUTH_ACTIVATION_FAILED", userID)
	if err != nil {
		return err
	}
	if user.Active {
		return alreadyActivated()
	}

	user.Active = true
	user.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return unavailable("AUTH_ACTIVATION_FAILED", "update user", err)
	}
	s.events.RecordAuthEvent("activate", "ok")
	return nil
}

// ChangePassword replaces the user's password after verifying the current
// one. The new credential is persisted before any session is revoked.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, req ChangePasswordRequest) error {
	user, err := s.getUser(ctx, "AUTH_CHANGE_PASSWORD_FAILED", userID)
	if err != nil {
		return err
	}

	valid, verifyErr := s.hasher.Verify(req.CurrentPassword, user.PasswordHash)
	if verifyErr != nil || !valid {
		s.events.RecordAuthEvent("change_password", "invalid_credentials")
		return validation("AUTH_INVALID_PASSWORD", "Password", "Invalid password", "InvalidPassword")
	}
	if err := ValidatePassword(req.NewPassword, req.Confirmation); err != nil {
		return err
	}

	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return unavailable("AUTH_CHANGE_PASSWORD_FAILED", "persist password", err)
	}
	if _, err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return unavailable("AUTH_CHANGE_PASSWORD_FAILED", "revoke sessions", err)
	}
	s.invalidateReset(ctx, user.ID)

	s.events.RecordAuthEvent("change_password", "ok")
	s.logger.InfoContext(ctx, "password changed", "user_id", user.ID.String())
	return nil
}

// RequestPasswordReset mails a reset link when the email is registered.
// Unknown emails succeed silently so accounts cannot be enumerated.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.events.RecordAuthEvent("reset_request", "unknown")
			return nil
		}
		return unavailable("AUTH_RESET_REQUEST_FAILED", "get user by email", err)
	}

	token, err := s.resets.IssueOrRefresh(ctx, user.ID, PurposePasswordReset)
	if err != nil {
		return unavailable("AUTH_RESET_REQUEST_FAILED", "issue reset token", err)
	}
	s.mailer.SendPasswordResetEmail(ctx, user, MailReset, token)
	s.events.RecordAuthEvent("reset_request", "ok")
	return nil
}

// ResetPassword sets a new password using a reset token. The password is
// checked before the token is spent so a rejected password does not burn it.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirmation string) error {
	if err := ValidatePassword(password, confirmation); err != nil {
		return err
	}

	userID, err := s.resets.Consume(ctx, token, PurposePasswordReset)
	if err != nil {
		s.events.RecordAuthEvent("reset", "rejected")
		return unavailable("AUTH_RESET_FAILED", "consume reset token", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenNotFound
		}
		return unavailable("AUTH_RESET_FAILED", "get user", err)
	}

	if err := s.setPassword(ctx, user, password); err != nil {
		return unavailable("AUTH_RESET_FAILED", "persist password", err)
	}
	if _, err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return unavailable("AUTH_RESET_FAILED", "revoke sessions", err)
	}

	s.events.RecordAuthEvent("reset", "ok")
	return nil
}

func (s *Service) setPassword(ctx context.Context, user *User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.clock.Now().UTC()
	return s.users.Update(ctx, user)
}

// invalidateReset drops an outstanding reset link after a password change.
// Failure leaves a link that still expires on schedule.
func (s *Service) invalidateReset(ctx context.Context, userID ulid.ULID) {
	if err := s.resets.Invalidate(ctx, userID, PurposePasswordReset); err != nil {
		s.logger.WarnContext(ctx, "reset token cleanup failed",
			"user_id", userID.String(),
			"error", err)
	}
}

func (s *Service) getUser(ctx context.Context, code string, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("USER_NOT_FOUND", "user")
		}
		return nil, unavailable(code, "get user", err)
	}
	return user, nil
}

func (s *Service) issuePair(ctx context.Context, userID ulid.ULID) (*TokenPair, error) {
	access, err := s.codec.Issue(userID, KindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueRefresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *Service) issueRefresh(ctx context.Context, userID ulid.ULID) (*Token, error) {
	refresh, err := s.codec.Issue(userID, KindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	session, err := NewRefreshSession(refresh)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Record(ctx, session); err != nil {
		return nil, oops.Code("SESSION_RECORD_FAILED").With("operation", "record refresh session").Wrap(err)
	}
	return refresh, nil
}

// discardUser deletes a user whose registration did not complete. It runs
// even when ctx is already cancelled; a failure is only logged.
func (s *Service) discardUser(ctx context.Context, id ulid.ULID) {
	if err := s.users.Delete(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, ErrNotFound) {
		errutil.LogErrorContext(ctx, s.logger, "discard partially registered user", err,
			"user_id", id.String())
	}
}

func emailTaken() error {
	return validation("USER_EMAIL_TAKEN", "email", "Email already exists", "EmailTaken")
}

func alreadyActivated() error {
	return validation("AUTH_ALREADY_ACTIVATED", "", "User already activated", "AlreadyActivated")
}
