// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AccountService manages a user's own profile.
type AccountService struct {
	users    UserRepository
	sessions RevocationStore
	clock    Clock
}

// NewAccountService creates an AccountService.
func NewAccountService(users UserRepository, sessions RevocationStore, clock Clock) (*AccountService, error) {
	if users == nil {
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("revocation store is required")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &AccountService{users: users, sessions: sessions, clock: clock}, nil
}

// Get returns the user with the given ID.
func (s *AccountService) Get(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("USER_NOT_FOUND", "user")
		}
		return nil, unavailable("ACCOUNT_GET_FAILED", "get user", err)
	}
	return user, nil
}

// Update applies the non-nil fields of upd and returns the updated user.
func (s *AccountService) Update(ctx context.Context, id ulid.ULID, upd ProfileUpdate) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	firstname, lastname := user.Firstname, user.Lastname
	if upd.Firstname != nil {
		firstname = strings.TrimSpace(*upd.Firstname)
	}
	if upd.Lastname != nil {
		lastname = strings.TrimSpace(*upd.Lastname)
	}
	if firstname == "" || lastname == "" {
		return nil, validation("USER_MISSING_DATA", "", "Missing data", "MissingData")
	}
	if err := ValidateNames(firstname, lastname); err != nil {
		return nil, err
	}

	email := user.Email
	if upd.Email != nil && *upd.Email != user.Email {
		email = *upd.Email
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
		exists, err := s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, unavailable("ACCOUNT_UPDATE_FAILED", "check email", err)
		}
		if exists {
			return nil, emailTaken()
		}
	}

	user.Firstname = firstname
	user.Lastname = lastname
	user.Email = email
	user.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, emailTaken()
		}
		return nil, unavailable("ACCOUNT_UPDATE_FAILED", "update user", err)
	}
	return user, nil
}

// SetProfilePicture stores the object key of the user's profile picture.
func (s *AccountService) SetProfilePicture(ctx context.Context, id ulid.ULID, key string) (*User, error) {
	if key == "" {
		return nil, validation("USER_INVALID_PICTURE", "filename", "Invalid filename", "MissingData")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	user.ProfilePicture = &key
	user.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, unavailable("ACCOUNT_PICTURE_FAILED", "update user", err)
	}
	return user, nil
}

// Delete revokes the user's sessions and removes the account. Reset tokens
// and sessions go with it through the foreign key cascade.
func (s *AccountService) Delete(ctx context.Context, id ulid.ULID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, id); err != nil {
		return unavailable("ACCOUNT_DELETE_FAILED", "revoke sessions", err)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("USER_NOT_FOUND", "user")
		}
		return unavailable("ACCOUNT_DELETE_FAILED", "delete user", err)
	}
	return nil
}
