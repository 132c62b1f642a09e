// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// User field constraints.
const (
	MaxNameLength       = 50
	MaxEmailLength      = 255
	MaxEmailLocalLength = 64
)

// emailRegex matches addresses of the form local@domain.tld. The local part
// length limit is checked separately because RE2 has no lookahead.
var emailRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*@[^-][A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*(\.[A-Za-z]{2,})$`)

// User is an account holder. PasswordHash is the only credential stored.
type User struct {
	ID             ulid.ULID
	Firstname      string
	Lastname       string
	Email          string
	PasswordHash   string
	Active         bool
	ProfilePicture *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName returns the first and last name joined by a space.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// UserRepository manages user persistence.
type UserRepository interface {
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Create stores a new user. Returns ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, user *User) error
	// Update persists all mutable fields. Returns ErrEmailTaken on a duplicate email.
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id ulid.ULID) error
}

// ValidEmail reports whether email is syntactically acceptable.
func ValidEmail(email string) bool {
	if len(email) > MaxEmailLength {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at < 1 || at > MaxEmailLocalLength {
		return false
	}
	return emailRegex.MatchString(email)
}

// ValidateEmail returns a ValidationError for an unacceptable email.
func ValidateEmail(email string) error {
	if !ValidEmail(email) {
		return validation("USER_INVALID_EMAIL", "email", "Invalid email", "InvalidEmail")
	}
	return nil
}

// ValidateNames checks the first and last name lengths.
func ValidateNames(firstname, lastname string) error {
	if utf8.RuneCountInString(firstname) > MaxNameLength {
		return validation("USER_INVALID_NAME", "firstname", "Invalid firstname", "NameTooLong")
	}
	if utf8.RuneCountInString(lastname) > MaxNameLength {
		return validation("USER_INVALID_NAME", "lastname", "Invalid lastname", "NameTooLong")
	}
	return nil
}

// RegistrationRequest carries the fields needed to create an account.
type RegistrationRequest struct {
	Firstname string
	Lastname  string
	Email     string
	Password  string
}

// Validate applies the registration input rules in order. The first
// failure wins. Register checks for a duplicate email between the identity
// rules and the password policy.
func (r RegistrationRequest) Validate() error {
	if err := r.validateIdentity(); err != nil {
		return err
	}
	return validatePasswordComposition(r.Password)
}

func (r RegistrationRequest) validateIdentity() error {
	if r.Firstname == "" || r.Lastname == "" || r.Email == "" || r.Password == "" {
		return validation("USER_MISSING_DATA", "", "Missing data", "MissingData")
	}
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	return ValidateNames(r.Firstname, r.Lastname)
}

// ChangePasswordRequest carries a password change.
type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
	Confirmation    string
}

// ProfileUpdate carries optional profile changes. Nil fields are left unchanged.
type ProfileUpdate struct {
	Firstname *string
	Lastname  *string
	Email     *string
}
