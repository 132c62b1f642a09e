// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Password composition constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 32

	// PasswordSpecialChars lists the characters that satisfy the special character rule.
	PasswordSpecialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`
)

// Password policy rule names, reported in ValidationError.Rule.
const (
	RuleLength               = "LengthViolation"
	RuleMissingSpecialChar   = "MissingSpecialChar"
	RuleMissingDigit         = "MissingDigit"
	RuleContainsWhitespace   = "ContainsWhitespace"
	RuleConfirmationMismatch = "ConfirmationMismatch"
)

// Fields reported by password policy violations.
const (
	FieldPassword     = "password"
	FieldConfirmation = "retPassword"
)

// ValidatePassword checks a password and its confirmation against the
// composition rules. Rules are evaluated in order and the first violation
// is returned as a *ValidationError.
func ValidatePassword(password, confirmation string) error {
	if err := validatePasswordComposition(password); err != nil {
		return err
	}
	if password != confirmation {
		return validation("PASSWORD_POLICY_VIOLATION", FieldConfirmation, "Invalid retPassword", RuleConfirmationMismatch)
	}
	return nil
}

// validatePasswordComposition applies every rule except the confirmation check.
func validatePasswordComposition(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return validation("PASSWORD_POLICY_VIOLATION", FieldPassword,
			"Password length should be between 8 and 32 characters", RuleLength)
	}
	if !strings.ContainsAny(password, PasswordSpecialChars) {
		return validation("PASSWORD_POLICY_VIOLATION", FieldPassword,
			"Password should contain at least one special character", RuleMissingSpecialChar)
	}
	if !strings.ContainsAny(password, "0123456789") {
		return validation("PASSWORD_POLICY_VIOLATION", FieldPassword,
			"Password should contain at least one digit", RuleMissingDigit)
	}
	if strings.IndexFunc(password, unicode.IsSpace) >= 0 {
		return validation("PASSWORD_POLICY_VIOLATION", FieldPassword,
			"Password should not contain spaces", RuleContainsWhitespace)
	}
	return nil
}
