// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package issue

import (
	"strings"
	"unicode/utf8"

	"github.com/bugreport/bugreport/internal/auth"
)

// MaxTitleLength bounds Issue.Title in characters.
const MaxTitleLength = 255

// ValidateTitle checks that a title is present and fits the column.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return auth.NewValidationError("ISSUE_INVALID_TITLE", "title", "Missing title", "Required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return auth.NewValidationError("ISSUE_INVALID_TITLE", "title", "Title too long", "MaxLength")
	}
	return nil
}

// ValidateDescription checks that a description is present.
func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return auth.NewValidationError("ISSUE_INVALID_DESCRIPTION", "description", "Missing description", "Required")
	}
	return nil
}

// ValidateReporterEmail checks the reporter's address with the same rules
// used for account emails.
func ValidateReporterEmail(email string) error {
	if !auth.ValidEmail(email) {
		return auth.NewValidationError("ISSUE_INVALID_REPORTER", "reporterEmail", "Invalid email", "Email")
	}
	return nil
}
