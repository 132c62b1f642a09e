// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bugreport/bugreport/internal/auth"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"ada@example.com", true},
		{"ada.lovelace@mail.example.org", true},
		{"a_b-c@sub-domain.example.io", true},
		{"", false},
		{"@example.com", false},
		{"ada@", false},
		{"ada@example", false},
		{"ada@-example.com", false},
		{"ada..lovelace@example.com", false},
		{"ada@example.c", false},
		{"ada lovelace@example.com", false},
		{strings.Repeat("a", 64) + "@example.com", true},
		{strings.Repeat("a", 65) + "@example.com", false},
		{"a@" + strings.Repeat("b", 250) + ".com", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ValidEmail(tt.email))
		})
	}
}

func TestValidateNames(t *testing.T) {
	assert.NoError(t, auth.ValidateNames(strings.Repeat("é", 50), "L"))
	requireValidation(t, auth.ValidateNames(strings.Repeat("x", 51), "L"), "firstname", "Invalid firstname")
	requireValidation(t, auth.ValidateNames("F", strings.Repeat("x", 51)), "lastname", "Invalid lastname")
}

func TestAuthenticationError_Is(t *testing.T) {
	err := &auth.AuthenticationError{Reason: auth.Revoked}
	assert.ErrorIs(t, err, &auth.AuthenticationError{})
	assert.ErrorIs(t, err, &auth.AuthenticationError{Reason: auth.Revoked})
	assert.NotErrorIs(t, err, &auth.AuthenticationError{Reason: auth.Expired})
	assert.Equal(t, "Token revoked", err.Error())
}

func TestIsClassified(t *testing.T) {
	assert.True(t, auth.IsClassified(auth.ErrInvalidToken))
	assert.True(t, auth.IsClassified(auth.ErrResetTokenNotFound))
	assert.True(t, auth.IsClassified(&auth.ValidationError{Field: "x"}))
	assert.False(t, auth.IsClassified(auth.ErrNotFound))
}
