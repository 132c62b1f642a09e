// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package auth implements the authentication and token lifecycle for bugreport.
//
// # Primitives
//
// The leaf components carry no state beyond their configuration:
//   - ValidatePassword - fail-fast password composition rules
//   - BcryptHasher - salted adaptive password hashing
//   - TokenCodec - signed access and refresh tokens with an explicit kind
//
// # Stores
//
// Persistence is reached through repository interfaces implemented in
// internal/auth/postgres:
//   - ResetTokenStore - single-use password reset and activation tokens,
//     at most one live token per user and purpose
//   - RevocationStore - refresh sessions that can be revoked before expiry
//   - UserRepository - user records and credentials
//
// # Services
//
// Service orchestrates registration, login, refresh, logout, authorization
// checks, activation, password change and password reset. AccountService
// covers profile reads and updates. Services are created with New*Service
// constructors that validate their dependencies.
package auth
