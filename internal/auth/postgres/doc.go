// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package postgres provides PostgreSQL implementations of the auth
// repositories. Every repository runs against a store.DB, so a pgxpool.Pool
// serves production and pgxmock serves unit tests.
package postgres
