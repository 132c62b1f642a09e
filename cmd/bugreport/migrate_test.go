// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugreport/bugreport/internal/store"
	"github.com/bugreport/bugreport/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "negative parses; the migrator rejects it", input: "-1", wantVersion: -1},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
		{name: "trailing chars are ignored", input: "2abc", wantVersion: 2},
		{name: "non-numeric returns error", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "empty string returns error", input: "", wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only returns error", input: "   ", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseForceVersion(tt.input)
			if tt.wantErrCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, got)
		})
	}
}

func runMigrate(t *testing.T, m *mockMigrator, action string, args []string, all bool) (string, error) {
	t.Helper()
	cfg := testConfig(t, map[string]string{"BUGREPORT_DATABASE__URL": testDatabaseURL})
	cmd := newMockCmd()
	err := runMigrateWithDeps(context.Background(), cfg, cmd, action, args,
		&migrateConfig{all: all}, &MigrateDeps{MigratorFactory: migratorFactory(m)})
	return output(cmd), err
}

func TestRunMigrateWithDeps_Actions(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		args      []string
		all       bool
		wantCalls []string
		wantOut   string
	}{
		{name: "up", action: "up", wantCalls: []string{"up", "close"}, wantOut: "Migrations completed successfully"},
		{name: "down one step", action: "down", wantCalls: []string{"steps-down", "close"}, wantOut: "Rolling back one migration"},
		{name: "down all", action: "down", all: true, wantCalls: []string{"down", "close"}, wantOut: "Rolling back all migrations"},
		{name: "force", action: "force", args: []string{"2"}, wantCalls: []string{"force", "close"}, wantOut: "Forced version 2"},
		{name: "version on empty database", action: "version", wantCalls: []string{"status", "close"}, wantOut: "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockMigrator{}
			out, err := runMigrate(t, m, tt.action, tt.args, tt.all)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, m.Calls())
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestRunMigrateWithDeps_Status(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		m := &mockMigrator{status: &store.Status{Version: 1, Name: "000001_auth", Pending: []uint{2}}}
		out, err := runMigrate(t, m, "status", nil, false)
		require.NoError(t, err)
		assert.Contains(t, out, "Current version: 1 (000001_auth)")
		assert.Contains(t, out, "Pending migrations (1): 000002")
	})

	t.Run("up to date", func(t *testing.T) {
		m := &mockMigrator{status: &store.Status{Version: 2, Name: "000002_issues"}}
		out, err := runMigrate(t, m, "status", nil, false)
		require.NoError(t, err)
		assert.Contains(t, out, "Database is up to date")
	})

	t.Run("dirty", func(t *testing.T) {
		m := &mockMigrator{status: &store.Status{Version: 2, Name: "000002_issues", Dirty: true}}
		out, err := runMigrate(t, m, "status", nil, false)
		require.NoError(t, err)
		assert.Contains(t, out, "2 (dirty)")
		assert.Contains(t, out, "migrate force")
	})
}

func TestRunMigrateWithDeps_Errors(t *testing.T) {
	t.Run("migration failure", func(t *testing.T) {
		m := &mockMigrator{err: errors.New("syntax error at or near")}
		_, err := runMigrate(t, m, "up", nil, false)
		errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
		assert.Equal(t, []string{"up", "close"}, m.Calls(), "migrator is closed on failure")
	})

	t.Run("invalid force version never connects", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{"BUGREPORT_DATABASE__URL": testDatabaseURL})
		err := runMigrateWithDeps(context.Background(), cfg, newMockCmd(), "force", []string{"latest"},
			&migrateConfig{}, &MigrateDeps{MigratorFactory: func(string) (Migrator, error) {
				t.Error("MigratorFactory should not be called for an invalid version")
				return nil, errors.New("unreachable")
			}})
		errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	})

	t.Run("database url required", func(t *testing.T) {
		cfg := testConfig(t, nil)
		err := runMigrateWithDeps(context.Background(), cfg, newMockCmd(), "up", nil, &migrateConfig{}, nil)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("factory failure", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{"BUGREPORT_DATABASE__URL": testDatabaseURL})
		err := runMigrateWithDeps(context.Background(), cfg, newMockCmd(), "up", nil, &migrateConfig{},
			&MigrateDeps{MigratorFactory: func(string) (Migrator, error) {
				return nil, errors.New("connection refused")
			}})
		errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	})
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := NewMigrateCmd()
	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "status", "version", "force"}, names)

	down, _, err := cmd.Find([]string{"down"})
	require.NoError(t, err)
	assert.NotNil(t, down.Flags().Lookup("all"))
}
