// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugreport/bugreport/internal/auth/authtest"
	"github.com/bugreport/bugreport/internal/store"
	"github.com/bugreport/bugreport/pkg/errutil"
)

type fakeResets struct {
	n     int64
	err   error
	calls atomic.Int32
}

func (f *fakeResets) Sweep(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.n, f.err
}

type fakeSessions struct {
	n      int64
	before time.Time
}

func (f *fakeSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, nil
}

func TestSweeper_SweepOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	resets := &fakeResets{n: 3}
	sessions := &fakeSessions{n: 5}
	s := &sweeper{resets: resets, sessions: sessions, clock: authtest.NewManualClock(now), logger: slog.Default()}

	res, err := s.sweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sweepResult{Resets: 3, Sessions: 5}, res)
	assert.True(t, now.Equal(sessions.before), "sessions are cut off at the clock's now")
}

func TestSweeper_SweepOnceStopsOnResetFailure(t *testing.T) {
	sessions := &fakeSessions{}
	s := &sweeper{
		resets:   &fakeResets{err: errors.New("conn reset")},
		sessions: sessions,
		clock:    authtest.NewManualClock(time.Now()),
		logger:   slog.Default(),
	}

	_, err := s.sweepOnce(context.Background())
	require.Error(t, err)
	assert.True(t, sessions.before.IsZero(), "sessions are not swept after a failure")
}

func TestSweeper_RunUntilCancelled(t *testing.T) {
	resets := &fakeResets{err: errors.New("flaky")}
	s := &sweeper{resets: resets, sessions: &fakeSessions{}, clock: authtest.NewManualClock(time.Now()), logger: slog.Default()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return resets.calls.Load() >= 2 }, 5*time.Second, 5*time.Millisecond,
		"a failed sweep is retried on the next tick")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestRunSweepWithDeps(t *testing.T) {
	cfg := testConfig(t, map[string]string{"BUGREPORT_DATABASE__URL": testDatabaseURL})
	pool := newMockPool(t)
	pool.ExpectExec(`DELETE FROM reset_tokens WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	pool.ExpectExec(`DELETE FROM refresh_sessions WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	pool.ExpectClose()

	var opts store.PoolOptions
	cmd := newMockCmd()
	err := runSweepWithDeps(context.Background(), cfg, cmd, &SweepDeps{
		PoolFactory: func(_ context.Context, _ string, o store.PoolOptions) (Pool, error) {
			opts = o
			return pool, nil
		},
		Clock: authtest.NewManualClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Contains(t, output(cmd), "Removed 4 expired reset tokens and 7 expired sessions")
	assert.Equal(t, int32(1), opts.MaxConns)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestRunSweepWithDeps_Errors(t *testing.T) {
	t.Run("query failure", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{"BUGREPORT_DATABASE__URL": testDatabaseURL})
		pool := newMockPool(t)
		pool.ExpectExec(`DELETE FROM reset_tokens`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnError(errors.New("relation does not exist"))
		pool.ExpectClose()

		err := runSweepWithDeps(context.Background(), cfg, newMockCmd(), &SweepDeps{PoolFactory: poolFactory(pool)})
		errutil.AssertErrorCode(t, err, "SWEEP_FAILED")
		require.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("connect failure", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{"BUGREPORT_DATABASE__URL": testDatabaseURL})
		err := runSweepWithDeps(context.Background(), cfg, newMockCmd(), &SweepDeps{
			PoolFactory: func(context.Context, string, store.PoolOptions) (Pool, error) {
				return nil, errors.New("connection refused")
			},
		})
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	})

	t.Run("database url required", func(t *testing.T) {
		cfg := testConfig(t, nil)
		err := runSweepWithDeps(context.Background(), cfg, newMockCmd(), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
