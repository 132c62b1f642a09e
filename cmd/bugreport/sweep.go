// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bugreport/bugreport/internal/auth"
	authpg "github.com/bugreport/bugreport/internal/auth/postgres"
	"github.com/bugreport/bugreport/internal/config"
	"github.com/bugreport/bugreport/internal/store"
	"github.com/bugreport/bugreport/pkg/errutil"
)

type resetSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type sessionPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// sweeper deletes expired reset tokens and refresh sessions.
type sweeper struct {
	resets   resetSweeper
	sessions sessionPurger
	clock    auth.Clock
	logger   *slog.Logger
}

type sweepResult struct {
	Resets   int64
	Sessions int64
}

func (s *sweeper) sweepOnce(ctx context.Context) (sweepResult, error) {
	var res sweepResult
	n, err := s.resets.Sweep(ctx)
	if err != nil {
		return res, err //nolint:wrapcheck // coded by the reset store
	}
	res.Resets = n

	n, err = s.sessions.DeleteExpired(ctx, s.clock.Now().UTC())
	if err != nil {
		return res, err //nolint:wrapcheck // coded by the session repository
	}
	res.Sessions = n
	return res, nil
}

// run sweeps every interval until ctx is cancelled. Failures are logged
// and retried on the next tick.
func (s *sweeper) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.sweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogErrorContext(ctx, s.logger, "sweep failed", err)
				continue
			}
			s.logger.DebugContext(ctx, "sweep complete",
				"reset_tokens", res.Resets,
				"sessions", res.Sessions)
		}
	}
}

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired reset tokens and refresh sessions",
		Long: `Delete expired password reset tokens, activation tokens and refresh
sessions once, then exit. The serve command does the same periodically when
auth.sweep_interval is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSweepWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

func runSweepWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *SweepDeps) error {
	if deps == nil {
		deps = &SweepDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = openPool
	}
	if deps.Clock == nil {
		deps.Clock = auth.SystemClock{}
	}

	if err := cfg.ValidateDatabase(); err != nil {
		return err //nolint:wrapcheck // coded by config
	}
	logger := setupLogging(cfg)

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:       1,
		ConnectRetries: cfg.Database.ConnectRetries,
		Logger:         logger,
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	s := &sweeper{
		resets:   auth.NewResetTokenStore(authpg.NewResetTokenRepository(pool), deps.Clock),
		sessions: authpg.NewSessionRepository(pool, deps.Clock),
		clock:    deps.Clock,
		logger:   logger,
	}
	res, err := s.sweepOnce(ctx)
	if err != nil {
		return oops.Code("SWEEP_FAILED").With("operation", "sweep expired tokens").Wrap(err)
	}

	cmd.Printf("Removed %d expired reset tokens and %d expired sessions\n", res.Resets, res.Sessions)
	return nil
}
