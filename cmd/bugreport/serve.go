// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bugreport/bugreport/internal/auth"
	authpg "github.com/bugreport/bugreport/internal/auth/postgres"
	"github.com/bugreport/bugreport/internal/config"
	"github.com/bugreport/bugreport/internal/issue"
	issuepg "github.com/bugreport/bugreport/internal/issue/postgres"
	"github.com/bugreport/bugreport/internal/mail"
	"github.com/bugreport/bugreport/internal/observability"
	"github.com/bugreport/bugreport/internal/store"
	"github.com/bugreport/bugreport/internal/web"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the JSON API together with the metrics and health endpoints,
the outbound mail workers and the expired token sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", ":8080", "API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")

	return cmd
}

// application is everything serve builds on top of the pool.
type application struct {
	handler http.Handler
	mailer  *mail.Dispatcher
	sweeper *sweeper
}

// runServeWithDeps starts the API with injectable dependencies and blocks
// until ctx is cancelled or a server fails. If deps is nil, default
// implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.setDefaults()

	if err := cfg.ValidateServe(); err != nil {
		return err //nolint:wrapcheck // coded by config
	}

	logger := setupLogging(cfg)
	logger.Info("starting bugreport",
		"version", version,
		"http_addr", cfg.HTTP.Addr,
		"mail_driver", cfg.Mail.Driver,
	)

	if cfg.Database.AutoMigrate {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:       cfg.Database.MaxConns,
		ConnectRetries: cfg.Database.ConnectRetries,
		Logger:         logger,
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Metrics are recorded on a private registry when the observability
	// listener is disabled.
	var obsServer ObservabilityServer
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	if cfg.Observability.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Observability.Addr, observability.PingReadiness(pool), logger)
		metrics = obsServer.Metrics()
	}

	app, err := buildApplication(ctx, cfg, pool, metrics, logger, deps)
	if err != nil {
		return err
	}
	defer closeMailer(app.mailer, cfg.HTTP.ShutdownTimeout, logger)

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Observability.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, app.handler, web.ServerOptions{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Logger:       logger,
	})
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServers(cfg.HTTP.ShutdownTimeout, logger, obsServer)
		return oops.Code("API_START_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api", logger)

	var wg sync.WaitGroup
	if cfg.Auth.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.sweeper.run(ctx, cfg.Auth.SweepInterval)
		}()
	}

	cmd.Println("BugReport API listening on " + apiServer.Addr())
	logger.Info("bugreport ready", "http_addr", apiServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down...")

	cancel()
	wg.Wait()
	stopServers(cfg.HTTP.ShutdownTimeout, logger, apiServer, obsServer)

	logger.Info("shutdown complete")
	return nil
}

// buildApplication wires repositories, services and the router over pool.
func buildApplication(ctx context.Context, cfg *config.Config, pool Pool, metrics *observability.Metrics,
	logger *slog.Logger, deps *ServeDeps,
) (*application, error) {
	clock := auth.SystemClock{}
	users := authpg.NewUserRepository(pool)
	sessions := authpg.NewSessionRepository(pool, clock)

	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: []byte(cfg.Auth.Secret), Issuer: cfg.Auth.Issuer}, clock)
	if err != nil {
		return nil, err //nolint:wrapcheck // coded by auth
	}
	issues, err := issue.NewService(issuepg.NewIssueRepository(pool), users, clock, logger)
	if err != nil {
		return nil, err //nolint:wrapcheck // coded by issue
	}
	accounts, err := auth.NewAccountService(users, sessions, clock)
	if err != nil {
		return nil, err //nolint:wrapcheck // coded by auth
	}

	var pictures web.Pictures
	if cfg.Storage.Bucket != "" {
		pictures, err = deps.PicturesFactory(ctx, cfg.Storage)
		if err != nil {
			return nil, oops.Code("STORAGE_INIT_FAILED").With("bucket", cfg.Storage.Bucket).Wrap(err)
		}
	} else {
		logger.Info("storage bucket not configured, picture uploads disabled")
	}

	sender, err := deps.MailSenderFactory(cfg.Mail, logger)
	if err != nil {
		return nil, oops.Code("MAIL_INIT_FAILED").With("driver", cfg.Mail.Driver).Wrap(err)
	}
	dispatcher, err := mail.NewDispatcher(sender, mail.DispatcherOptions{
		BaseURL:     cfg.Mail.BaseURL,
		QueueSize:   cfg.Mail.QueueSize,
		Workers:     cfg.Mail.Workers,
		SendTimeout: cfg.Mail.SendTimeout,
		LinkTTL:     cfg.Auth.ResetWindow,
		Logger:      logger,
		Recorder:    metrics,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // coded by mail
	}

	svc, err := auth.NewAuthService(auth.Deps{
		Users:    users,
		Resets:   authpg.NewResetTokenRepository(pool),
		Sessions: sessions,
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Codec:    codec,
		Mailer:   dispatcher,
		Clock:    clock,
		Logger:   logger,
	},
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithResetWindow(cfg.Auth.ResetWindow),
		auth.WithRequireActivation(cfg.Auth.RequireActivation),
		auth.WithEventRecorder(metrics),
	)
	if err != nil {
		closeMailer(dispatcher, cfg.HTTP.ShutdownTimeout, logger)
		return nil, err //nolint:wrapcheck // coded by auth
	}

	router, err := web.NewRouter(web.Deps{
		Auth:     svc,
		Accounts: accounts,
		Issues:   issues,
		Pictures: pictures,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		closeMailer(dispatcher, cfg.HTTP.ShutdownTimeout, logger)
		return nil, err //nolint:wrapcheck // coded by web
	}

	return &application{
		handler: router,
		mailer:  dispatcher,
		sweeper: &sweeper{
			resets:   svc.ResetTokens(),
			sessions: sessions,
			clock:    clock,
			logger:   logger,
		},
	}, nil
}

// AutoMigrator is the part of Migrator auto-migration needs.
type AutoMigrator interface {
	Up() error
	Close() error
}

// runAutoMigration applies pending migrations before the pool opens.
func runAutoMigration(url string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	logger.Info("running database migrations")
	m, err := factory(url)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	return applyUp(m, logger)
}

func applyUp(m AutoMigrator, logger *slog.Logger) error {
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations complete")
	return nil
}

// stopper is satisfied by both servers.
type stopper interface {
	Stop(ctx context.Context) error
	Addr() string
}

func stopServers(timeout time.Duration, logger *slog.Logger, servers ...stopper) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping server", "addr", srv.Addr(), "error", err)
		}
	}
}

func closeMailer(d *mail.Dispatcher, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		logger.Warn("mail queue not drained before shutdown", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a runtime error.
// A closed channel means the server stopped gracefully.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
