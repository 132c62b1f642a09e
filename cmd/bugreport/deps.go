// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/config"
	"github.com/bugreport/bugreport/internal/mail"
	"github.com/bugreport/bugreport/internal/observability"
	"github.com/bugreport/bugreport/internal/storage"
	"github.com/bugreport/bugreport/internal/store"
	"github.com/bugreport/bugreport/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Open
	PoolFactory func(ctx context.Context, url string, opts store.PoolOptions) (Pool, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// APIServerFactory creates the HTTP API server.
	// Default: web.NewServer
	APIServerFactory func(addr string, handler http.Handler, opts web.ServerOptions) APIServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// MailSenderFactory creates the transport behind the mail dispatcher.
	// Default: newMailSender
	MailSenderFactory func(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error)

	// PicturesFactory creates the profile picture presigner. It is only
	// called when a bucket is configured.
	// Default: storage.NewProfilePictures
	PicturesFactory func(ctx context.Context, cfg config.StorageConfig) (web.Pictures, error)
}

func (d *ServeDeps) setDefaults() {
	if d.PoolFactory == nil {
		d.PoolFactory = openPool
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = newMigrator
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(addr string, handler http.Handler, opts web.ServerOptions) APIServer {
			return web.NewServer(addr, handler, opts)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if d.MailSenderFactory == nil {
		d.MailSenderFactory = newMailSender
	}
	if d.PicturesFactory == nil {
		d.PicturesFactory = func(ctx context.Context, cfg config.StorageConfig) (web.Pictures, error) {
			pics, err := storage.NewProfilePictures(ctx, storage.Config{
				Bucket:    cfg.Bucket,
				Region:    cfg.Region,
				AccessKey: cfg.AccessKey,
				SecretKey: cfg.SecretKey,
				Endpoint:  cfg.Endpoint,
			})
			if err != nil {
				return nil, err
			}
			return pics, nil
		}
	}
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)
}

// SweepDeps contains injectable dependencies for the sweep command.
type SweepDeps struct {
	// Default: store.Open
	PoolFactory func(ctx context.Context, url string, opts store.PoolOptions) (Pool, error)
	// Clock stamps the sweep cutoff.
	// Default: auth.SystemClock
	Clock auth.Clock
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	store.DB
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Status() (*store.Status, error)
	Force(version int) error
	Close() error
}

// APIServer wraps the methods used from web.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func openPool(ctx context.Context, url string, opts store.PoolOptions) (Pool, error) {
	pool, err := store.Open(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func newMigrator(url string) (Migrator, error) {
	m, err := store.NewMigrator(url)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// newMailSender picks the transport named by cfg.Driver.
func newMailSender(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Driver == config.MailDriverLog {
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		TLS:      cfg.TLS,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
