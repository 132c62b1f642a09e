// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bugreport/bugreport/internal/auth"
	authpg "github.com/bugreport/bugreport/internal/auth/postgres"
	"github.com/bugreport/bugreport/internal/store"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("bugreport_test"),
		postgres.WithUsername("bugreport"),
		postgres.WithPassword("bugreport"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create migrator: " + err.Error())
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}
	_ = migrator.Close()

	testPool, err = store.Open(ctx, connStr, store.PoolOptions{})
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func createUser(ctx context.Context, t *testing.T, email string) *auth.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &auth.User{
		ID:           ulid.Make(),
		Firstname:    "Test",
		Lastname:     "User",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, authpg.NewUserRepository(testPool).Create(ctx, user))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := authpg.NewUserRepository(testPool)
	user := createUser(ctx, t, "roundtrip@example.com")

	got, err := repo.GetByEmail(ctx, "roundtrip@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.True(t, user.CreatedAt.Equal(got.CreatedAt))

	pic := "profile-pictures/" + user.ID.String() + "/a.png"
	got.ProfilePicture = &pic
	got.Active = true
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, pic, *got.ProfilePicture)

	dup := *user
	dup.ID = ulid.Make()
	assert.ErrorIs(t, repo.Create(ctx, &dup), auth.ErrEmailTaken)
}

func TestResetTokenRepository_SingleLiveTokenPerPurpose(t *testing.T) {
	ctx := context.Background()
	repo := authpg.NewResetTokenRepository(testPool)
	user := createUser(ctx, t, "reset@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	for _, hash := range []string{"first", "second"} {
		require.NoError(t, repo.Upsert(ctx, &auth.ResetToken{
			ID: ulid.Make(), UserID: user.ID, Purpose: auth.PurposePasswordReset,
			TokenHash: hash, ExpiresAt: now.Add(time.Hour), CreatedAt: now,
		}))
	}

	var n int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reset_tokens WHERE user_id = $1`, user.ID.String()).Scan(&n))
	assert.Equal(t, 1, n)

	_, err := repo.Consume(ctx, "first", auth.PurposePasswordReset)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = repo.Consume(ctx, "second", auth.PurposeActivation)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	got, err := repo.Consume(ctx, "second", auth.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	_, err = repo.Consume(ctx, "second", auth.PurposePasswordReset)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSessionRepository_ConcurrentRevokeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := authpg.NewSessionRepository(testPool, nil)
	user := createUser(ctx, t, "sessions@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	session := &auth.RefreshSession{ID: ulid.Make(), UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, repo.Record(ctx, session))

	revoked, err := repo.IsRevoked(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Revoke(ctx, session.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	revoked, err = repo.IsRevoked(ctx, ulid.Make())
	require.NoError(t, err)
	assert.True(t, revoked, "unknown sessions count as revoked")

	n, err := repo.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
