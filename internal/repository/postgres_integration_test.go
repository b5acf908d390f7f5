//go:build integration

package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"bakubin-auth/internal/db"
	"bakubin-auth/internal/domain"
	"bakubin-auth/internal/repository"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("auth"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp(connStr))
	// Aplicar dos veces no debe fallar.
	require.NoError(t, db.MigrateUp(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepositories(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	users := repository.NewPgUserRepository(pool)
	tokens := repository.NewPgVerificationTokenRepository(pool)
	audit := repository.NewPgAuditRepository(pool)

	t.Run("email uniqueness ignores case", func(t *testing.T) {
		first := domain.User{
			ID:           uuid.NewString(),
			Email:        "Ana@Example.com",
			DisplayName:  "Ana",
			PasswordHash: "$argon2id$stub",
			Role:         domain.RoleUser,
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, users.Create(ctx, first))

		dup := first
		dup.ID = uuid.NewString()
		dup.Email = "ana@example.COM"
		assert.ErrorIs(t, users.Create(ctx, dup), repository.ErrEmailTaken)

		got, err := users.GetByEmail(ctx, "ANA@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "ana@example.com", got.Email)
		assert.Nil(t, got.EmailVerifiedAt)
	})

	t.Run("mark verified keeps first timestamp", func(t *testing.T) {
		u := domain.User{
			ID:           uuid.NewString(),
			Email:        "bob@example.com",
			DisplayName:  "Bob",
			PasswordHash: "$argon2id$stub",
			Role:         domain.RoleAdmin,
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, users.Create(ctx, u))

		first := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, users.MarkVerified(ctx, u.ID, first))
		require.NoError(t, users.MarkVerified(ctx, u.ID, first.Add(time.Hour)))

		got, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.EmailVerifiedAt)
		assert.True(t, got.EmailVerifiedAt.Equal(first))
		assert.Equal(t, domain.RoleAdmin, got.Role)

		assert.ErrorIs(t, users.MarkVerified(ctx, uuid.NewString(), first), repository.ErrUserNotFound)
	})

	t.Run("concurrent consume succeeds exactly once", func(t *testing.T) {
		now := time.Now().UTC()
		tok := domain.VerificationToken{
			Token:      uuid.NewString(),
			Identifier: "ana@example.com",
			IssuedAt:   now,
			ExpiresAt:  now.Add(domain.VerificationTokenTTL),
		}
		require.NoError(t, tokens.Create(ctx, tok))

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			failures  atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := tokens.Consume(ctx, tok.Token)
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, repository.ErrTokenNotFound):
					failures.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(15), failures.Load())
	})

	t.Run("delete expired", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, tokens.Create(ctx, domain.VerificationToken{
			Token:      uuid.NewString(),
			Identifier: "old@example.com",
			IssuedAt:   now.Add(-48 * time.Hour),
			ExpiresAt:  now.Add(-24 * time.Hour),
		}))
		n, err := tokens.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
	})

	t.Run("audit append is idempotent by id", func(t *testing.T) {
		entry := domain.AuditLogEntry{
			ID:        uuid.NewString(),
			Event:     domain.AuditUserLoginFailed,
			Details:   "login attempt for unknown email",
			IP:        domain.OptionalString("10.0.0.1"),
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, audit.Append(ctx, entry))
		require.NoError(t, audit.Append(ctx, entry))

		var count int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs WHERE id = $1`, entry.ID).Scan(&count))
		assert.Equal(t, 1, count)
	})
}
