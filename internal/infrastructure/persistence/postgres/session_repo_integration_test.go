//go:build integration

package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/internal/domain/models"
	"github.com/bitizen-labs/sessiond/internal/domain/repository"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/persistence/postgres"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/errors"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

func startPostgres(t *testing.T) repository.SessionRepository {
	t.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}
	ctx := context.Background()

	container, err := pgmodule.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		pgmodule.WithDatabase("sessiond_test"),
		pgmodule.WithUsername("sessiond"),
		pgmodule.WithPassword("sessiond"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:        host,
		Port:        port.Int(),
		User:        "sessiond",
		Password:    "sessiond",
		Database:    "sessiond_test",
		SSLMode:     "disable",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 300,
		MaxConnIdleTime: 60,
		ConnTimeout:     30,
	}
	db, err := postgres.NewDBConnection(ctx, cfg, logger.NewNoop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	migration, err := os.ReadFile(filepath.Join("..", "..", "..", "..", "migrations", "0001_agent_sessions.sql"))
	require.NoError(t, err)
	_, err = db.Pool().Exec(ctx, string(migration))
	require.NoError(t, err)

	return postgres.NewSessionRepository(db, logger.NewNoop())
}

func testSession(id string, daily int64) *models.SessionCredential {
	return models.NewSessionCredential(
		id, "principal_1", "0xabc", "sessions/"+id,
		[]constants.Permission{constants.PermissionExecuteTransfer, constants.PermissionExecuteSwap},
		time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond),
		models.SpendLimits{PerTransactionMax: daily, DailyMax: daily, CurrencyUnit: "STRK"},
	)
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	session := testSession("session_pg1", 1000)
	require.NoError(t, repo.Save(ctx, session))

	got, err := repo.FindByID(ctx, "session_pg1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.PrincipalID, got.PrincipalID)
	assert.Equal(t, session.Permissions, got.Permissions)
	assert.Equal(t, session.SpendLimits, got.SpendLimits)
	assert.Equal(t, constants.SessionStatusActive, got.Status)
	assert.Nil(t, got.Usage.LastUsedAt)

	_, err = repo.FindByID(ctx, "session_absent")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, repo.UpdateStatus(ctx, "session_pg1", constants.SessionStatusRevoked))
	got, err = repo.FindByID(ctx, "session_pg1")
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusRevoked, got.Status)
}

func TestSessionRepositoryPrincipalListingAndLimits(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	first := testSession("session_pg_a", 1000)
	first.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	first.UpdatedAt = first.CreatedAt
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, testSession("session_pg_b", 1000)))

	other := testSession("session_pg_c", 1000)
	other.PrincipalID = "principal_2"
	require.NoError(t, repo.Save(ctx, other))

	sessions, err := repo.FindByPrincipal(ctx, "principal_1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "session_pg_b", sessions[0].ID)
	assert.Equal(t, "session_pg_a", sessions[1].ID)

	sessions, err = repo.FindByPrincipal(ctx, "principal_none")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	updated := models.SpendLimits{PerTransactionMax: 25, DailyMax: 250, CurrencyUnit: "STRK"}
	require.NoError(t, repo.UpdateSpendLimits(ctx, "session_pg_a", updated))
	got, err := repo.FindByID(ctx, "session_pg_a")
	require.NoError(t, err)
	assert.Equal(t, updated, got.SpendLimits)
}

func TestSessionRepositoryIncrementUsage(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, testSession("session_pg2", 100)))

	outcome, usage, err := repo.IncrementUsage(ctx, "session_pg2", 60, now)
	require.NoError(t, err)
	assert.Equal(t, repository.IncrementApplied, outcome)
	assert.Equal(t, int64(60), usage.CumulativeSpent)
	assert.Equal(t, int64(1), usage.TransactionCount)

	outcome, _, err = repo.IncrementUsage(ctx, "session_pg2", 50, now)
	require.NoError(t, err)
	assert.Equal(t, repository.IncrementExceedsDaily, outcome)

	outcome, _, err = repo.IncrementUsage(ctx, "session_absent", 1, now)
	require.NoError(t, err)
	assert.Equal(t, repository.IncrementNotFound, outcome)
}

func TestSessionRepositoryConcurrentIncrements(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSession("session_pg3", 100)))

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			outcome, _, err := repo.IncrementUsage(ctx, "session_pg3", 10, time.Now().UTC())
			assert.NoError(t, err)
			if outcome == repository.IncrementApplied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// The conditional UPDATE admits exactly cap/amount of the attempts,
	// whatever the interleaving.
	assert.Equal(t, 10, applied)
	got, err := repo.FindByID(ctx, "session_pg3")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Usage.CumulativeSpent)
}
