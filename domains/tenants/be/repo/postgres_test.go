package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	sqlassets "github.com/craftline/craftline-platform/database"
	"github.com/craftline/craftline-platform/domains/tenants/be/service"
	"github.com/craftline/craftline-platform/platform/go/persistence"
)

func TestPostgresRepositoryIntegration(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping repo integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("craftline"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() {
		persistence.ClosePool(pool)
	})

	for _, m := range sqlassets.CoreSchema() {
		_, err := pool.Exec(ctx, m.SQL)
		require.NoError(t, err, "apply %s", m.Name)
	}

	repo := NewPostgresRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	created, err := repo.Create(ctx, service.Tenant{
		ID:           uuid.New(),
		Slug:         "acme",
		Status:       service.StatusActive,
		CurrentDB:    "tenant_acme_2025",
		AllDatabases: []string{"tenant_acme_2025"},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	require.Equal(t, "acme", created.Slug)
	require.Equal(t, []string{"tenant_acme_2025"}, created.AllDatabases)

	// Slug uniqueness is enforced by the database, not just the service.
	_, err = repo.Create(ctx, service.Tenant{
		ID:           uuid.New(),
		Slug:         "acme",
		Status:       service.StatusActive,
		CurrentDB:    "tenant_acme_2025",
		AllDatabases: []string{"tenant_acme_2025"},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.ErrorIs(t, err, service.ErrConflictSlug)

	bySlug, err := repo.FindBySlug(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, created.ID, bySlug.ID)

	_, err = repo.FindBySlug(ctx, "nobody")
	require.ErrorIs(t, err, service.ErrNotFound)

	rotated, err := repo.CommitRotation(ctx, created.ID, "tenant_acme_2026")
	require.NoError(t, err)
	require.Equal(t, "tenant_acme_2026", rotated.CurrentDB)
	require.Equal(t, []string{"tenant_acme_2025", "tenant_acme_2026"}, rotated.AllDatabases)

	deactivated, err := repo.UpdateStatus(ctx, created.ID, service.StatusInactive)
	require.NoError(t, err)
	require.Equal(t, service.StatusInactive, deactivated.Status)

	active := service.StatusActive
	listed, err := repo.List(ctx, service.ListOptions{Status: &active})
	require.NoError(t, err)
	require.Empty(t, listed)

	listed, err = repo.List(ctx, service.ListOptions{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
