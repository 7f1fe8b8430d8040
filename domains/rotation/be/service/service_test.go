package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	tenantsrepo "github.com/craftline/craftline-platform/domains/tenants/be/repo"
	tenantssvc "github.com/craftline/craftline-platform/domains/tenants/be/service"
)

// fakeOps records operations and simulates a database server.
type fakeOps struct {
	existing   map[string]bool
	migrated   map[string]bool
	createErr  error
	migrateErr error
	dropErr    error
	dropped    []string
}

func newFakeOps() *fakeOps {
	return &fakeOps{existing: make(map[string]bool), migrated: make(map[string]bool)}
}

func (f *fakeOps) CreateDatabase(ctx context.Context, name string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.existing[name] = true
	return nil
}

func (f *fakeOps) DropDatabase(ctx context.Context, name string) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	f.dropped = append(f.dropped, name)
	delete(f.existing, name)
	return nil
}

func (f *fakeOps) RunMigrations(ctx context.Context, databaseURL string) error {
	if f.migrateErr != nil {
		return f.migrateErr
	}
	f.migrated[databaseURL] = true
	return nil
}

func (f *fakeOps) DumpDatabase(ctx context.Context, databaseURL, outFile string) error {
	return errors.New("not used in rotation tests")
}

func urlFor(name string) (string, error) {
	return "postgres://app@db:5432/" + name, nil
}

func seedTenant(t *testing.T, repo *tenantsrepo.MemoryRepository, slug string, status tenantssvc.Status) tenantssvc.Tenant {
	t.Helper()
	seeded, err := repo.Create(context.Background(), tenantssvc.Tenant{
		ID:           uuid.New(),
		Slug:         slug,
		Status:       status,
		CurrentDB:    "tenant_" + slug + "_2025",
		AllDatabases: []string{"tenant_" + slug + "_2025"},
	})
	require.NoError(t, err)
	return seeded
}

func TestRotateHappyPath(t *testing.T) {
	t.Parallel()

	repo := tenantsrepo.NewMemoryRepository()
	seeded := seedTenant(t, repo, "acme", tenantssvc.StatusActive)
	ops := newFakeOps()
	coord := NewCoordinator(repo, ops, urlFor, nil)

	res, err := coord.Rotate(context.Background(), seeded.ID, 2026)
	require.NoError(t, err)
	require.Equal(t, Result{OldDB: "tenant_acme_2025", NewDB: "tenant_acme_2026"}, res)

	require.True(t, ops.existing["tenant_acme_2026"])
	require.True(t, ops.migrated["postgres://app@db:5432/tenant_acme_2026"])

	after, err := repo.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, "tenant_acme_2026", after.CurrentDB)
	require.Equal(t, []string{"tenant_acme_2025", "tenant_acme_2026"}, after.AllDatabases)
}

func TestRotateSameYearTwiceConflictsWithoutSideEffects(t *testing.T) {
	t.Parallel()

	repo := tenantsrepo.NewMemoryRepository()
	seeded := seedTenant(t, repo, "acme", tenantssvc.StatusActive)
	ops := newFakeOps()
	coord := NewCoordinator(repo, ops, urlFor, nil)

	_, err := coord.Rotate(context.Background(), seeded.ID, 2026)
	require.NoError(t, err)

	_, err = coord.Rotate(context.Background(), seeded.ID, 2026)
	require.ErrorIs(t, err, ErrYearAlreadyProvisioned)

	after, err := repo.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"tenant_acme_2025", "tenant_acme_2026"}, after.AllDatabases)
	require.Empty(t, ops.dropped)
}

func TestRotateMigrationFailureCompensates(t *testing.T) {
	t.Parallel()

	repo := tenantsrepo.NewMemoryRepository()
	seeded := seedTenant(t, repo, "acme", tenantssvc.StatusActive)
	ops := newFakeOps()
	ops.migrateErr = errors.New("syntax error in migration 0002_documents")
	coord := NewCoordinator(repo, ops, urlFor, nil)

	_, err := coord.Rotate(context.Background(), seeded.ID, 2026)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepMigrate, stepErr.Step)
	require.Equal(t, "tenant_acme_2026", stepErr.Database)

	// The provisioned database was dropped and the tenant record untouched.
	require.False(t, ops.existing["tenant_acme_2026"])
	require.Equal(t, []string{"tenant_acme_2026"}, ops.dropped)

	after, err := repo.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, "tenant_acme_2025", after.CurrentDB)
	require.Equal(t, []string{"tenant_acme_2025"}, after.AllDatabases)
}

func TestRotateDropFailureDoesNotMaskMigrationError(t *testing.T) {
	t.Parallel()

	repo := tenantsrepo.NewMemoryRepository()
	seeded := seedTenant(t, repo, "acme", tenantssvc.StatusActive)
	ops := newFakeOps()
	migrateErr := errors.New("migration timed out")
	ops.migrateErr = migrateErr
	ops.dropErr = errors.New("drop blocked by open connection")
	coord := NewCoordinator(repo, ops, urlFor, nil)

	_, err := coord.Rotate(context.Background(), seeded.ID, 2026)
	require.ErrorIs(t, err, migrateErr)
}

func TestRotateProvisioningFailureAborts(t *testing.T) {
	t.Parallel()

	repo := tenantsrepo.NewMemoryRepository()
	seeded := seedTenant(t, repo, "acme", tenantssvc.StatusActive)
	ops := newFakeOps()
	ops.createErr = errors.New("permission denied to create database")
	coord := NewCoordinator(repo, ops, urlFor, nil)

	_, err := coord.Rotate(context.Background(), seeded.ID, 2026)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepProvision, stepErr.Step)

	after, err := repo.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"tenant_acme_2025"}, after.AllDatabases)
}

func TestRotateInactiveTenantFailsClosed(t *testing.T) {
	t.Parallel()

	repo := tenantsrepo.NewMemoryRepository()
	seeded := seedTenant(t, repo, "asleep", tenantssvc.StatusInactive)
	coord := NewCoordinator(repo, newFakeOps(), urlFor, nil)

	_, err := coord.Rotate(context.Background(), seeded.ID, 2026)
	require.ErrorIs(t, err, tenantssvc.ErrNotFound)
}

func TestRotateRejectsAbsurdYears(t *testing.T) {
	t.Parallel()

	repo := tenantsrepo.NewMemoryRepository()
	seeded := seedTenant(t, repo, "acme", tenantssvc.StatusActive)
	coord := NewCoordinator(repo, newFakeOps(), urlFor, nil)

	for _, year := range []int{0, 1999, 2101, -5} {
		_, err := coord.Rotate(context.Background(), seeded.ID, year)
		require.ErrorIs(t, err, ErrInvalidYear)
	}
}

func TestProvisionDatabaseForNewTenant(t *testing.T) {
	t.Parallel()

	ops := newFakeOps()
	coord := NewCoordinator(tenantsrepo.NewMemoryRepository(), ops, urlFor, nil)

	name, err := coord.ProvisionDatabase(context.Background(), "big-shop", 2026)
	require.NoError(t, err)
	require.Equal(t, "tenant_big_shop_2026", name)
	require.True(t, ops.existing[name])
}
