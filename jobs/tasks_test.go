package jobs

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	exportsvc "github.com/craftline/craftline-platform/domains/export/be/service"
	rotationsvc "github.com/craftline/craftline-platform/domains/rotation/be/service"
	tenantsrepo "github.com/craftline/craftline-platform/domains/tenants/be/repo"
	tenantssvc "github.com/craftline/craftline-platform/domains/tenants/be/service"
)

type fakeOps struct {
	existing   map[string]bool
	migrateErr error
}

func newFakeOps() *fakeOps {
	return &fakeOps{existing: make(map[string]bool)}
}

func (f *fakeOps) CreateDatabase(ctx context.Context, name string) error {
	f.existing[name] = true
	return nil
}

func (f *fakeOps) DropDatabase(ctx context.Context, name string) error {
	delete(f.existing, name)
	return nil
}

func (f *fakeOps) RunMigrations(ctx context.Context, databaseURL string) error {
	return f.migrateErr
}

func (f *fakeOps) DumpDatabase(ctx context.Context, databaseURL, outFile string) error {
	return os.WriteFile(outFile, []byte("-- dump\n"), 0o644)
}

func urlFor(name string) (string, error) {
	return "postgres://app@db:5432/" + name, nil
}

func newTestTasks(t *testing.T, ops *fakeOps) (*Tasks, tenantssvc.Tenant) {
	t.Helper()

	repo := tenantsrepo.NewMemoryRepository()
	seeded, err := repo.Create(context.Background(), tenantssvc.Tenant{
		ID:           uuid.New(),
		Slug:         "acme",
		Status:       tenantssvc.StatusActive,
		CurrentDB:    "tenant_acme_2025",
		AllDatabases: []string{"tenant_acme_2025"},
	})
	require.NoError(t, err)

	coordinator := rotationsvc.NewCoordinator(repo, ops, urlFor, nil)
	exporter := exportsvc.NewExporter(exportsvc.Config{
		Tenants:   repo,
		Dumper:    ops,
		URLFor:    urlFor,
		ExportDir: t.TempDir(),
	})
	return NewTasks(coordinator, exporter, nil), seeded
}

func TestHandleRotate(t *testing.T) {
	t.Parallel()

	ops := newFakeOps()
	tasks, seeded := newTestTasks(t, ops)

	task, err := NewRotateTask(RotatePayload{TenantID: seeded.ID, Year: 2026})
	require.NoError(t, err)

	require.NoError(t, tasks.HandleRotate(context.Background(), task))
	require.True(t, ops.existing["tenant_acme_2026"])
}

func TestHandleRotateFailureIsRetriable(t *testing.T) {
	t.Parallel()

	ops := newFakeOps()
	ops.migrateErr = errors.New("migration timed out")
	tasks, seeded := newTestTasks(t, ops)

	task, err := NewRotateTask(RotatePayload{TenantID: seeded.ID, Year: 2026})
	require.NoError(t, err)

	err = tasks.HandleRotate(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRotateMalformedPayloadSkipsRetry(t *testing.T) {
	t.Parallel()

	tasks, _ := newTestTasks(t, newFakeOps())

	task := asynq.NewTask(TaskTypeRotate, []byte("{not json"))
	err := tasks.HandleRotate(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExport(t *testing.T) {
	t.Parallel()

	tasks, seeded := newTestTasks(t, newFakeOps())

	task, err := NewExportTask(ExportPayload{TenantID: seeded.ID, Year: 2025})
	require.NoError(t, err)
	require.NoError(t, tasks.HandleExport(context.Background(), task))
}

func TestHandleExportMalformedPayloadSkipsRetry(t *testing.T) {
	t.Parallel()

	tasks, _ := newTestTasks(t, newFakeOps())

	task := asynq.NewTask(TaskTypeExport, []byte("[]"))
	err := tasks.HandleExport(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
