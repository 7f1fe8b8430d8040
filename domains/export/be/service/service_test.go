package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	tenantsrepo "github.com/craftline/craftline-platform/domains/tenants/be/repo"
	tenantssvc "github.com/craftline/craftline-platform/domains/tenants/be/service"
)

type fakeDumper struct {
	err   error
	block bool
}

func (f *fakeDumper) DumpDatabase(ctx context.Context, databaseURL, outFile string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outFile, []byte("-- dump of "+databaseURL+"\nCREATE TABLE companies ();\n"), 0o644)
}

func urlFor(name string) (string, error) {
	return "postgres://app@db:5432/" + name, nil
}

func seedTenant(t *testing.T, slug string) (*tenantsrepo.MemoryRepository, tenantssvc.Tenant) {
	t.Helper()
	repo := tenantsrepo.NewMemoryRepository()
	seeded, err := repo.Create(context.Background(), tenantssvc.Tenant{
		ID:           uuid.New(),
		Slug:         slug,
		Status:       tenantssvc.StatusActive,
		CurrentDB:    "tenant_" + slug + "_2026",
		AllDatabases: []string{"tenant_" + slug + "_2026"},
	})
	require.NoError(t, err)
	return repo, seeded
}

func newExporter(t *testing.T, repo *tenantsrepo.MemoryRepository, dumper DatabaseDumper, storageDir string) (*Exporter, string) {
	t.Helper()
	exportDir := t.TempDir()
	return NewExporter(Config{
		Tenants:     repo,
		Dumper:      dumper,
		URLFor:      urlFor,
		StorageDir:  storageDir,
		StorageType: "local",
		ExportDir:   exportDir,
	}), exportDir
}

// requireNoScratchDirs asserts guaranteed cleanup: only archive files may
// remain in the export dir.
func requireNoScratchDirs(t *testing.T, exportDir string) {
	t.Helper()
	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, e.IsDir(), "leftover scratch dir: %s", e.Name())
	}
}

func TestExportTenantRoundTrip(t *testing.T) {
	t.Parallel()

	repo, seeded := seedTenant(t, "acme")

	storageDir := t.TempDir()
	tenantFiles := filepath.Join(storageDir, "acme", "invoices")
	require.NoError(t, os.MkdirAll(tenantFiles, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tenantFiles, "inv-001.pdf"), []byte("pdf"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "acme", "logo.png"), []byte("png"), 0o644))

	exp, exportDir := newExporter(t, repo, &fakeDumper{}, storageDir)

	archive, err := exp.ExportTenant(context.Background(), seeded.ID, 2026)
	require.NoError(t, err)
	require.FileExists(t, archive.Path)
	require.Equal(t, "acme", archive.Manifest.Tenant)
	require.Equal(t, 2026, archive.Manifest.Year)
	require.Equal(t, "tenant_acme_2026", archive.Manifest.Database)
	require.Equal(t, SchemaVersion, archive.Manifest.SchemaVersion)
	require.Equal(t, "local", archive.Manifest.StorageType)

	// The manifest round-trips through the archive unchanged.
	parsed, err := ReadManifest(archive.Path)
	require.NoError(t, err)
	require.Equal(t, archive.Manifest.Database, parsed.Database)
	require.Equal(t, archive.Manifest.Tenant, parsed.Tenant)
	require.NoError(t, ValidateManifest(parsed))

	// File count inside the archive matches the storage subtree.
	n, err := CountArchiveFiles(archive.Path)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	requireNoScratchDirs(t, exportDir)
}

func TestExportTenantMissingStorageIsNotFatal(t *testing.T) {
	t.Parallel()

	repo, seeded := seedTenant(t, "acme")
	exp, exportDir := newExporter(t, repo, &fakeDumper{}, filepath.Join(t.TempDir(), "never-created"))

	archive, err := exp.ExportTenant(context.Background(), seeded.ID, 2026)
	require.NoError(t, err)

	n, err := CountArchiveFiles(archive.Path)
	require.NoError(t, err)
	require.Zero(t, n)

	requireNoScratchDirs(t, exportDir)
}

func TestExportTenantDumpFailureCleansUp(t *testing.T) {
	t.Parallel()

	repo, seeded := seedTenant(t, "acme")
	exp, exportDir := newExporter(t, repo, &fakeDumper{err: errors.New("pg_dump: connection refused")}, t.TempDir())

	_, err := exp.ExportTenant(context.Background(), seeded.ID, 2026)
	require.Error(t, err)

	requireNoScratchDirs(t, exportDir)

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tar.gz"), "partial archive left behind: %s", e.Name())
	}
}

func TestExportTenantUnknownYear(t *testing.T) {
	t.Parallel()

	repo, seeded := seedTenant(t, "acme")
	exp, exportDir := newExporter(t, repo, &fakeDumper{}, t.TempDir())

	_, err := exp.ExportTenant(context.Background(), seeded.ID, 2031)
	require.ErrorIs(t, err, ErrDatabaseNotProvisioned)

	requireNoScratchDirs(t, exportDir)
}

func TestExportTenantTimeoutOnStuckDump(t *testing.T) {
	t.Parallel()

	repo, seeded := seedTenant(t, "acme")
	exportDir := t.TempDir()
	exp := NewExporter(Config{
		Tenants:   repo,
		Dumper:    &fakeDumper{block: true},
		URLFor:    urlFor,
		ExportDir: exportDir,
		Timeout:   50 * time.Millisecond,
	})

	start := time.Now()
	_, err := exp.ExportTenant(context.Background(), seeded.ID, 2026)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)

	requireNoScratchDirs(t, exportDir)
}

func TestValidateManifestRejectsOtherSchemaVersions(t *testing.T) {
	t.Parallel()

	m := Manifest{Tenant: "acme", Year: 2026, SchemaVersion: SchemaVersion + 1, Database: "tenant_acme_2026"}
	require.ErrorIs(t, ValidateManifest(m), ErrUnsupportedSchemaVersion)

	m.SchemaVersion = SchemaVersion
	require.NoError(t, ValidateManifest(m))
}
