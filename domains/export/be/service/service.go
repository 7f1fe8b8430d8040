package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tenantssvc "github.com/craftline/craftline-platform/domains/tenants/be/service"
	"github.com/craftline/craftline-platform/platform/go/storage"
	"github.com/craftline/craftline-platform/platform/go/tenant"
)

// SchemaVersion is stamped into every manifest. Import refuses archives
// written under a different version instead of silently corrupting a
// database.
const SchemaVersion = 1

const (
	manifestFileName = "manifest.json"
	dumpFileName     = "dump.sql"
	filesDirName     = "files"
)

// Errors returned by the export pipeline.
var (
	ErrDatabaseNotProvisioned   = errors.New("no database provisioned for target year")
	ErrUnsupportedSchemaVersion = errors.New("unsupported archive schema version")
)

// Manifest is the at-rest contract of an export archive. Import and backup
// audit tooling parse exactly these fields.
type Manifest struct {
	Tenant        string    `json:"tenant"`
	Year          int       `json:"year"`
	SchemaVersion int       `json:"schema_version"`
	ExportedAt    time.Time `json:"exported_at"`
	Database      string    `json:"database"`
	StorageType   string    `json:"storage_type"`
}

// Archive references a finished export on disk.
type Archive struct {
	Path     string   `json:"path"`
	Manifest Manifest `json:"manifest"`
}

// DatabaseDumper is the slice of dbops the exporter needs.
type DatabaseDumper interface {
	DumpDatabase(ctx context.Context, databaseURL, outFile string) error
}

// TenantStore is the slice of the tenants repository the exporter needs.
type TenantStore interface {
	Get(ctx context.Context, id uuid.UUID) (tenantssvc.Tenant, error)
}

// Config collects the exporter's dependencies and knobs.
type Config struct {
	Tenants TenantStore
	Dumper  DatabaseDumper
	URLFor  tenantssvc.URLBuilder
	// StorageDir is the root of the local file storage; the tenant's
	// subtree below it is mirrored into the archive.
	StorageDir  string
	StorageType string
	// ExportDir receives finished archives and hosts scratch directories.
	ExportDir string
	// Timeout bounds one export end to end; a stuck dump fails the call and
	// the scratch directory is cleaned up. Zero means no timeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Exporter produces self-contained tenant archives: database dump, file
// tree, manifest, compressed into one file.
type Exporter struct {
	cfg Config
}

// NewExporter constructs an Exporter.
func NewExporter(cfg Config) *Exporter {
	if cfg.Tenants == nil {
		panic("exporter requires tenant store")
	}
	if cfg.Dumper == nil {
		panic("exporter requires dumper")
	}
	if cfg.URLFor == nil {
		panic("exporter requires url builder")
	}
	if cfg.ExportDir == "" {
		panic("exporter requires export dir")
	}
	if cfg.StorageType == "" {
		cfg.StorageType = storage.BackendLocal
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Exporter{cfg: cfg}
}

// ExportTenant captures the tenant's dated database and file subtree into a
// single archive under ExportDir.
//
// Every step can fail independently; the scratch directory is removed no
// matter what, and a half-written archive file never survives an error.
// Missing file storage is not fatal: the archive simply ships an empty files
// directory.
func (e *Exporter) ExportTenant(ctx context.Context, tenantID uuid.UUID, year int) (Archive, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	t, err := e.cfg.Tenants.Get(ctx, tenantID)
	if err != nil {
		return Archive{}, err
	}

	dbName := tenant.BuildDatabaseName(t.Slug, year)
	if !t.HasDatabase(dbName) {
		return Archive{}, fmt.Errorf("%w: %s", ErrDatabaseNotProvisioned, dbName)
	}

	if err := os.MkdirAll(e.cfg.ExportDir, 0o755); err != nil {
		return Archive{}, fmt.Errorf("create export dir: %w", err)
	}

	scratch, err := os.MkdirTemp(e.cfg.ExportDir, "export-"+tenant.ToSnake(t.Slug)+"-")
	if err != nil {
		return Archive{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			e.cfg.Logger.Error("remove scratch dir", zap.String("dir", scratch), zap.Error(rmErr))
		}
	}()

	url, err := e.cfg.URLFor(dbName)
	if err != nil {
		return Archive{}, fmt.Errorf("build database url for %s: %w", dbName, err)
	}
	if err := e.cfg.Dumper.DumpDatabase(ctx, url, filepath.Join(scratch, dumpFileName)); err != nil {
		return Archive{}, fmt.Errorf("dump database %s: %w", dbName, err)
	}

	filesDst := filepath.Join(scratch, filesDirName)
	if err := os.MkdirAll(filesDst, 0o755); err != nil {
		return Archive{}, fmt.Errorf("create files dir: %w", err)
	}
	if e.cfg.StorageDir != "" {
		src, err := storage.TenantDir(e.cfg.StorageDir, t.Slug)
		if err != nil {
			return Archive{}, err
		}
		if _, statErr := os.Stat(src); statErr == nil {
			if err := storage.CopyTree(src, filesDst); err != nil {
				return Archive{}, fmt.Errorf("copy tenant files: %w", err)
			}
		} else if !os.IsNotExist(statErr) {
			return Archive{}, fmt.Errorf("stat tenant files: %w", statErr)
		}
	}

	manifest := Manifest{
		Tenant:        t.Slug,
		Year:          year,
		SchemaVersion: SchemaVersion,
		ExportedAt:    time.Now().UTC(),
		Database:      dbName,
		StorageType:   e.cfg.StorageType,
	}
	if err := writeManifest(filepath.Join(scratch, manifestFileName), manifest); err != nil {
		return Archive{}, err
	}

	archivePath := filepath.Join(e.cfg.ExportDir,
		fmt.Sprintf("craftline-%s-%d-%s.tar.gz", tenant.ToSnake(t.Slug), year, time.Now().UTC().Format("20060102T150405Z")))
	if err := writeTarGz(ctx, scratch, archivePath); err != nil {
		// Never leave a partial archive behind.
		_ = os.Remove(archivePath)
		return Archive{}, fmt.Errorf("compress archive: %w", err)
	}

	e.cfg.Logger.Info("tenant exported",
		zap.String("tenant", t.Slug),
		zap.String("database", dbName),
		zap.String("archive", archivePath),
	)
	return Archive{Path: archivePath, Manifest: manifest}, nil
}

// ValidateManifest guards the import side: an archive written under a
// different schema version is rejected before anything is written.
func ValidateManifest(m Manifest) error {
	if m.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedSchemaVersion, m.SchemaVersion, SchemaVersion)
	}
	if m.Tenant == "" || m.Database == "" {
		return errors.New("manifest is missing tenant or database")
	}
	return nil
}
