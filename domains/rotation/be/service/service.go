package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tenantssvc "github.com/craftline/craftline-platform/domains/tenants/be/service"
	"github.com/craftline/craftline-platform/platform/go/dbops"
	"github.com/craftline/craftline-platform/platform/go/tenant"
)

// Rotation step names, surfaced on failure so an operator can verify state.
const (
	StepProvision = "provision"
	StepMigrate   = "migrate"
	StepCommit    = "commit"
)

// Errors returned by the coordinator.
var (
	// ErrYearAlreadyProvisioned rejects a rotation into a year that is
	// already in the tenant's database history. Rotation is idempotent per
	// year by refusal, never by overwrite.
	ErrYearAlreadyProvisioned = errors.New("database for target year already provisioned")
	ErrInvalidYear            = errors.New("target year out of range")
)

// StepError reports which rotation step failed and against which database,
// with the underlying cause unwrapped intact. Rotation is an infrequent,
// high-consequence operation; silent partial state is unacceptable.
type StepError struct {
	Step     string
	Database string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("rotation step %s failed for database %s: %v", e.Step, e.Database, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// TenantStore is the slice of the tenants repository the coordinator needs.
type TenantStore interface {
	Get(ctx context.Context, id uuid.UUID) (tenantssvc.Tenant, error)
	CommitRotation(ctx context.Context, id uuid.UUID, newDB string) (tenantssvc.Tenant, error)
}

// Result names the databases involved in a completed rotation.
type Result struct {
	OldDB string `json:"oldDb"`
	NewDB string `json:"newDb"`
}

// Coordinator orchestrates the yearly database rotation: provision the dated
// database, migrate it, then atomically repoint the tenant. It is the only
// component that ever writes a tenant's CurrentDB.
type Coordinator struct {
	tenants TenantStore
	ops     dbops.Operations
	urlFor  tenantssvc.URLBuilder
	logger  *zap.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(tenants TenantStore, ops dbops.Operations, urlFor tenantssvc.URLBuilder, logger *zap.Logger) *Coordinator {
	if tenants == nil {
		panic("rotation requires tenant store")
	}
	if ops == nil {
		panic("rotation requires database operations")
	}
	if urlFor == nil {
		panic("rotation requires url builder")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{tenants: tenants, ops: ops, urlFor: urlFor, logger: logger}
}

// Rotate provisions tenant_{slug}_{year}, migrates it, and commits the
// switchover as the very last step. After the commit every new resolution
// sees the new database; requests already in flight finish on whichever
// context they captured.
//
// Failure behavior per step: validation failures have no side effects;
// a provisioning failure aborts immediately; a migration failure drops the
// database it just created (compensation) before returning; a commit failure
// leaves the migrated database in place and names the step for manual
// remediation. The call is deliberately not retriable in a loop: a second
// call for the same year fails with ErrYearAlreadyProvisioned.
func (c *Coordinator) Rotate(ctx context.Context, tenantID uuid.UUID, year int) (Result, error) {
	if year < 2000 || year > 2100 {
		return Result{}, ErrInvalidYear
	}

	t, err := c.tenants.Get(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	if t.Status != tenantssvc.StatusActive {
		return Result{}, tenantssvc.ErrNotFound
	}

	newDB := tenant.BuildDatabaseName(t.Slug, year)
	if t.HasDatabase(newDB) {
		return Result{}, fmt.Errorf("%w: %s", ErrYearAlreadyProvisioned, newDB)
	}

	if err := c.provisionAndMigrate(ctx, newDB); err != nil {
		return Result{}, err
	}

	committed, err := c.tenants.CommitRotation(ctx, tenantID, newDB)
	if err != nil {
		// The migrated database stays behind on purpose: dropping it here
		// could destroy a database a concurrent commit already published.
		return Result{}, &StepError{Step: StepCommit, Database: newDB, Err: err}
	}

	c.logger.Info("tenant rotated",
		zap.String("tenant", t.Slug),
		zap.String("old_db", t.CurrentDB),
		zap.String("new_db", committed.CurrentDB),
	)
	return Result{OldDB: t.CurrentDB, NewDB: committed.CurrentDB}, nil
}

// ProvisionDatabase creates and migrates a dated database without touching
// the control plane. The tenants service uses it for first-time provisioning.
func (c *Coordinator) ProvisionDatabase(ctx context.Context, slug string, year int) (string, error) {
	if year < 2000 || year > 2100 {
		return "", ErrInvalidYear
	}
	name := tenant.BuildDatabaseName(slug, year)
	if err := c.provisionAndMigrate(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

func (c *Coordinator) provisionAndMigrate(ctx context.Context, name string) error {
	if err := c.ops.CreateDatabase(ctx, name); err != nil {
		return &StepError{Step: StepProvision, Database: name, Err: err}
	}

	url, err := c.urlFor(name)
	if err != nil {
		return &StepError{Step: StepMigrate, Database: name, Err: err}
	}

	if err := c.ops.RunMigrations(ctx, url); err != nil {
		// Compensate: leave no orphaned, unmigrated database behind. A drop
		// failure is logged but never masks the migration error.
		if dropErr := c.ops.DropDatabase(ctx, name); dropErr != nil {
			c.logger.Error("compensating drop failed after migration failure",
				zap.String("database", name),
				zap.Error(dropErr),
			)
		}
		return &StepError{Step: StepMigrate, Database: name, Err: err}
	}
	return nil
}

var _ tenantssvc.DatabaseProvisioner = (*Coordinator)(nil)
