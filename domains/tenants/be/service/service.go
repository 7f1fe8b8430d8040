package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/craftline/craftline-platform/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	// ErrNotFound covers both an unknown slug and an inactive tenant so the
	// response never reveals which of the two it was. It is the shared
	// tenant.ErrNotFound sentinel, letting transport middleware tell a missing
	// tenant apart from a control-plane outage without importing this package.
	ErrNotFound     = tenant.ErrNotFound
	ErrConflictSlug = errors.New("tenant slug already exists")
	ErrInvalidSlug  = errors.New("invalid tenant slug")
)

// Status of a tenant in the control plane.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Tenant is the control-plane registry entry. CurrentDB names the database
// presently serving the tenant; AllDatabases is the append-only history of
// every database ever provisioned for it. Invariant: CurrentDB is always a
// member of AllDatabases.
type Tenant struct {
	ID           uuid.UUID
	Slug         string
	DisplayName  *string
	Status       Status
	CurrentDB    string
	AllDatabases []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasDatabase reports whether name is already recorded in the history.
func (t Tenant) HasDatabase(name string) bool {
	for _, db := range t.AllDatabases {
		if db == name {
			return true
		}
	}
	return false
}

// CreateInput represents the request to register a tenant.
type CreateInput struct {
	Slug        string
	DisplayName *string
	// Year selects the first dated database provisioned for the tenant.
	Year int
}

// ListOptions captures filters for listing tenants.
type ListOptions struct {
	Status *Status
}

// Repository abstracts the control-plane store.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
	List(ctx context.Context, opts ListOptions) ([]Tenant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Tenant, error)
	// CommitRotation appends newDB to the tenant's database history and sets
	// it as current in a single write. Only the rotation coordinator calls
	// this; everything else treats CurrentDB as read-only.
	CommitRotation(ctx context.Context, id uuid.UUID, newDB string) (Tenant, error)
}

// DatabaseProvisioner creates and migrates a dated tenant database, dropping
// it again when migration fails. Implemented by the rotation coordinator.
type DatabaseProvisioner interface {
	ProvisionDatabase(ctx context.Context, slug string, year int) (string, error)
}

// URLBuilder resolves a database name into a fully-qualified connection
// string (the configuration store's URL template).
type URLBuilder func(databaseName string) (string, error)

// Service provides tenant registry operations and per-request resolution.
type Service struct {
	repo        Repository
	urlFor      URLBuilder
	provisioner DatabaseProvisioner
}

// New constructs a Service with required dependencies.
func New(repo Repository, urlFor URLBuilder, provisioner DatabaseProvisioner) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if urlFor == nil {
		panic("url builder is required")
	}
	return &Service{repo: repo, urlFor: urlFor, provisioner: provisioner}
}

// Resolve turns a request tenant signal (slug) into a request-scoped
// tenant.Context. It fails closed: an unknown slug and an inactive tenant
// both come back as ErrNotFound. The lookup is a single indexed fetch; this
// runs on every tenant-scoped request.
func (s *Service) Resolve(ctx context.Context, slug string) (tenant.Context, error) {
	t, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return tenant.Context{}, err
	}
	if t.Status != StatusActive {
		return tenant.Context{}, ErrNotFound
	}

	url, err := s.urlFor(t.CurrentDB)
	if err != nil {
		return tenant.Context{}, fmt.Errorf("build database url for %s: %w", t.CurrentDB, err)
	}

	return tenant.Context{
		ID:           t.ID,
		Slug:         t.Slug,
		DatabaseName: t.CurrentDB,
		DatabaseURL:  url,
	}, nil
}

// Create registers a tenant and provisions its first dated database. The
// registry row is written last, so a provisioning failure leaves no
// half-registered tenant behind.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	if !tenant.ValidSlug(input.Slug) {
		return Tenant{}, ErrInvalidSlug
	}
	if s.provisioner == nil {
		return Tenant{}, errors.New("tenant provisioning is not configured")
	}

	if _, err := s.repo.FindBySlug(ctx, input.Slug); err == nil {
		return Tenant{}, ErrConflictSlug
	} else if !errors.Is(err, ErrNotFound) {
		return Tenant{}, err
	}

	dbName, err := s.provisioner.ProvisionDatabase(ctx, input.Slug, input.Year)
	if err != nil {
		return Tenant{}, fmt.Errorf("provision initial database: %w", err)
	}

	now := time.Now().UTC()
	t := Tenant{
		ID:           uuid.New(),
		Slug:         input.Slug,
		DisplayName:  input.DisplayName,
		Status:       StatusActive,
		CurrentDB:    dbName,
		AllDatabases: []string{dbName},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.repo.Create(ctx, t)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List returns tenants with an optional status filter.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Tenant, error) {
	return s.repo.List(ctx, opts)
}

// UpdateStatus activates or deactivates a tenant. Deactivation takes effect
// on the next resolution; in-flight requests finish on the context they hold.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Tenant, error) {
	if status != StatusActive && status != StatusInactive {
		return Tenant{}, fmt.Errorf("invalid status %q", status)
	}
	return s.repo.UpdateStatus(ctx, id, status)
}
