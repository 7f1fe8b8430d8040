package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftline/craftline-platform/domains/tenants/be/service"
)

const pgUniqueViolation = "23505"

const tenantColumns = "id, slug, display_name, status, current_db, all_databases, created_at, updated_at"

// PostgresRepository stores tenants in the control-plane database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository; assumes the core schema exists.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("tenants repo requires pool")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenants (id, slug, display_name, status, current_db, all_databases, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+tenantColumns,
		t.ID, t.Slug, t.DisplayName, t.Status, t.CurrentDB, t.AllDatabases, t.CreatedAt, t.UpdatedAt,
	)

	created, err := scanTenant(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return service.Tenant{}, service.ErrConflictSlug
		}
		return service.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, err
}

// FindBySlug is the per-request lookup; tenants_slug_key keeps it indexed.
func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE slug = $1", slug)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, err
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error) {
	query := "SELECT " + tenantColumns + " FROM tenants"
	args := []any{}
	if opts.Status != nil {
		query += " WHERE status = $1"
		args = append(args, *opts.Status)
	}
	query += " ORDER BY created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var items []service.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status service.Status) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tenants SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+tenantColumns,
		id, status, time.Now().UTC(),
	)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, err
}

// CommitRotation appends the new database and repoints current_db in one
// statement; this is the rotation switchover write.
func (r *PostgresRepository) CommitRotation(ctx context.Context, id uuid.UUID, newDB string) (service.Tenant, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tenants
		SET all_databases = array_append(all_databases, $2),
		    current_db = $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+tenantColumns,
		id, newDB, time.Now().UTC(),
	)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, err
}

func scanTenant(row pgx.Row) (service.Tenant, error) {
	var t service.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.DisplayName, &t.Status, &t.CurrentDB, &t.AllDatabases, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

var _ service.Repository = (*PostgresRepository)(nil)
