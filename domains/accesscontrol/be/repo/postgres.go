package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftline/craftline-platform/domains/accesscontrol/be/service"
)

const configColumns = "id, tenant_id, company_id, type, user_id, role_id, settings, is_active, updated_at"

// PostgresRepository stores configuration records in the control-plane
// database. The partial index on (tenant_id, company_id, type) keeps
// FindBucket indexed for the request path.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository; assumes the core schema exists.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("accesscontrol repo requires pool")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) FindBucket(ctx context.Context, tenantID, companyID uuid.UUID, typ string) ([]service.Configuration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+configColumns+`
		FROM access_control_configurations
		WHERE tenant_id = $1 AND company_id = $2 AND type = $3 AND is_active`,
		tenantID, companyID, typ,
	)
	if err != nil {
		return nil, fmt.Errorf("query bucket: %w", err)
	}
	defer rows.Close()

	var items []service.Configuration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) Save(ctx context.Context, c service.Configuration) (service.Configuration, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO access_control_configurations (`+configColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET settings = EXCLUDED.settings,
		    is_active = EXCLUDED.is_active,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+configColumns,
		c.ID, c.TenantID, c.CompanyID, c.Type, c.UserID, c.RoleID, c.Settings, c.IsActive, c.UpdatedAt,
	)
	saved, err := scanConfiguration(row)
	if err != nil {
		return service.Configuration{}, fmt.Errorf("save configuration: %w", err)
	}
	return saved, nil
}

func scanConfiguration(row pgx.Row) (service.Configuration, error) {
	var c service.Configuration
	err := row.Scan(&c.ID, &c.TenantID, &c.CompanyID, &c.Type, &c.UserID, &c.RoleID, &c.Settings, &c.IsActive, &c.UpdatedAt)
	return c, err
}

var _ service.Repository = (*PostgresRepository)(nil)
