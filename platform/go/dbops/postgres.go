package dbops

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	sqlassets "github.com/craftline/craftline-platform/database"
	"github.com/craftline/craftline-platform/platform/go/persistence"
)

const (
	pgDuplicateDatabase = "42P04"
	maxIdentifierLen    = 63
)

var databaseNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Postgres implements Operations against a PostgreSQL server. CREATE/DROP
// DATABASE run on the admin pool; migrations open a short-lived pool against
// the target database; dumps shell out to pg_dump.
type Postgres struct {
	admin     *pgxpool.Pool
	logger    *zap.Logger
	pgDumpBin string
}

// NewPostgres constructs the production Operations implementation.
func NewPostgres(admin *pgxpool.Pool, logger *zap.Logger) *Postgres {
	if admin == nil {
		panic("dbops requires admin pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{admin: admin, logger: logger, pgDumpBin: "pg_dump"}
}

func validDatabaseName(name string) error {
	if name == "" || len(name) > maxIdentifierLen || !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	return nil
}

// CreateDatabase issues CREATE DATABASE; duplicate_database is success.
func (p *Postgres) CreateDatabase(ctx context.Context, name string) error {
	if err := validDatabaseName(name); err != nil {
		return err
	}

	// CREATE DATABASE cannot run inside a transaction and does not accept
	// bind parameters; the name is validated and quoted instead.
	_, err := p.admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
			p.logger.Warn("database already exists, treating create as success", zap.String("database", name))
			return nil
		}
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// DropDatabase removes the database if present.
func (p *Postgres) DropDatabase(ctx context.Context, name string) error {
	if err := validDatabaseName(name); err != nil {
		return err
	}

	_, err := p.admin.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{name}.Sanitize())
	if err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	return nil
}

// RunMigrations applies the embedded tenant schema sequence in order,
// recording progress in a schema_migrations table so re-runs are idempotent.
func (p *Postgres) RunMigrations(ctx context.Context, databaseURL string) error {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL, MaxConns: 1})
	if err != nil {
		return fmt.Errorf("connect target database: %w", err)
	}
	defer persistence.ClosePool(pool)

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range sqlassets.TenantMigrations() {
		var applied bool
		if err := pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)", m.Name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (name) VALUES ($1)", m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// DumpDatabase shells out to pg_dump for a portable plain-SQL dump.
func (p *Postgres) DumpDatabase(ctx context.Context, databaseURL, outFile string) error {
	cmd := exec.CommandContext(ctx, p.pgDumpBin,
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		"--file", outFile,
		"--dbname", databaseURL,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pg_dump: %w: %s", err, string(out))
	}
	return nil
}

var _ Operations = (*Postgres)(nil)
