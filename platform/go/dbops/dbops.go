// Package dbops isolates the privileged database operations (DDL against the
// server, schema migrations, dumps) behind a narrow interface so that the
// rotation and export control logic stays unit-testable with fakes.
package dbops

import "context"

// Operations is the contract consumed by the rotation coordinator and the
// export pipeline. Implementations connect with the privileged admin DSN;
// tenant-scoped code paths never see these credentials.
type Operations interface {
	// CreateDatabase provisions a database. Creating a name that already
	// exists is treated as success: a database present at the storage layer
	// but missing from the control plane is drift, not an error.
	CreateDatabase(ctx context.Context, name string) error
	// DropDatabase removes a database; dropping a missing one is a no-op.
	DropDatabase(ctx context.Context, name string) error
	// RunMigrations applies the full tenant schema migration sequence
	// against the database identified by databaseURL.
	RunMigrations(ctx context.Context, databaseURL string) error
	// DumpDatabase writes a portable SQL dump of schema and data to outFile.
	DumpDatabase(ctx context.Context, databaseURL, outFile string) error
}
