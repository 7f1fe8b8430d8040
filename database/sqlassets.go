// Package sqlassets embeds the SQL shipped with the binary: the control-plane
// schema and the ordered per-tenant migration sequence.
package sqlassets

import _ "embed"

//go:embed schema/core/tenants.sql
var TenantsSQL string

//go:embed schema/core/access_control.sql
var AccessControlSQL string

//go:embed schema/tenant/0001_companies.sql
var tenantCompaniesSQL string

//go:embed schema/tenant/0002_documents.sql
var tenantDocumentsSQL string

//go:embed schema/tenant/0003_document_files.sql
var tenantDocumentFilesSQL string

// Migration pairs a stable name with its DDL. Names are recorded in the
// target database's schema_migrations table.
type Migration struct {
	Name string
	SQL  string
}

// TenantMigrations returns the full per-tenant schema sequence in apply order.
// Append-only: never reorder or edit an entry that has shipped.
func TenantMigrations() []Migration {
	return []Migration{
		{Name: "0001_companies", SQL: tenantCompaniesSQL},
		{Name: "0002_documents", SQL: tenantDocumentsSQL},
		{Name: "0003_document_files", SQL: tenantDocumentFilesSQL},
	}
}

// CoreSchema returns the control-plane DDL in apply order.
func CoreSchema() []Migration {
	return []Migration{
		{Name: "core_tenants", SQL: TenantsSQL},
		{Name: "core_access_control", SQL: AccessControlSQL},
	}
}
