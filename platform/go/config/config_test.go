package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLForDatabase(t *testing.T) {
	t.Parallel()

	url, err := URLForDatabase("postgres://app:secret@db:5432/{database}?sslmode=disable", "tenant_acme_2026")
	require.NoError(t, err)
	require.Equal(t, "postgres://app:secret@db:5432/tenant_acme_2026?sslmode=disable", url)
}

func TestURLForDatabaseRejectsEmptyName(t *testing.T) {
	t.Parallel()

	_, err := URLForDatabase("postgres://db/{database}", "  ")
	require.Error(t, err)
}

func TestURLForDatabaseRejectsTemplateWithoutPlaceholder(t *testing.T) {
	t.Parallel()

	_, err := URLForDatabase("postgres://db/fixed", "tenant_acme_2026")
	require.Error(t, err)
}

func TestLoadValidatesTemplate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app@db/core")
	t.Setenv("ADMIN_DATABASE_URL", "postgres://admin@db/postgres")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("DATABASE_URL_TEMPLATE", "postgres://app@db/fixed")

	_, err := Load()
	require.ErrorContains(t, err, DatabasePlaceholder)

	t.Setenv("DATABASE_URL_TEMPLATE", "postgres://app@db/{database}")
	cfg, err := Load()
	require.NoError(t, err)

	url, err := cfg.URLForDatabase("tenant_acme_2026")
	require.NoError(t, err)
	require.Equal(t, "postgres://app@db/tenant_acme_2026", url)
}
