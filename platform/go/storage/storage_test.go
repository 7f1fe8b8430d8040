package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTenantDir(t *testing.T) {
	t.Parallel()

	dir, err := TenantDir("/var/lib/craftline", "acme")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/var/lib/craftline", "acme"), dir)

	_, err = TenantDir("/var/lib/craftline", "../escape")
	require.Error(t, err)

	_, err = TenantDir("", "acme")
	require.Error(t, err)
}

func TestCopyTreePreservesLayout(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(src, "invoices", "2026"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "invoices", "2026", "inv-001.pdf"), []byte("pdf"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "logo.png"), []byte("png"), 0o644))

	require.NoError(t, CopyTree(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "invoices", "2026", "inv-001.pdf"))
	require.NoError(t, err)
	require.Equal(t, "pdf", string(data))

	n, err := CountFiles(dst)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCountFilesMissingDirIsZero(t *testing.T) {
	t.Parallel()

	n, err := CountFiles(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Zero(t, n)
}
