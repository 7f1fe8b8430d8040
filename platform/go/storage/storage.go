// Package storage provides the local file-tree primitives the platform needs:
// resolving a tenant's storage subtree and copying it for export. Object
// read/write beyond that is owned by the upload service, not this module.
package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BackendLocal is the only backend this deployment ships; the manifest
// records it so import tooling knows how the file tree was captured.
const BackendLocal = "local"

// TenantDir resolves the storage subtree for a tenant slug under baseDir.
func TenantDir(baseDir, slug string) (string, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return "", fmt.Errorf("storage base dir is required")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" || strings.ContainsAny(slug, `/\.`) {
		return "", fmt.Errorf("invalid tenant slug %q", slug)
	}
	return filepath.Join(baseDir, slug), nil
}

// CopyTree copies every regular file under src into dst, preserving the
// relative layout. Symlinks and special files are skipped.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// CountFiles returns the number of regular files under dir. A missing dir
// counts as zero.
func CountFiles(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}
