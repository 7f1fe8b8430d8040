// Package tenantcmd holds the tenant subcommands of the platform-admin CLI.
package tenantcmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	exportservice "github.com/craftline/craftline-platform/domains/export/be/service"
	rotationservice "github.com/craftline/craftline-platform/domains/rotation/be/service"
	tenantsrepo "github.com/craftline/craftline-platform/domains/tenants/be/repo"
	tenantsservice "github.com/craftline/craftline-platform/domains/tenants/be/service"
	platformconfig "github.com/craftline/craftline-platform/platform/go/config"
	"github.com/craftline/craftline-platform/platform/go/dbops"
	"github.com/craftline/craftline-platform/platform/go/persistence"
)

// Command returns the `tenant` command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants (create, list, rotate, export)",
	}

	cmd.PersistentFlags().String("database-url", os.Getenv("DATABASE_URL"), "control-plane PostgreSQL connection string")
	cmd.PersistentFlags().String("admin-database-url", os.Getenv("ADMIN_DATABASE_URL"), "privileged connection string for CREATE/DROP DATABASE")
	cmd.PersistentFlags().String("url-template", os.Getenv("DATABASE_URL_TEMPLATE"), "per-tenant URL template containing {database}")

	cmd.AddCommand(createCommand())
	cmd.AddCommand(listCommand())
	cmd.AddCommand(rotateCommand())
	cmd.AddCommand(exportCommand())

	return cmd
}

// wiring shared by the subcommands. Callers must call close when done.
type deps struct {
	tenants     *tenantsservice.Service
	repo        *tenantsrepo.PostgresRepository
	coordinator *rotationservice.Coordinator
	urlFor      tenantsservice.URLBuilder
	close       func()
}

func wire(ctx context.Context, cmd *cobra.Command) (*deps, error) {
	databaseURL, err := cmd.Flags().GetString("database-url")
	if err != nil {
		return nil, err
	}
	adminURL, _ := cmd.Flags().GetString("admin-database-url")
	urlTemplate, _ := cmd.Flags().GetString("url-template")

	if databaseURL == "" {
		return nil, fmt.Errorf("--database-url (or DATABASE_URL) is required")
	}
	if urlTemplate == "" {
		return nil, fmt.Errorf("--url-template (or DATABASE_URL_TEMPLATE) is required")
	}

	urlFor := func(name string) (string, error) {
		return platformconfig.URLForDatabase(urlTemplate, name)
	}

	controlPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, fmt.Errorf("connect control plane: %w", err)
	}

	d := &deps{
		repo:   tenantsrepo.NewPostgresRepository(controlPool),
		urlFor: urlFor,
		close:  func() { persistence.ClosePool(controlPool) },
	}

	if adminURL != "" {
		adminPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: adminURL, MaxConns: 2})
		if err != nil {
			persistence.ClosePool(controlPool)
			return nil, fmt.Errorf("connect admin database: %w", err)
		}
		d.close = func() {
			persistence.ClosePool(adminPool)
			persistence.ClosePool(controlPool)
		}
		d.coordinator = rotationservice.NewCoordinator(
			d.repo,
			dbops.NewPostgres(adminPool, zap.NewNop()),
			urlFor,
			zap.NewNop(),
		)
	}

	// A typed nil must not leak into the interface; Create checks for nil.
	var provisioner tenantsservice.DatabaseProvisioner
	if d.coordinator != nil {
		provisioner = d.coordinator
	}
	d.tenants = tenantsservice.New(d.repo, urlFor, provisioner)
	return d, nil
}

func createCommand() *cobra.Command {
	var (
		slug        string
		displayName string
		year        int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant and provision its first yearly database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			d, err := wire(ctx, cmd)
			if err != nil {
				return err
			}
			defer d.close()
			if d.coordinator == nil {
				return fmt.Errorf("--admin-database-url is required to provision databases")
			}

			input := tenantsservice.CreateInput{Slug: slug, Year: year}
			if displayName != "" {
				input.DisplayName = &displayName
			}
			created, err := d.tenants.Create(ctx, input)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created tenant %s (%s) on %s\n", created.Slug, created.ID, created.CurrentDB)
			return nil
		},
	}

	cmd.Flags().StringVar(&slug, "slug", "", "tenant slug (lowercase, hyphenated)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "human-readable tenant name")
	cmd.Flags().IntVar(&year, "year", time.Now().UTC().Year(), "first database year")
	_ = cmd.MarkFlagRequired("slug")

	return cmd
}

func listCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			d, err := wire(ctx, cmd)
			if err != nil {
				return err
			}
			defer d.close()

			var opts tenantsservice.ListOptions
			if status != "" {
				s := tenantsservice.Status(status)
				opts.Status = &s
			}
			tenants, err := d.tenants.List(ctx, opts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLUG\tSTATUS\tCURRENT DB\tDATABASES")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.ID, t.Slug, t.Status, t.CurrentDB, len(t.AllDatabases))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|inactive)")
	return cmd
}

func rotateCommand() *cobra.Command {
	var (
		tenantID string
		year     int
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Provision, migrate, and activate a tenant's next yearly database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			d, err := wire(ctx, cmd)
			if err != nil {
				return err
			}
			defer d.close()
			if d.coordinator == nil {
				return fmt.Errorf("--admin-database-url is required to rotate databases")
			}

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}

			result, err := d.coordinator.Rotate(ctx, id, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rotated %s -> %s\n", result.OldDB, result.NewDB)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant uuid")
	cmd.Flags().IntVar(&year, "year", 0, "target year")
	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func exportCommand() *cobra.Command {
	var (
		tenantID   string
		year       int
		storageDir string
		exportDir  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a tenant's yearly database and files into an archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Minute)
			defer cancel()

			d, err := wire(ctx, cmd)
			if err != nil {
				return err
			}
			defer d.close()

			adminURL, _ := cmd.Flags().GetString("admin-database-url")
			if adminURL == "" {
				return fmt.Errorf("--admin-database-url is required to dump databases")
			}
			adminPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: adminURL, MaxConns: 2})
			if err != nil {
				return fmt.Errorf("connect admin database: %w", err)
			}
			defer persistence.ClosePool(adminPool)

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("parse tenant id: %w", err)
			}

			exporter := exportservice.NewExporter(exportservice.Config{
				Tenants:    d.repo,
				Dumper:     dbops.NewPostgres(adminPool, zap.NewNop()),
				URLFor:     d.urlFor,
				StorageDir: storageDir,
				ExportDir:  exportDir,
			})

			archive, err := exporter.ExportTenant(ctx, id, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", archive.Manifest.Database, archive.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant uuid")
	cmd.Flags().IntVar(&year, "year", 0, "database year to export")
	cmd.Flags().StringVar(&storageDir, "storage-dir", "./.data/storage", "root of tenant file storage")
	cmd.Flags().StringVar(&exportDir, "export-dir", "./.data/exports", "directory receiving the archive")
	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}
