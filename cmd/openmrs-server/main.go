package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openmrs/openmrs-api/internal/config"
	"github.com/openmrs/openmrs-api/internal/domain/admin"
	"github.com/openmrs/openmrs-api/internal/platform/dataset"
	"github.com/openmrs/openmrs-api/internal/platform/db"
	"github.com/openmrs/openmrs-api/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "openmrs-server",
		Short:        "OpenMRS medical record API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tenantCmd())
	root.AddCommand(datasetCmd())
	return root
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// migrator reads dir when given and the embedded migrations otherwise.
func migrator(pool *pgxpool.Pool, dir string) *db.Migrator {
	if dir != "" {
		return db.NewDirMigrator(pool, dir)
	}
	return db.NewMigrator(pool, migrations.FS)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, newLogger(cfg.Env, os.Stdout))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)
			count, err := migrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	up.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	up.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(up)

	status := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	status.Flags().String("schema", db.SchemaName("default"), "Target schema for migrations")
	status.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(status)

	return cmd
}

func printStatus(out io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		state := "pending"
		appliedAt := ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, state, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create and migrate a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !db.ValidTenantID(name) {
				return fmt.Errorf("invalid tenant name %q: use letters, digits and underscores", name)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created successfully.")
			return nil
		},
	}
	create.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(create)
	return cmd
}

func datasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage fixture datasets",
	}

	load := &cobra.Command{
		Use:   "load",
		Short: "Load a YAML dataset into a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			tenant, _ := cmd.Flags().GetString("tenant")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			logger := newLogger(cfg.Env, os.Stderr)

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open dataset: %w", err)
			}
			defer f.Close()

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			conn, err := db.AcquireTenant(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer conn.Release()
			ctx = db.WithConn(ctx, tenant, conn)

			a := newApp(pool, cfg, admin.NewInMemoryPropertyCache(cfg.GPCacheTTL), logger)
			counts, err := dataset.NewLoader(a.datasetServices(), logger).Load(ctx, f)
			if err != nil {
				return err
			}
			for _, section := range slices.Sorted(maps.Keys(counts)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", section, counts[section])
			}
			return nil
		},
	}
	load.Flags().String("file", "", "Path to the YAML dataset")
	load.Flags().String("tenant", "", "Tenant to load into (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(load)
	return cmd
}
