// Command migrate applies the loam schema migrations.
package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/loam/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const envDSN = "LOAM_DB_DSN"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string

	open := func() (*migrate.Migrate, error) {
		url, err := resolveDSN(dsn)
		if err != nil {
			return nil, err
		}
		source, err := iofs.New(migrations, "migrations")
		if err != nil {
			return nil, fmt.Errorf("create migration source: %w", err)
		}
		m, err := migrate.NewWithSourceInstance("iofs", source, url)
		if err != nil {
			return nil, fmt.Errorf("create migrator: %w", err)
		}
		return m, nil
	}

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply loam database migrations",
		Long:         "The connection string comes from --dsn, then " + envDSN + ", then the loam configuration files.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "database connection string")

	run := func(use, short string, args cobra.PositionalArgs, fn func(*cobra.Command, *migrate.Migrate, []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, a []string) error {
				m, err := open()
				if err != nil {
					return err
				}
				defer m.Close()
				return fn(cmd, m, a)
			},
		}
	}

	root.AddCommand(
		run("up", "Apply all pending migrations", cobra.NoArgs, func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			if err := ignoreNoChange(m.Up()); err != nil {
				return fmt.Errorf("up: %w", err)
			}
			cmd.Println("migrations applied")
			return nil
		}),
		run("down", "Revert all migrations", cobra.NoArgs, func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			if err := ignoreNoChange(m.Down()); err != nil {
				return fmt.Errorf("down: %w", err)
			}
			cmd.Println("migrations reverted")
			return nil
		}),
		run("steps N", "Apply N migrations (negative reverts)", cobra.ExactArgs(1), func(cmd *cobra.Command, m *migrate.Migrate, a []string) error {
			var n int
			if _, err := fmt.Sscan(a[0], &n); err != nil || n == 0 {
				return fmt.Errorf("invalid step count %q", a[0])
			}
			if err := ignoreNoChange(m.Steps(n)); err != nil {
				return fmt.Errorf("steps: %w", err)
			}
			cmd.Printf("applied %d migration steps\n", n)
			return nil
		}),
		run("version", "Print the current schema version", cobra.NoArgs, func(cmd *cobra.Command, m *migrate.Migrate, _ []string) error {
			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("version: none")
				return nil
			}
			if err != nil {
				return fmt.Errorf("version: %w", err)
			}
			cmd.Printf("version: %d, dirty: %v\n", v, dirty)
			return nil
		}),
		run("force V", "Force the schema version without migrating", cobra.ExactArgs(1), func(cmd *cobra.Command, m *migrate.Migrate, a []string) error {
			var v int
			if _, err := fmt.Sscan(a[0], &v); err != nil {
				return fmt.Errorf("invalid version %q", a[0])
			}
			if err := m.Force(v); err != nil {
				return fmt.Errorf("force: %w", err)
			}
			cmd.Printf("forced to version %d\n", v)
			return nil
		}),
	)
	return root
}

func resolveDSN(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv(envDSN); v != "" {
		return v, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("no --dsn or %s; load config: %w", envDSN, err)
	}
	return cfg.Database.URL(), nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
