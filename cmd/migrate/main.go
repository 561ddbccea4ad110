// Command migrate applies the embedded schema migrations to the MRV database.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/mrv/migrations"
	"github.com/JaimeStill/mrv/pkg/database"
)

const envDSN = "MRV_DB_DSN"

// defaultDSN builds a connection URL from the MRV_DB_* variables the server
// reads, falling back to the local development database.
func defaultDSN() string {
	var cfg database.Config
	err := cfg.Finalize(&database.Env{
		Host:     "MRV_DB_HOST",
		Port:     "MRV_DB_PORT",
		Name:     "MRV_DB_NAME",
		User:     "MRV_DB_USER",
		Password: "MRV_DB_PASSWORD",
		SSLMode:  "MRV_DB_SSL_MODE",
	})
	if err != nil {
		return ""
	}
	return cfg.URL()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	dsn := os.Getenv(envDSN)
	if dsn == "" {
		dsn = defaultDSN()
	}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the MRV database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", dsn, "database connection string (env "+envDSN+")")

	withMigrator := func(run func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			source, err := iofs.New(migrations.FS, ".")
			if err != nil {
				return fmt.Errorf("migration source: %w", err)
			}
			m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
			if err != nil {
				return fmt.Errorf("migrator: %w", err)
			}
			defer m.Close()
			return run(m, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up [steps]",
			Short: "Apply all pending migrations, or the given number",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
				return step(m, args, m.Up, 1)
			}),
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Revert all migrations, or the given number",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
				return step(m, args, m.Down, -1)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migrate.Migrate, _ []string) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty: %v)\n", v, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				if err := m.Force(v); err != nil {
					return err
				}
				fmt.Printf("forced version %d\n", v)
				return nil
			}),
		},
	)
	return root
}

// step runs all when args is empty, otherwise sign*N steps.
func step(m *migrate.Migrate, args []string, all func() error, sign int) error {
	var err error
	if len(args) == 0 {
		err = all()
	} else {
		n, convErr := strconv.Atoi(args[0])
		if convErr != nil || n <= 0 {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		err = m.Steps(sign * n)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("schema already current")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("migrations complete")
	return nil
}
