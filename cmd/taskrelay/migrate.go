package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Strob0t/taskrelay/internal/adapter/postgres"
	"github.com/Strob0t/taskrelay/internal/config"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var dsn string

	loadDSN := func() (string, error) {
		if dsn != "" {
			return dsn, nil
		}
		cfg, err := config.LoadFrom(*configPath)
		if err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		if cfg.Postgres.DSN == "" {
			return "", fmt.Errorf("postgres.dsn is not set")
		}
		return cfg.Postgres.DSN, nil
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL slot schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (defaults to postgres.dsn)")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDSN()
			if err != nil {
				return err
			}
			if err := postgres.RunMigrations(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be >= 1")
			}
			d, err := loadDSN()
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigrations(cmd.Context(), d, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDSN()
			if err != nil {
				return err
			}
			v, err := postgres.MigrationVersion(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	cmd.AddCommand(up, down, versionCmd)
	return cmd
}
