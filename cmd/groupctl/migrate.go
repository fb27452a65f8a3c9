package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-group-finder/config"
	"github.com/alem-hub/study-group-finder/internal/app"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/postgres"
)

var errNoDatabase = errors.New("no database configured (DATABASE_URL)")

func openDatabase(ctx context.Context) (*postgres.Connection, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errNoDatabase
	}
	return postgres.NewConnectionFromURL(ctx, cfg.Database.URL, app.PoolOptions(cfg.Database))
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending audit log migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			m := postgres.NewMigrator(conn)
			applied, err := m.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return printStatus(cmd, m)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			return printStatus(cmd, postgres.NewMigrator(conn))
		},
	})

	return cmd
}

func printStatus(cmd *cobra.Command, m *postgres.Migrator) error {
	status, err := m.Status(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, mg := range status {
		applied := "-"
		if mg.IsApplied {
			applied = mg.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", mg.Version, mg.Name, applied)
	}
	return w.Flush()
}
