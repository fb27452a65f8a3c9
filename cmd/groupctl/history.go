package main

import (
	"github.com/spf13/cobra"

	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/postgres"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <subject> <language>",
		Short: "Print the latest audit log events of a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			conn, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			events, err := postgres.NewEventLog(conn, logger(cmd)).Recent(cmd.Context(), args[0]+":"+args[1], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		},
	}

	cmd.Flags().Int("limit", 20, "Number of events")
	return cmd
}
