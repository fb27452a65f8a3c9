package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-group-finder/internal/app"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "groupctl",
		Short:         "Study group engine tools",
		Long:          "groupctl forms, rebalances and inspects study groups of 2 high, 3 mid and 2 low scoring students.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("compact", false, "Print JSON without indentation")

	root.AddCommand(newDemoCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newRosterCmd())
	root.AddCommand(newWatchCmd())

	return root
}

// logger writes to stderr so stdout stays valid JSON.
func logger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return app.NewLogger(cmd.ErrOrStderr(), level, "text", false)
}

func printJSON(cmd *cobra.Command, v any) error {
	compact, _ := cmd.Flags().GetBool("compact")
	return writeJSON(cmd.OutOrStdout(), v, !compact)
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
