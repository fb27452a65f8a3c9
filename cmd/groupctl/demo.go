package main

import (
	"github.com/spf13/cobra"

	"github.com/alem-hub/study-group-finder/internal/app"
	"github.com/alem-hub/study-group-finder/internal/demo"
)

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the scripted CS101 session and print every step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, _ := cmd.Flags().GetUint64("seed")

			reg := app.NewRegistry(app.EngineOptions{
				Logger: logger(cmd),
				Seed:   seed,
			})
			steps, err := demo.Run(reg)
			if err != nil {
				return err
			}
			return printJSON(cmd, steps)
		},
	}

	cmd.Flags().Uint64("seed", 1, "Reshuffle seed (0 seeds from the clock)")
	return cmd
}
