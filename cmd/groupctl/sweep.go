package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-group-finder/config"
	"github.com/alem-hub/study-group-finder/internal/app"
	"github.com/alem-hub/study-group-finder/internal/demo"
	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/redis"
)

type sweepResult struct {
	Report   grouping.SweepReport `json:"report"`
	Snapshot grouping.Snapshot    `json:"snapshot"`
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Form the demo groups, rate them and run one maintenance sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, _ := cmd.Flags().GetUint64("seed")
			rating, _ := cmd.Flags().GetFloat64("rating")
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			publish, _ := cmd.Flags().GetBool("publish")

			reg := app.NewRegistry(app.EngineOptions{
				Logger:             logger(cmd),
				Seed:               seed,
				LowRatingThreshold: threshold,
			})
			dir, err := demo.Prepare(reg)
			if err != nil {
				return err
			}
			for _, g := range dir.FormAll() {
				if err := dir.RecordSessionRating(g.ID, rating); err != nil {
					return err
				}
			}

			res := sweepResult{Report: dir.RunMaintenanceSweep(), Snapshot: dir.Snapshot()}
			if publish {
				if err := publishSweep(cmd.Context(), res); err != nil {
					return err
				}
			}
			return printJSON(cmd, res)
		},
	}

	cmd.Flags().Uint64("seed", 1, "Reshuffle seed (0 seeds from the clock)")
	cmd.Flags().Float64("rating", 1.5, "Session rating given to every formed group")
	cmd.Flags().Float64("threshold", grouping.DefaultLowRatingThreshold, "Average rating below which full groups are swept")
	cmd.Flags().Bool("publish", false, "Write the snapshot and sweep counters to Redis")
	return cmd
}

func publishSweep(ctx context.Context, res sweepResult) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Redis.Disabled {
		return errors.New("redis is disabled (REDIS_DISABLED)")
	}

	cache, err := redis.NewCache(app.RedisConfig(cfg.Redis))
	if err != nil {
		return err
	}
	defer cache.Close()

	view := redis.NewRosterView(cache, cfg.Grouping.SnapshotTTL, nil)
	if err := view.Write(ctx, res.Snapshot); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return view.RecordSweep(ctx, res.Report)
}
