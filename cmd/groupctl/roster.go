package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-group-finder/config"
	"github.com/alem-hub/study-group-finder/internal/app"
	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/redis"
)

func openCache() (*redis.Cache, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Redis.Disabled {
		return nil, errors.New("redis is disabled (REDIS_DISABLED)")
	}
	return redis.NewCache(app.RedisConfig(cfg.Redis))
}

func newRosterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster <subject> <language>",
		Short: "Print the roster snapshot published to Redis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			del, _ := cmd.Flags().GetBool("delete")

			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			key := redis.RosterKey(args[0], args[1])
			if del {
				if err := cache.Delete(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", key)
				return nil
			}

			var snap grouping.Snapshot
			if err := cache.Get(cmd.Context(), key, &snap); err != nil {
				if errors.Is(err, redis.ErrCacheMiss) {
					return fmt.Errorf("no snapshot at %s", key)
				}
				return err
			}
			return printJSON(cmd, snap)
		},
	}

	cmd.Flags().Bool("delete", false, "Remove the snapshot instead of printing it")
	return cmd
}
