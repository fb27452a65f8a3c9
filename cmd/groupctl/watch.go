package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-group-finder/internal/domain/shared"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/redis"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream events relayed to Redis pub/sub until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			channels := make([]string, 0, len(shared.EventTypes))
			for _, t := range shared.EventTypes {
				channels = append(channels, redis.PubSubChannel(string(t)))
			}

			ctx := cmd.Context()
			sub := cache.Subscribe(ctx, channels...)
			defer sub.Close()

			msgs := sub.Channel()
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-msgs:
					if !ok {
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", msg.Channel, msg.Payload)
				}
			}
		},
	}
}
