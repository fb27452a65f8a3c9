package app

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/alem-hub/study-group-finder/config"
	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/registry"
	"github.com/alem-hub/study-group-finder/internal/domain/shared"
)

// EngineOptions is shared by every directory the registry creates.
type EngineOptions struct {
	Publisher shared.EventPublisher
	Metrics   grouping.Recorder
	Logger    *slog.Logger

	// LowRatingThreshold of 0 keeps grouping.DefaultLowRatingThreshold.
	LowRatingThreshold float64

	// Seed 0 seeds every directory from the clock. Otherwise each directory
	// derives its own stream from Seed and its key.
	Seed uint64

	// Shuffler, when set, is used by every directory and Seed is ignored.
	Shuffler grouping.Shuffler
}

// NewRegistry returns a registry whose factory applies o to each new directory.
func NewRegistry(o EngineOptions) *registry.Registry {
	return registry.New(func(subject, language string) *grouping.Directory {
		opts := []grouping.Option{
			grouping.WithShuffler(o.shuffler(subject, language)),
			grouping.WithMetrics(o.Metrics),
			grouping.WithLogger(o.Logger),
			grouping.WithCorrelationIDs(uuid.NewString),
		}
		if o.Publisher != nil {
			opts = append(opts, grouping.WithPublisher(o.Publisher))
		}
		if o.LowRatingThreshold > 0 {
			opts = append(opts, grouping.WithLowRatingThreshold(o.LowRatingThreshold))
		}
		return grouping.NewDirectory(subject, language, opts...)
	})
}

func (o EngineOptions) shuffler(subject, language string) grouping.Shuffler {
	if o.Shuffler != nil {
		return o.Shuffler
	}
	if o.Seed == 0 {
		return grouping.NewSeededShuffler(0)
	}

	seed := xxh3.HashStringSeed(subject+":"+language, o.Seed)
	if seed == 0 {
		seed = o.Seed
	}
	return grouping.NewSeededShuffler(seed)
}

// SeedDirectories registers every "subject:language" pair.
func SeedDirectories(reg *registry.Registry, pairs []string) error {
	for _, pair := range pairs {
		subject, language, err := config.SplitDirectory(pair)
		if err != nil {
			return err
		}
		if _, err := reg.Ensure(subject, language); err != nil {
			return fmt.Errorf("register %s: %w", pair, err)
		}
	}
	return nil
}
