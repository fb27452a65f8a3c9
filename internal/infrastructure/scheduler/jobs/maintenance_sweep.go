// Package jobs contains the scheduled jobs of the study group worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
)

// Source enumerates every group directory; *registry.Registry satisfies it.
type Source = interface {
	Each(fn func(subject, language string, d *grouping.Directory))
}

// SweepSink stores sweep reports (audit log, counters).
type SweepSink interface {
	RecordSweep(ctx context.Context, report grouping.SweepReport) error
}

// RosterFlusher writes directory snapshots for read-side consumers.
type RosterFlusher interface {
	Flush(ctx context.Context, src Source, all bool) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// MaintenanceSweepJob runs the maintenance sweep of every directory, hands
// the reports to the sinks and rewrites every roster snapshot.
type MaintenanceSweepJob struct {
	source Source
	sinks  []SweepSink
	roster RosterFlusher
	logger *slog.Logger

	lastStats atomic.Pointer[SweepStats]
}

// SweepStats aggregates one run over all directories.
type SweepStats struct {
	StartedAt       time.Time
	Duration        time.Duration
	Directories     int
	RemovedGroups   int
	ReshuffledPairs int
	Merges          int
	SinkErrors      int
	Reports         []grouping.SweepReport
}

// NewMaintenanceSweepJob creates the job. roster may be nil; nil sinks are
// skipped.
func NewMaintenanceSweepJob(source Source, roster RosterFlusher, logger *slog.Logger, sinks ...SweepSink) *MaintenanceSweepJob {
	if logger == nil {
		logger = slog.Default()
	}

	kept := make([]SweepSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}

	return &MaintenanceSweepJob{
		source: source,
		sinks:  kept,
		roster: roster,
		logger: logger.With("job", "maintenance_sweep"),
	}
}

// Name returns the job name.
func (j *MaintenanceSweepJob) Name() string {
	return "maintenance_sweep"
}

// Description returns a human-readable description.
func (j *MaintenanceSweepJob) Description() string {
	return "Vacates or reshuffles low-rated full groups and merges partial ones"
}

// LastStats returns the stats of the latest completed run, or nil.
func (j *MaintenanceSweepJob) LastStats() *SweepStats {
	return j.lastStats.Load()
}

// Run sweeps every directory. Sink failures are counted and reported but do
// not stop the remaining directories.
func (j *MaintenanceSweepJob) Run(ctx context.Context) error {
	stats := &SweepStats{StartedAt: time.Now()}
	var errs []error

	j.source.Each(func(subject, language string, d *grouping.Directory) {
		if ctx.Err() != nil {
			return
		}

		report := d.RunMaintenanceSweep()
		stats.Directories++
		stats.RemovedGroups += report.Removed()
		stats.ReshuffledPairs += report.ReshuffledPairs
		stats.Merges += report.Merges
		stats.Reports = append(stats.Reports, report)

		for _, sink := range j.sinks {
			if err := sink.RecordSweep(ctx, report); err != nil {
				stats.SinkErrors++
				errs = append(errs, fmt.Errorf("%s/%s: %w", subject, language, err))
			}
		}
	})

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	if j.roster != nil && ctx.Err() == nil {
		if n, err := j.roster.Flush(ctx, j.source, true); err != nil {
			errs = append(errs, fmt.Errorf("roster flush: %w", err))
		} else if n > 0 {
			j.logger.Debug("roster snapshots written", "count", n)
		}
	}

	stats.Duration = time.Since(stats.StartedAt)
	j.lastStats.Store(stats)

	j.logger.Info("maintenance sweep finished",
		"directories", stats.Directories,
		"removed_groups", stats.RemovedGroups,
		"reshuffled_pairs", stats.ReshuffledPairs,
		"merges", stats.Merges,
		"sink_errors", stats.SinkErrors,
		"duration", stats.Duration.String(),
	)

	return errors.Join(errs...)
}
