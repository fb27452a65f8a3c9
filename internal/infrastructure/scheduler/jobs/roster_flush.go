package jobs

import (
	"context"
	"log/slog"
)

// RosterFlushJobName is the scheduler name of RosterFlushJob.
const RosterFlushJobName = "roster_flush"

// RosterFlushJob writes the snapshots of directories that changed since the
// previous flush.
type RosterFlushJob struct {
	source Source
	roster RosterFlusher
	logger *slog.Logger
}

// NewRosterFlushJob creates the job.
func NewRosterFlushJob(source Source, roster RosterFlusher, logger *slog.Logger) *RosterFlushJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosterFlushJob{
		source: source,
		roster: roster,
		logger: logger.With("job", RosterFlushJobName),
	}
}

// Name returns the job name.
func (j *RosterFlushJob) Name() string {
	return RosterFlushJobName
}

// Description returns a human-readable description.
func (j *RosterFlushJob) Description() string {
	return "Publishes snapshots of changed group directories"
}

// Run flushes dirty directories.
func (j *RosterFlushJob) Run(ctx context.Context) error {
	n, err := j.roster.Flush(ctx, j.source, false)
	if n > 0 {
		j.logger.Debug("roster snapshots written", "count", n)
	}
	return err
}
