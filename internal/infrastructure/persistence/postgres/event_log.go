package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/shared"
	"github.com/alem-hub/study-group-finder/pkg/retry"
)

// EventLog appends directory events and sweep reports to the audit tables.
type EventLog struct {
	db      Querier
	retrier *retry.Retrier
	logger  *slog.Logger
	timeout time.Duration
}

// NewEventLog creates an audit log writing through db.
func NewEventLog(db Querier, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "event_log")

	policy := retry.DatabasePolicy(IsTransient)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debug("retrying audit write", "attempt", attempt, "delay", delay, "error", err)
	}

	return &EventLog{
		db:      db,
		retrier: retry.New(policy),
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

const insertEventSQL = `
	INSERT INTO group_events (id, event_type, directory_key, correlation_id, payload, occurred_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	ON CONFLICT (id) DO NOTHING
`

// Append stores one event envelope. Retried writes are idempotent on the id.
func (l *EventLog) Append(ctx context.Context, env shared.EventEnvelope) error {
	id, err := uuid.Parse(env.ID)
	if err != nil {
		return fmt.Errorf("postgres: invalid event id %q: %w", env.ID, err)
	}

	return l.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := l.db.Exec(ctx, insertEventSQL,
			id, string(env.Type), env.AggregateID, env.CorrelationID, []byte(env.Payload), env.Timestamp,
		)
		return err
	})
}

const insertSweepSQL = `
	INSERT INTO sweep_runs (id, subject, language, started_at, duration_ms, removed_groups, reshuffled_pairs, merges)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
`

// RecordSweep stores a sweep report. Reports without an id get a fresh one.
func (l *EventLog) RecordSweep(ctx context.Context, report grouping.SweepReport) error {
	id, err := uuid.Parse(report.ID)
	if err != nil {
		id = uuid.New()
	}

	removed := make([]int32, 0, len(report.RemovedGroups))
	for _, g := range report.RemovedGroups {
		removed = append(removed, int32(g))
	}

	return l.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := l.db.Exec(ctx, insertSweepSQL,
			id, report.Subject, report.Language, report.StartedAt,
			report.Duration.Milliseconds(), removed, report.ReshuffledPairs, report.Merges,
		)
		return err
	})
}

// Handler returns an event bus handler that appends every event.
// Failures are logged and swallowed: the audit log never blocks the engine.
func (l *EventLog) Handler() shared.EventHandler {
	return func(event shared.Event) error {
		env, err := shared.NewEnvelope(uuid.NewString(), event)
		if err != nil {
			return fmt.Errorf("postgres: encode event: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if err := l.Append(ctx, env); err != nil {
			l.logger.Warn("failed to append event",
				"event_type", env.Type,
				"directory", env.AggregateID,
				"error", err,
			)
			return err
		}
		return nil
	}
}

const recentEventsSQL = `
	SELECT id, event_type, directory_key, COALESCE(correlation_id, ''), payload, occurred_at
	FROM group_events
	WHERE directory_key = $1
	ORDER BY occurred_at DESC
	LIMIT $2
`

// Recent returns the latest events of one directory, newest first.
func (l *EventLog) Recent(ctx context.Context, directoryKey string, limit int) ([]shared.EventEnvelope, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.Query(ctx, recentEventsSQL, directoryKey, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query recent events: %w", err)
	}
	defer rows.Close()

	var out []shared.EventEnvelope
	for rows.Next() {
		var (
			id        uuid.UUID
			eventType string
			env       shared.EventEnvelope
			payload   []byte
		)
		if err := rows.Scan(&id, &eventType, &env.AggregateID, &env.CorrelationID, &payload, &env.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		env.ID = id.String()
		env.Type = shared.EventType(eventType)
		env.Version = 1
		env.Payload = payload
		out = append(out, env)
	}

	return out, rows.Err()
}
