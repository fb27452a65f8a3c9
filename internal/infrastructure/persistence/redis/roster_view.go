package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/shared"
	"github.com/alem-hub/study-group-finder/pkg/circuitbreaker"
	"github.com/alem-hub/study-group-finder/pkg/retry"
)

// Store is the subset of Cache the roster view writes through.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	Publish(ctx context.Context, channel string, message any) error
	Delete(ctx context.Context, keys ...string) error
}

// Source enumerates directories; *registry.Registry satisfies it.
type Source = interface {
	Each(fn func(subject, language string, d *grouping.Directory))
}

// Sweep counter names.
const (
	CounterRuns       = "runs"
	CounterRemoved    = "removed"
	CounterReshuffled = "reshuffled"
	CounterMerges     = "merges"
)

// RosterView keeps a JSON snapshot of every directory in Redis.
//
// Event handlers only mark a directory dirty; snapshots are taken by Flush,
// so a burst of events costs one write per directory. A renamed directory's
// old snapshot is deleted by the next Flush.
type RosterView struct {
	store   Store
	retrier *retry.Retrier
	logger  *slog.Logger
	ttl     time.Duration
	timeout time.Duration

	mu    sync.Mutex
	dirty map[string]struct{}
	stale map[string]struct{}
}

// NewRosterView creates a roster view. A non-positive ttl selects
// TTLRosterSnapshot.
func NewRosterView(store Store, ttl time.Duration, logger *slog.Logger) *RosterView {
	if ttl <= 0 {
		ttl = TTLRosterSnapshot
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "roster_view")

	policy := retry.CachePolicy(IsTransient)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debug("retrying cache write", "attempt", attempt, "delay", delay, "error", err)
	}

	return &RosterView{
		store:   store,
		retrier: retry.New(policy),
		logger:  logger,
		ttl:     ttl,
		timeout: 3 * time.Second,
		dirty:   make(map[string]struct{}),
		stale:   make(map[string]struct{}),
	}
}

// Write stores one directory snapshot.
func (v *RosterView) Write(ctx context.Context, snap grouping.Snapshot) error {
	key := RosterKey(snap.Subject, snap.Language)
	return v.retrier.Do(ctx, func(ctx context.Context) error {
		return v.store.Set(ctx, key, snap, v.ttl)
	})
}

// RecordSweep bumps the sweep counters of the report's directory.
func (v *RosterView) RecordSweep(ctx context.Context, report grouping.SweepReport) error {
	deltas := []struct {
		counter string
		delta   int64
	}{
		{CounterRuns, 1},
		{CounterRemoved, int64(report.Removed())},
		{CounterReshuffled, int64(report.ReshuffledPairs)},
		{CounterMerges, int64(report.Merges)},
	}

	var errs []error
	for _, d := range deltas {
		if d.delta == 0 {
			continue
		}
		key := SweepCounterKey(report.Subject, report.Language, d.counter)
		err := v.retrier.Do(ctx, func(ctx context.Context) error {
			_, err := v.store.IncrBy(ctx, key, d.delta, TTLSweepCounters)
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarkDirty schedules a directory for the next Flush.
func (v *RosterView) MarkDirty(directoryKey string) {
	v.mu.Lock()
	v.dirty[directoryKey] = struct{}{}
	v.mu.Unlock()
}

// markStale schedules the snapshot of a directory key for deletion.
func (v *RosterView) markStale(directoryKey string) {
	v.mu.Lock()
	v.stale[PrefixRoster+directoryKey] = struct{}{}
	v.mu.Unlock()
}

// Pending returns the number of directories waiting for a Flush.
func (v *RosterView) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.dirty)
}

// Flush snapshots and writes every dirty directory of src. With all set,
// every directory is written, refreshing the TTL of idle ones.
// It returns the number of snapshots written.
func (v *RosterView) Flush(ctx context.Context, src Source, all bool) (int, error) {
	v.mu.Lock()
	dirty := v.dirty
	v.dirty = make(map[string]struct{})
	stale := v.stale
	v.stale = make(map[string]struct{})
	v.mu.Unlock()

	var (
		written int
		errs    []error
	)

	if err := v.dropStale(ctx, stale); err != nil {
		errs = append(errs, err)
	}

	src.Each(func(_, _ string, d *grouping.Directory) {
		key := d.Key()
		if _, ok := dirty[key]; !ok && !all {
			return
		}
		delete(dirty, key)

		if err := v.Write(ctx, d.Snapshot()); err != nil {
			errs = append(errs, err)
			v.MarkDirty(key)
			return
		}
		written++
	})

	return written, errors.Join(errs...)
}

func (v *RosterView) dropStale(ctx context.Context, stale map[string]struct{}) error {
	if len(stale) == 0 {
		return nil
	}

	keys := make([]string, 0, len(stale))
	for k := range stale {
		keys = append(keys, k)
	}

	err := v.retrier.Do(ctx, func(ctx context.Context) error {
		return v.store.Delete(ctx, keys...)
	})
	if err != nil {
		v.mu.Lock()
		for _, k := range keys {
			v.stale[k] = struct{}{}
		}
		v.mu.Unlock()
	}
	return err
}

// Handler returns an event bus handler that marks the event's directory
// dirty and relays the event on its pub/sub channel.
func (v *RosterView) Handler() shared.EventHandler {
	return func(event shared.Event) error {
		v.MarkDirty(event.AggregateID())
		if renamed, ok := event.(shared.DirectoryRenamedEvent); ok {
			v.markStale(renamed.PreviousKey)
		}

		ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
		defer cancel()

		message := map[string]any{
			"type":        event.EventType(),
			"directory":   event.AggregateID(),
			"occurred_at": event.OccurredAt(),
			"payload":     event.Payload(),
		}
		if err := v.store.Publish(ctx, PubSubChannel(string(event.EventType())), message); err != nil {
			v.logger.Warn("failed to relay event",
				"event_type", event.EventType(),
				"directory", event.AggregateID(),
				"error", err,
			)
			return err
		}
		return nil
	}
}

// IsTransient reports whether a Redis call may succeed when retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) || circuitbreaker.IsRejection(err) {
		return false
	}
	if errors.Is(err, ErrCacheKeyEmpty) || errors.Is(err, ErrCacheNilValue) ||
		errors.Is(err, ErrCacheInvalidTTL) || errors.Is(err, ErrCacheSerialization) {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
