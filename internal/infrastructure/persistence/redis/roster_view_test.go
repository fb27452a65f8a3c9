package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/registry"
	"github.com/alem-hub/study-group-finder/internal/domain/shared"
	"github.com/alem-hub/study-group-finder/internal/domain/student"
	"github.com/alem-hub/study-group-finder/pkg/circuitbreaker"
)

// fakeStore keeps values in memory, encoded the way Cache encodes them.
type fakeStore struct {
	values    map[string][]byte
	ttls      map[string]time.Duration
	counters  map[string]int64
	published map[string][]byte
	setErrs   []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:    make(map[string][]byte),
		ttls:      make(map[string]time.Duration),
		counters:  make(map[string]int64),
		published: make(map[string][]byte),
	}
}

func (s *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		return err
	}
	data, err := encode(key, value, ttl)
	if err != nil {
		return err
	}
	s.values[key] = data
	s.ttls[key] = ttl
	return nil
}

func (s *fakeStore) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.counters[key] += delta
	s.ttls[key] = ttl
	return s.counters[key], nil
}

func (s *fakeStore) Publish(_ context.Context, channel string, message any) error {
	data, err := encode(channel, message, 0)
	if err != nil {
		return err
	}
	s.published[channel] = data
	return nil
}

func (s *fakeStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.values, k)
		delete(s.ttls, k)
	}
	return nil
}

// handlerPublisher delivers directory events straight to a handler.
type handlerPublisher shared.EventHandler

func (h handlerPublisher) Publish(event shared.Event) error {
	return h(event)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) (*registry.Registry, *grouping.Directory) {
	t.Helper()
	reg := registry.New(func(subject, language string) *grouping.Directory {
		return grouping.NewDirectory(subject, language,
			grouping.WithShuffler(grouping.IdentityShuffler()),
			grouping.WithLogger(quietLogger()),
		)
	})
	require.NoError(t, reg.AddSubject("CS101"))
	dir, err := reg.AddLanguage("CS101", "English")
	require.NoError(t, err)
	_, err = reg.AddLanguage("CS101", "Kazakh")
	require.NoError(t, err)
	return reg, dir
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "roster:CS101:English", RosterKey("CS101", "English"))
	assert.Equal(t, "sweep:CS101:English:merges", SweepCounterKey("CS101", "English", CounterMerges))
	assert.Equal(t, "pubsub:group.formed", PubSubChannel(string(shared.EventGroupFormed)))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

func TestEncode_Validation(t *testing.T) {
	_, err := encode("", 1, 0)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)

	_, err = encode("k", nil, 0)
	assert.ErrorIs(t, err, ErrCacheNilValue)

	_, err = encode("k", 1, -time.Second)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)

	_, err = encode("k", make(chan int), 0)
	assert.ErrorIs(t, err, ErrCacheSerialization)
}

func TestRosterView_WriteStoresSnapshot(t *testing.T) {
	store := newFakeStore()
	view := NewRosterView(store, 0, quietLogger())

	_, dir := newTestRegistry(t)
	for i, score := range []float64{90, 85, 70, 65, 60, 30, 30} {
		require.NoError(t, dir.Enqueue(student.MustNewRecord(i+1, "s", score, "English")))
	}
	_, err := dir.FormGroup()
	require.NoError(t, err)

	require.NoError(t, view.Write(context.Background(), dir.Snapshot()))

	raw, ok := store.values["roster:CS101:English"]
	require.True(t, ok)
	assert.Equal(t, TTLRosterSnapshot, store.ttls["roster:CS101:English"])

	var snap grouping.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, grouping.Quota, snap.Groups[0].Composition)
	assert.Equal(t, 1, snap.ActiveGroups())
}

func TestRosterView_WriteRetriesTransientErrors(t *testing.T) {
	store := newFakeStore()
	store.setErrs = []error{io.EOF}
	view := NewRosterView(store, time.Minute, quietLogger())

	require.NoError(t, view.Write(context.Background(), grouping.Snapshot{Subject: "A", Language: "B"}))
	assert.Contains(t, store.values, "roster:A:B")
}

func TestRosterView_RecordSweep(t *testing.T) {
	store := newFakeStore()
	view := NewRosterView(store, 0, quietLogger())

	report := grouping.SweepReport{
		Subject:         "CS101",
		Language:        "English",
		RemovedGroups:   []int{1, 4},
		ReshuffledPairs: 0,
		Merges:          1,
	}
	require.NoError(t, view.RecordSweep(context.Background(), report))
	require.NoError(t, view.RecordSweep(context.Background(), report))

	assert.Equal(t, int64(2), store.counters["sweep:CS101:English:runs"])
	assert.Equal(t, int64(4), store.counters["sweep:CS101:English:removed"])
	assert.Equal(t, int64(2), store.counters["sweep:CS101:English:merges"])
	assert.NotContains(t, store.counters, "sweep:CS101:English:reshuffled")
	assert.Equal(t, TTLSweepCounters, store.ttls["sweep:CS101:English:runs"])
}

func TestRosterView_HandlerMarksDirtyAndFlushWritesOnlyDirty(t *testing.T) {
	store := newFakeStore()
	view := NewRosterView(store, 0, quietLogger())
	reg, dir := newTestRegistry(t)

	event := shared.NewGroupVacatedEvent(dir.Key(), 1, shared.VacateRemoved, 7)
	require.NoError(t, view.Handler()(event))
	assert.Equal(t, 1, view.Pending())
	assert.Contains(t, store.published, "pubsub:group.vacated")

	n, err := view.Flush(context.Background(), reg, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, store.values, "roster:CS101:English")
	assert.NotContains(t, store.values, "roster:CS101:Kazakh")
	assert.Zero(t, view.Pending())

	n, err = view.Flush(context.Background(), reg, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, store.values, "roster:CS101:Kazakh")
}

func TestRosterView_RenameReplacesSnapshot(t *testing.T) {
	store := newFakeStore()
	view := NewRosterView(store, 0, quietLogger())

	reg := registry.New(func(subject, language string) *grouping.Directory {
		return grouping.NewDirectory(subject, language,
			grouping.WithShuffler(grouping.IdentityShuffler()),
			grouping.WithLogger(quietLogger()),
			grouping.WithPublisher(handlerPublisher(view.Handler())),
		)
	})
	require.NoError(t, reg.AddSubject("CS101"))
	_, err := reg.AddLanguage("CS101", "English")
	require.NoError(t, err)

	_, err = view.Flush(context.Background(), reg, true)
	require.NoError(t, err)
	require.Contains(t, store.values, "roster:CS101:English")

	require.NoError(t, reg.RenameSubject("CS101", "EC234"))
	assert.Contains(t, store.published, "pubsub:directory.renamed")
	assert.Equal(t, 1, view.Pending())

	n, err := view.Flush(context.Background(), reg, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, store.values, "roster:CS101:English")
	assert.Contains(t, store.values, "roster:EC234:English")

	var snap grouping.Snapshot
	require.NoError(t, json.Unmarshal(store.values["roster:EC234:English"], &snap))
	assert.Equal(t, "EC234", snap.Subject)
}

func TestRosterView_FailedFlushStaysDirty(t *testing.T) {
	store := newFakeStore()
	store.setErrs = []error{errors.New("readonly"), errors.New("readonly")}
	view := NewRosterView(store, 0, quietLogger())
	reg, dir := newTestRegistry(t)

	view.MarkDirty(dir.Key())
	n, err := view.Flush(context.Background(), reg, false)
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, view.Pending())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(redis.Nil))
	assert.False(t, IsTransient(ErrCacheSerialization))
	assert.True(t, IsTransient(io.EOF))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsTransient(errors.New("WRONGTYPE")))
	assert.False(t, IsTransient(circuitbreaker.ErrCircuitOpen))
}

func TestGuardedStore_FailsFastWhenOpen(t *testing.T) {
	store := newFakeStore()
	store.setErrs = []error{io.EOF, io.EOF, io.EOF}
	guarded := NewGuardedStore(store, circuitbreaker.New("redis",
		circuitbreaker.WithFailureThreshold(3),
		circuitbreaker.WithTimeout(time.Minute),
		circuitbreaker.WithIsFailure(IsTransient),
	))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, guarded.Set(ctx, "k", 1, time.Minute), io.EOF)
	}
	assert.ErrorIs(t, guarded.Set(ctx, "k", 1, time.Minute), circuitbreaker.ErrCircuitOpen)
	_, err := guarded.IncrBy(ctx, "c", 1, time.Minute)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Empty(t, store.values)
	assert.Empty(t, store.counters)
}
