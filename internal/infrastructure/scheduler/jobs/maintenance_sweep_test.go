package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/registry"
	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

type sinkFunc func(ctx context.Context, report grouping.SweepReport) error

func (f sinkFunc) RecordSweep(ctx context.Context, report grouping.SweepReport) error {
	return f(ctx, report)
}

type fakeFlusher struct {
	calls []bool
	err   error
}

func (f *fakeFlusher) Flush(_ context.Context, src Source, all bool) (int, error) {
	f.calls = append(f.calls, all)
	n := 0
	src.Each(func(string, string, *grouping.Directory) { n++ })
	return n, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newSkewedRegistry returns a registry with one directory holding a full
// group that is off quota and rated below the threshold.
func newSkewedRegistry(t *testing.T) *registry.Registry {
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

	gid := dir.CreateGroup()
	for i := 1; i <= grouping.GroupSize; i++ {
		require.NoError(t, dir.AssignMember(gid, student.MustNewRecord(i, "s", 90, "English")))
	}
	require.NoError(t, dir.RecordSessionRating(gid, 1))
	return reg
}

func TestMaintenanceSweepJob_Run(t *testing.T) {
	reg := newSkewedRegistry(t)

	var reports []grouping.SweepReport
	sink := sinkFunc(func(_ context.Context, r grouping.SweepReport) error {
		reports = append(reports, r)
		return nil
	})
	flusher := &fakeFlusher{}

	job := NewMaintenanceSweepJob(reg, flusher, quietLogger(), sink, nil)
	assert.Equal(t, "maintenance_sweep", job.Name())
	assert.Nil(t, job.LastStats())

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, reports, 2)
	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Directories)
	assert.Equal(t, 1, stats.RemovedGroups)
	assert.Equal(t, []bool{true}, flusher.calls)

	dir, err := reg.Directory("CS101", "English")
	require.NoError(t, err)
	groups := dir.Groups()
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Vacant())
}

func TestMaintenanceSweepJob_SinkErrorsDoNotStopOtherDirectories(t *testing.T) {
	reg := newSkewedRegistry(t)
	boom := errors.New("db down")

	calls := 0
	sink := sinkFunc(func(context.Context, grouping.SweepReport) error {
		calls++
		return boom
	})

	job := NewMaintenanceSweepJob(reg, nil, quietLogger(), sink)
	err := job.Run(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, job.LastStats().SinkErrors)
}

func TestMaintenanceSweepJob_CancelledContext(t *testing.T) {
	reg := newSkewedRegistry(t)
	flusher := &fakeFlusher{}
	job := NewMaintenanceSweepJob(reg, flusher, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, job.LastStats().Directories)
	assert.Empty(t, flusher.calls)
}

func TestRosterFlushJob_Run(t *testing.T) {
	reg := newSkewedRegistry(t)
	flusher := &fakeFlusher{err: errors.New("readonly")}
	job := NewRosterFlushJob(reg, flusher, quietLogger())

	assert.Equal(t, "roster_flush", job.Name())
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, []bool{false}, flusher.calls)
}
