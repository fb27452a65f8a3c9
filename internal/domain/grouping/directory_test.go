package grouping

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-group-finder/internal/domain/shared"
	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// lockCheckingPublisher records whether the directory lock was held while an
// event was delivered, and reads the directory from inside Publish.
type lockCheckingPublisher struct {
	recordingPublisher
	d          *Directory
	heldDuring []shared.EventType
	groupsSeen []int
}

func (p *lockCheckingPublisher) Publish(event shared.Event) error {
	if !p.d.mu.TryLock() {
		p.heldDuring = append(p.heldDuring, event.EventType())
	} else {
		p.d.mu.Unlock()
		p.groupsSeen = append(p.groupsSeen, len(p.d.Groups()))
	}
	return p.recordingPublisher.Publish(event)
}

func newTestDirectory(t *testing.T, opts ...Option) *Directory {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithShuffler(IdentityShuffler()),
	}
	return NewDirectory("CS101", "English", append(base, opts...)...)
}

// enqueueBatch enqueues records with consecutive ids starting at first.
func enqueueBatch(t *testing.T, d *Directory, first int, scores ...float64) {
	t.Helper()
	for i, s := range scores {
		require.NoError(t, d.Enqueue(rec(first+i, s)))
	}
}

// validBatch enqueues one valid composition worth of students.
func validBatch(t *testing.T, d *Directory, first int) {
	enqueueBatch(t, d, first, 90, 85, 70, 65, 60, 30, 30)
}

func TestDirectory_EnqueueRejectsNilAndDuplicates(t *testing.T) {
	d := newTestDirectory(t)

	assert.ErrorIs(t, d.Enqueue(nil), ErrNilRecord)

	require.NoError(t, d.Enqueue(rec(1, 90)))
	err := d.Enqueue(rec(1, 20))
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.True(t, shared.IsAlreadyExists(err))
	assert.Equal(t, 0, d.WaitingLen(student.TierLow))
}

func TestDirectory_EnqueueDerivesTierFromScore(t *testing.T) {
	d := newTestDirectory(t)

	require.NoError(t, d.Enqueue(&student.Record{ID: 1, Name: "A", Score: 90}))
	require.NoError(t, d.Enqueue(&student.Record{ID: 2, Name: "B", Score: 20, Tier: student.TierHigh}))

	assert.Equal(t, 1, d.WaitingLen(student.TierHigh))
	assert.Equal(t, 1, d.WaitingLen(student.TierLow))
	low := d.Waiting(student.TierLow)
	require.Len(t, low, 1)
	assert.Equal(t, 2, low[0].ID)
	assert.Equal(t, student.TierLow, low[0].Tier)
}

func TestDirectory_EnqueueRejectsInvalidRecords(t *testing.T) {
	d := newTestDirectory(t)

	cases := []struct {
		name string
		rec  *student.Record
		want error
	}{
		{"zero id", &student.Record{ID: 0, Name: "A", Score: 50}, student.ErrInvalidID},
		{"blank name", &student.Record{ID: 1, Name: "  ", Score: 50}, student.ErrInvalidName},
		{"negative score", &student.Record{ID: 1, Name: "A", Score: -5}, student.ErrInvalidScore},
		{"NaN score", &student.Record{ID: 1, Name: "A", Score: math.NaN()}, student.ErrInvalidScore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := d.Enqueue(tc.rec)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, shared.IsValidation(err))
		})
	}

	for _, tier := range []student.Tier{student.TierLow, student.TierMid, student.TierHigh} {
		assert.Zero(t, d.WaitingLen(tier))
	}
}

func TestDirectory_AssignMemberValidatesAndDerivesTier(t *testing.T) {
	d := newTestDirectory(t)
	id := d.CreateGroup()

	err := d.AssignMember(id, &student.Record{ID: -1, Name: "A", Score: 80})
	assert.ErrorIs(t, err, student.ErrInvalidID)
	assert.True(t, shared.IsValidation(err))

	require.NoError(t, d.AssignMember(id, &student.Record{ID: 3, Name: "C", Score: 80, Tier: student.TierLow}))
	g, err := d.SearchGroup(id)
	require.NoError(t, err)
	assert.Equal(t, Composition{High: 1}, g.Composition)
	assert.True(t, g.Custom)
}

func TestDirectory_EnqueueRoutesByTierAndCopies(t *testing.T) {
	d := newTestDirectory(t)
	r := rec(1, 45)
	require.NoError(t, d.Enqueue(r))

	r.Score = 99
	waiting := d.Waiting(student.TierMid)
	require.Len(t, waiting, 1)
	assert.Equal(t, 45.0, waiting[0].Score)
}

func TestDirectory_FormationPreconditionLeavesQueuesUnchanged(t *testing.T) {
	d := newTestDirectory(t)
	enqueueBatch(t, d, 1, 90, 70, 65, 60, 55, 50, 30, 20)

	before := d.Snapshot().Waiting

	_, err := d.FormGroup()
	require.ErrorIs(t, err, ErrNotFormed)
	assert.True(t, shared.IsUnavailable(err))

	after := d.Snapshot().Waiting
	assert.Equal(t, before, after)
	assert.Empty(t, d.Groups())
}

func TestDirectory_FormationPostcondition(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)

	g, err := d.FormGroup()
	require.NoError(t, err)

	assert.Equal(t, 1, g.ID)
	assert.Equal(t, GroupSize, g.Size())
	assert.Equal(t, Quota, g.Composition)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, g.MemberIDs())
	assert.False(t, g.Custom)

	for _, tier := range student.Tiers {
		assert.Zero(t, d.WaitingLen(tier))
	}
}

func TestDirectory_EnglishScenario(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDirectory(t, WithPublisher(pub))

	students := []*student.Record{
		student.MustNewRecord(1, "Bethany", 90, "English"),
		student.MustNewRecord(2, "Amanda", 85, "English"),
		student.MustNewRecord(3, "Emma", 70, "English"),
		student.MustNewRecord(4, "Deborah", 65, "English"),
		student.MustNewRecord(5, "Michael", 60, "English"),
		student.MustNewRecord(6, "Fathima", 30, "English"),
		student.MustNewRecord(7, "Geetha", 30, "English"),
	}
	for _, s := range students {
		require.NoError(t, d.Enqueue(s))
	}

	g, err := d.FormGroup()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7}, g.MemberIDs())
	assert.Equal(t, Quota, g.Composition)

	_, err = d.FormGroup()
	assert.ErrorIs(t, err, ErrNotFormed)

	assert.Equal(t, []shared.EventType{shared.EventGroupFormed}, pub.types())
}

func TestDirectory_FormationReusesFirstVacantGroup(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)
	validBatch(t, d, 11)
	formed := d.FormAll()
	require.Len(t, formed, 2)

	require.NoError(t, d.RecordSessionRating(1, 4.5))
	require.True(t, d.RemoveGroup(1))

	validBatch(t, d, 21)
	g, err := d.FormGroup()
	require.NoError(t, err)
	assert.Equal(t, 1, g.ID, "vacant slot must be reused before allocating")
	assert.Empty(t, g.Ratings, "a reused slot starts a fresh rating history")
	assert.Len(t, d.Groups(), 2)

	validBatch(t, d, 31)
	g, err = d.FormGroup()
	require.NoError(t, err)
	assert.Equal(t, 3, g.ID)
}

func TestDirectory_ReusedCustomSlotIsReset(t *testing.T) {
	d := newTestDirectory(t)
	id := d.CreateGroup()
	require.NoError(t, d.AssignMember(id, rec(100, 90)))
	require.NoError(t, d.RecordSessionRating(id, 1))
	require.NoError(t, d.RemoveMember(id, 100))

	validBatch(t, d, 1)
	g, err := d.FormGroup()
	require.NoError(t, err)
	assert.Equal(t, id, g.ID)
	assert.False(t, g.Custom)
	assert.Empty(t, g.Ratings)
	assert.Equal(t, Quota, g.Composition)
}

func TestDirectory_RollbackRestoresQueuesAndAllocation(t *testing.T) {
	d := newTestDirectory(t)
	enqueueBatch(t, d, 1, 90, 85, 70, 65)

	d.mu.Lock()
	d.lastID++
	d.groups = append(d.groups, newGroup(d.lastID))
	var picked []pick
	for _, tier := range []student.Tier{student.TierHigh, student.TierHigh, student.TierMid} {
		r, ok := d.waiting.Dequeue(tier)
		require.True(t, ok)
		picked = append(picked, pick{tier: tier, rec: r})
	}
	d.rollbackLocked(picked, false)
	d.mu.Unlock()

	assert.Equal(t, []int{1, 2}, ids(d.Waiting(student.TierHigh)))
	assert.Equal(t, []int{3, 4}, ids(d.Waiting(student.TierMid)))
	assert.Empty(t, d.Groups())
	assert.Equal(t, 1, d.CreateGroup(), "speculative id must be released")
}

func TestDirectory_SearchGroup(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)
	_, err := d.FormGroup()
	require.NoError(t, err)

	g, err := d.SearchGroup(1)
	require.NoError(t, err)
	assert.Equal(t, 1, g.ID)

	_, err = d.SearchGroup(99)
	assert.ErrorIs(t, err, ErrGroupNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestDirectory_Classify(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)
	d.FormAll()
	empty := d.CreateGroup()
	partial := d.CreateGroup()
	require.NoError(t, d.AssignMember(partial, rec(50, 90)))

	full, part := d.Classify()
	require.Len(t, full, 1)
	assert.Equal(t, 1, full[0].ID)
	require.Len(t, part, 2)
	assert.Equal(t, empty, part[0].ID)
	assert.Equal(t, partial, part[1].ID)
	assert.True(t, part[1].Custom)
}

func TestDirectory_ReshuffleQuotaGuarantee(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		d := newTestDirectory(t, WithShuffler(NewSeededShuffler(seed)))

		a := d.CreateGroup()
		b := d.CreateGroup()
		scoresA := []float64{90, 91, 92, 60, 20}
		scoresB := []float64{61, 62, 63, 64, 21, 22, 23, 93}
		for i, s := range scoresA {
			require.NoError(t, d.AssignMember(a, rec(100+i, s)))
		}
		for i, s := range scoresB {
			require.NoError(t, d.AssignMember(b, rec(200+i, s)))
		}

		ga, gb, err := d.Reshuffle(a, b)
		require.NoError(t, err)

		assert.Equal(t, Quota, ga.Composition, "seed %d", seed)
		assert.Equal(t, GroupSize, ga.Size(), "seed %d", seed)
		assert.Equal(t, len(scoresA)+len(scoresB), ga.Size()+gb.Size(), "seed %d", seed)
		assert.Equal(t, Composition{High: 2, Mid: 2, Low: 2}, gb.Composition, "seed %d", seed)
	}
}

func TestDirectory_ReshuffleIsDeterministicForSeed(t *testing.T) {
	run := func() []int {
		d := newTestDirectory(t, WithShuffler(NewSeededShuffler(7)))
		validBatch(t, d, 1)
		validBatch(t, d, 11)
		d.FormAll()
		ga, _, err := d.Reshuffle(1, 2)
		require.NoError(t, err)
		return ga.MemberIDs()
	}
	assert.Equal(t, run(), run())
}

func TestDirectory_ReshuffleErrors(t *testing.T) {
	d := newTestDirectory(t)
	a := d.CreateGroup()

	_, _, err := d.Reshuffle(a, 42)
	assert.ErrorIs(t, err, ErrGroupNotFound)

	_, _, err = d.Reshuffle(a, a)
	assert.ErrorIs(t, err, ErrSameGroup)
}

func TestDirectory_ReshuffleOverflowGoesToSecondGroup(t *testing.T) {
	d := newTestDirectory(t)
	a := d.CreateGroup()
	b := d.CreateGroup()
	for i, s := range []float64{90, 91, 92, 93} {
		require.NoError(t, d.AssignMember(a, rec(i+1, s)))
	}

	ga, gb, err := d.Reshuffle(a, b)
	require.NoError(t, err)
	assert.Equal(t, Composition{High: 2}, ga.Composition)
	assert.Equal(t, Composition{High: 2}, gb.Composition)
	assert.True(t, gb.Custom)
}

func TestDirectory_MergeGroups(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDirectory(t, WithPublisher(pub))
	a := d.CreateGroup()
	b := d.CreateGroup()
	for i, s := range []float64{90, 60, 20} {
		require.NoError(t, d.AssignMember(a, rec(i+1, s)))
	}
	for i, s := range []float64{91, 61, 62, 21} {
		require.NoError(t, d.AssignMember(b, rec(i+10, s)))
	}

	assert.False(t, d.MergeGroups(a, 99))
	assert.False(t, d.MergeGroups(a, a))

	require.True(t, d.MergeGroups(a, b))

	ga, _ := d.SearchGroup(a)
	gb, _ := d.SearchGroup(b)
	assert.Equal(t, Quota, ga.Composition)
	assert.True(t, ga.Custom)
	assert.True(t, gb.Vacant())
	assert.Equal(t, []shared.EventType{shared.EventGroupsMerged, shared.EventGroupVacated}, pub.types())
}

func TestDirectory_MergeRejectedIsNonMutating(t *testing.T) {
	d := newTestDirectory(t)
	a := d.CreateGroup()
	b := d.CreateGroup()
	for i, s := range []float64{90, 91, 60} {
		require.NoError(t, d.AssignMember(a, rec(i+1, s)))
	}
	for i, s := range []float64{92, 61, 20, 21} {
		require.NoError(t, d.AssignMember(b, rec(i+10, s)))
	}
	before := d.Groups()

	assert.False(t, d.MergeGroups(a, b))
	assert.Equal(t, before, d.Groups())
}

func TestDirectory_RemoveGroup(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)
	d.FormAll()

	assert.True(t, d.RemoveGroup(1))
	assert.False(t, d.RemoveGroup(2))

	g, err := d.SearchGroup(1)
	require.NoError(t, err)
	assert.True(t, g.Vacant())
	assert.Equal(t, Composition{}, g.Composition)
	for _, tier := range student.Tiers {
		assert.Zero(t, d.WaitingLen(tier), "dropped members are not re-queued")
	}
}

func TestDirectory_DepartureBackfill(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDirectory(t, WithPublisher(pub))
	validBatch(t, d, 1)
	d.FormAll()
	require.NoError(t, d.Enqueue(rec(50, 95)))

	require.NoError(t, d.RemoveMember(1, 1))

	g, err := d.SearchGroup(1)
	require.NoError(t, err)
	assert.Equal(t, GroupSize, g.Size())
	assert.Equal(t, Quota, g.Composition)
	assert.Contains(t, g.MemberIDs(), 50)
	assert.NotContains(t, g.MemberIDs(), 1)
	assert.Zero(t, d.WaitingLen(student.TierHigh))

	last := pub.events[len(pub.events)-1].(shared.MemberDepartedEvent)
	assert.True(t, last.Backfilled())
	assert.Equal(t, 50, last.ReplacementID)
}

func TestDirectory_DepartureWithoutBackfill(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)
	d.FormAll()

	require.NoError(t, d.RemoveMember(1, 2))

	g, err := d.SearchGroup(1)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Size())
	assert.Equal(t, Composition{High: 1, Mid: 3, Low: 2}, g.Composition)
}

func TestDirectory_DepartureNotFound(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)
	d.FormAll()
	before := d.Snapshot()

	assert.ErrorIs(t, d.RemoveMember(9, 1), ErrGroupNotFound)
	assert.ErrorIs(t, d.RemoveMember(1, 99), ErrMemberNotFound)

	after := d.Snapshot()
	assert.Equal(t, before.Groups, after.Groups)
	assert.Equal(t, before.Waiting, after.Waiting)
}

func TestDirectory_DepartureTriggersMerge(t *testing.T) {
	d := newTestDirectory(t)
	a := d.CreateGroup()
	b := d.CreateGroup()
	for i, s := range []float64{90, 60, 20, 25} {
		require.NoError(t, d.AssignMember(a, rec(i+1, s)))
	}
	for i, s := range []float64{91, 61, 62} {
		require.NoError(t, d.AssignMember(b, rec(i+10, s)))
	}
	require.NoError(t, d.AssignMember(b, rec(20, 15)))

	// b loses its extra low member; 4 + 3 = 7 and the pair is 2/3/2.
	require.NoError(t, d.RemoveMember(b, 20))

	ga, _ := d.SearchGroup(a)
	gb, _ := d.SearchGroup(b)
	assert.Equal(t, Quota, ga.Composition)
	assert.True(t, gb.Vacant())
}

func TestDirectory_UpdateScore(t *testing.T) {
	d := newTestDirectory(t)
	validBatch(t, d, 1)
	d.FormAll()

	updated, err := d.UpdateScore(1, 6, 80)
	require.NoError(t, err)
	assert.Equal(t, student.TierHigh, updated.Tier)

	g, _ := d.SearchGroup(1)
	assert.Equal(t, Composition{High: 3, Mid: 3, Low: 1}, g.Composition)

	_, err = d.UpdateScore(5, 1, 80)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestDirectory_RecordSessionRating(t *testing.T) {
	d := newTestDirectory(t)
	id := d.CreateGroup()

	require.NoError(t, d.RecordSessionRating(id, 1))
	require.NoError(t, d.RecordSessionRating(id, 2))
	assert.ErrorIs(t, d.RecordSessionRating(id, math.NaN()), ErrInvalidRating)
	assert.ErrorIs(t, d.RecordSessionRating(99, 1), ErrGroupNotFound)

	g, _ := d.SearchGroup(id)
	assert.Equal(t, []float64{1, 2}, g.Ratings)
	assert.InDelta(t, 1.5, g.AverageRating, 1e-9)
}

func TestDirectory_CorrelationIDs(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDirectory(t, WithPublisher(pub), WithCorrelationIDs(func() string { return "corr-1" }))
	validBatch(t, d, 1)
	d.FormAll()

	require.Len(t, pub.events, 1)
	env, err := shared.NewEnvelope("evt-1", pub.events[0])
	require.NoError(t, err)
	assert.Equal(t, "corr-1", env.CorrelationID)
}

func TestDirectory_RenameChangesKey(t *testing.T) {
	d := newTestDirectory(t)
	assert.Equal(t, "CS101:English", d.Key())

	d.Rename("EC234")
	assert.Equal(t, "EC234", d.Subject())
	assert.Equal(t, "EC234:English", d.Key())
}

func TestDirectory_RenamePublishesPreviousKey(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDirectory(t, WithPublisher(pub))

	d.Rename("CS101")
	assert.Empty(t, pub.types())

	d.Rename("EC234")
	require.Equal(t, []shared.EventType{shared.EventDirectoryRenamed}, pub.types())
	renamed, ok := pub.events[0].(shared.DirectoryRenamedEvent)
	require.True(t, ok)
	assert.Equal(t, "EC234:English", renamed.AggregateID())
	assert.Equal(t, "CS101:English", renamed.PreviousKey)
}

func TestDirectory_EventsDeliveredAfterUnlock(t *testing.T) {
	pub := &lockCheckingPublisher{}
	d := newTestDirectory(t, WithPublisher(pub))
	pub.d = d

	validBatch(t, d, 1)
	validBatch(t, d, 8)
	assert.Len(t, d.FormAll(), 2)
	require.NoError(t, d.RemoveMember(1, 1))
	_, _, err := d.Reshuffle(1, 2)
	require.NoError(t, err)
	assert.True(t, d.RemoveGroup(2))

	// Every event of an operation has arrived by the time it returns.
	assert.Len(t, pub.types(), 5)

	d.RunMaintenanceSweep()

	assert.Empty(t, pub.heldDuring)
	types := pub.types()
	require.Len(t, types, 6)
	assert.Equal(t, []shared.EventType{
		shared.EventGroupFormed,
		shared.EventGroupFormed,
		shared.EventMemberDeparted,
		shared.EventGroupsReshuffle,
		shared.EventGroupVacated,
		shared.EventSweepCompleted,
	}, types)
	assert.Len(t, pub.groupsSeen, 6)
}

func TestDirectory_SnapshotTimestamp(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDirectory(t, WithClock(func() time.Time { return at }))
	validBatch(t, d, 1)
	enqueueBatch(t, d, 20, 10)
	d.FormAll()

	s := d.Snapshot()
	assert.Equal(t, at, s.TakenAt)
	assert.Equal(t, 1, s.ActiveGroups())
	assert.Equal(t, Composition{Low: 1}, s.Waiting.Counts())
}

func TestDirectory_ConcurrentEnqueueAndForm(t *testing.T) {
	d := newTestDirectory(t)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				base := (w*10 + i) * 10
				for j, s := range []float64{90, 85, 70, 65, 60, 30, 30} {
					_ = d.Enqueue(rec(base+j+1, s))
				}
				_, _ = d.FormGroup()
			}
		}(w)
	}
	wg.Wait()
	d.FormAll()

	total := 0
	for _, g := range d.Groups() {
		assert.Equal(t, Quota, g.Composition)
		total += g.Size()
	}
	assert.Equal(t, 40*GroupSize, total)
}
