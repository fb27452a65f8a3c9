package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

func rosterOf(records ...*student.Record) *Roster {
	r := &Roster{}
	for _, rec := range records {
		r.Add(rec)
	}
	return r
}

func TestRoster_CountsFollowMembers(t *testing.T) {
	r := rosterOf(rec(1, 90), rec(2, 60), rec(3, 20))
	assert.Equal(t, Composition{High: 1, Mid: 1, Low: 1}, r.Counts())

	removed, ok := r.Remove(2)
	require.True(t, ok)
	assert.Equal(t, 2, removed.ID)
	assert.Equal(t, Composition{High: 1, Low: 1}, r.Counts())
	assert.Equal(t, []int{1, 3}, r.IDs())

	_, ok = r.Remove(42)
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
}

func TestRoster_MergeRejectedLeavesBothUntouched(t *testing.T) {
	a := rosterOf(rec(1, 90), rec(2, 91), rec(3, 60))
	b := rosterOf(rec(4, 92), rec(5, 61), rec(6, 20), rec(7, 21))

	beforeA, beforeB := a.Members(), b.Members()
	countsA, countsB := a.Counts(), b.Counts()

	assert.False(t, a.Merge(b))

	assert.Equal(t, beforeA, a.Members())
	assert.Equal(t, beforeB, b.Members())
	assert.Equal(t, countsA, a.Counts())
	assert.Equal(t, countsB, b.Counts())
}

func TestRoster_MergeValid(t *testing.T) {
	a := rosterOf(rec(1, 90), rec(2, 60), rec(3, 20))
	b := rosterOf(rec(4, 91), rec(5, 61), rec(6, 62), rec(7, 21))

	require.True(t, a.Merge(b))

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, a.IDs())
	assert.Equal(t, Quota, a.Counts())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, Composition{}, b.Counts())
}

func TestRoster_MergeWithSelf(t *testing.T) {
	a := rosterOf(rec(1, 90))
	assert.False(t, a.Merge(a))
	assert.Equal(t, 1, a.Len())
}

func TestRoster_UpdateScoreMovesCount(t *testing.T) {
	r := rosterOf(rec(1, 90), rec(2, 60))

	updated, err := r.UpdateScore(2, 10)
	require.NoError(t, err)
	assert.Equal(t, student.TierLow, updated.Tier)
	assert.Equal(t, Composition{High: 1, Low: 1}, r.Counts())

	_, err = r.UpdateScore(3, 10)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = r.UpdateScore(1, -5)
	assert.ErrorIs(t, err, student.ErrInvalidScore)
	assert.Equal(t, Composition{High: 1, Low: 1}, r.Counts())
}

func TestRoster_MembersAreCopies(t *testing.T) {
	r := rosterOf(rec(1, 90))
	members := r.Members()
	members[0].Score = 0

	found, ok := r.Find(1)
	require.True(t, ok)
	assert.Equal(t, 90.0, found.Score)
}
