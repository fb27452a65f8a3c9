package grouping

import (
	"slices"

	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// Roster is the ordered member list of a group with running tier counts.
// The counts always equal the live tally of members by tier.
type Roster struct {
	members []*student.Record
	counts  Composition
}

// Add appends a member and updates the counts.
func (r *Roster) Add(rec *student.Record) {
	r.members = append(r.members, rec)
	r.counts.add(rec.Tier, 1)
}

// Remove deletes the member with the given id and returns it.
func (r *Roster) Remove(id int) (*student.Record, bool) {
	i := r.index(id)
	if i < 0 {
		return nil, false
	}

	rec := r.members[i]
	r.members = slices.Delete(r.members, i, i+1)
	r.counts.add(rec.Tier, -1)

	return rec, true
}

// Find returns the member with the given id.
func (r *Roster) Find(id int) (*student.Record, bool) {
	i := r.index(id)
	if i < 0 {
		return nil, false
	}
	return r.members[i], true
}

// Len returns the number of members.
func (r *Roster) Len() int {
	return len(r.members)
}

// Counts returns the running tier counts.
func (r *Roster) Counts() Composition {
	return r.counts
}

// Members returns copies of the members in insertion order.
func (r *Roster) Members() []student.Record {
	out := make([]student.Record, 0, len(r.members))
	for _, rec := range r.members {
		out = append(out, rec.Clone())
	}
	return out
}

// IDs returns the member ids in insertion order.
func (r *Roster) IDs() []int {
	out := make([]int, 0, len(r.members))
	for _, rec := range r.members {
		out = append(out, rec.ID)
	}
	return out
}

// Clear drops all members and resets the counts.
func (r *Roster) Clear() {
	clear(r.members)
	r.members = r.members[:0]
	r.counts = Composition{}
}

// Merge moves every member of other into r when the combined roster is
// exactly the quota. On rejection neither roster is touched.
func (r *Roster) Merge(other *Roster) bool {
	if r == other || !r.counts.Plus(other.counts).Valid() {
		return false
	}

	r.members = append(r.members, other.members...)
	r.counts = r.counts.Plus(other.counts)
	other.Clear()

	return true
}

// UpdateScore changes a member's score and keeps the counts consistent with
// the re-derived tier.
func (r *Roster) UpdateScore(id int, score float64) (*student.Record, error) {
	rec, ok := r.Find(id)
	if !ok {
		return nil, ErrMemberNotFound
	}

	prev, err := rec.UpdateScore(score)
	if err != nil {
		return nil, err
	}
	if prev != rec.Tier {
		r.counts.add(prev, -1)
		r.counts.add(rec.Tier, 1)
	}

	return rec, nil
}

// take detaches and returns all members, leaving the roster empty.
func (r *Roster) take() []*student.Record {
	out := r.members
	r.members = nil
	r.counts = Composition{}
	return out
}

func (r *Roster) index(id int) int {
	return slices.IndexFunc(r.members, func(rec *student.Record) bool {
		return rec.ID == id
	})
}
