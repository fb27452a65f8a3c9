package grouping

import (
	"math"
	"slices"

	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// Group is a roster with identity and a session-rating history.
// An empty roster is a vacant slot that formation may reuse.
type Group struct {
	id      int
	roster  Roster
	ratings []float64
	custom  bool
}

func newGroup(id int) *Group {
	return &Group{id: id}
}

// ID returns the group id, unique within its directory.
func (g *Group) ID() int {
	return g.id
}

// Roster exposes the group roster.
func (g *Group) Roster() *Roster {
	return &g.roster
}

// Size returns the number of members.
func (g *Group) Size() int {
	return g.roster.Len()
}

// Vacant reports whether the group has no members.
func (g *Group) Vacant() bool {
	return g.roster.Len() == 0
}

// Full reports whether the group has exactly GroupSize members.
func (g *Group) Full() bool {
	return g.roster.Len() == GroupSize
}

// Composition returns the roster's tier counts.
func (g *Group) Composition() Composition {
	return g.roster.Counts()
}

// Custom reports whether the roster was assembled outside of formation,
// by a merge, a lopsided reshuffle or a direct assignment.
func (g *Group) Custom() bool {
	return g.custom
}

// Members returns copies of the members in insertion order.
func (g *Group) Members() []student.Record {
	return g.roster.Members()
}

// Ratings returns a copy of the session-rating history.
func (g *Group) Ratings() []float64 {
	return slices.Clone(g.ratings)
}

// AverageRating returns the mean session rating, or 0 without history.
func (g *Group) AverageRating() float64 {
	if len(g.ratings) == 0 {
		return 0
	}

	var sum float64
	for _, v := range g.ratings {
		sum += v
	}
	return sum / float64(len(g.ratings))
}

// RecordSessionRating appends a rating to the history.
func (g *Group) RecordSessionRating(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidRating
	}
	g.ratings = append(g.ratings, v)
	return nil
}

// Clear empties the roster. The id and the slot stay in the directory.
func (g *Group) Clear() {
	g.roster.Clear()
}

// View returns an immutable snapshot of the group.
func (g *Group) View() GroupView {
	return GroupView{
		ID:            g.id,
		Members:       g.roster.Members(),
		Composition:   g.roster.Counts(),
		Ratings:       g.Ratings(),
		AverageRating: g.AverageRating(),
		Custom:        g.custom,
	}
}

// GroupView is a detached copy of a group, safe to hand out of the directory lock.
type GroupView struct {
	ID            int              `json:"id"`
	Members       []student.Record `json:"members"`
	Composition   Composition      `json:"composition"`
	Ratings       []float64        `json:"ratings"`
	AverageRating float64          `json:"average_rating"`
	Custom        bool             `json:"custom"`
}

// Size returns the number of members in the snapshot.
func (v GroupView) Size() int {
	return len(v.Members)
}

// Vacant reports whether the snapshot has no members.
func (v GroupView) Vacant() bool {
	return len(v.Members) == 0
}

// MemberIDs returns the member ids in roster order.
func (v GroupView) MemberIDs() []int {
	out := make([]int, 0, len(v.Members))
	for _, m := range v.Members {
		out = append(out, m.ID)
	}
	return out
}
