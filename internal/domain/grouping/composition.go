// Package grouping implements the group assignment and rebalancing engine:
// tiered waiting queues, group rosters, and the Directory that forms,
// reshuffles, merges and sweeps the groups of one (subject, language) pair.
package grouping

import (
	"fmt"

	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// GroupSize is the size of a group with a valid composition.
const GroupSize = 7

// Quota is the only valid composition: 2 high, 3 mid, 2 low.
var Quota = Composition{High: 2, Mid: 3, Low: 2}

// Composition counts members per tier.
type Composition struct {
	High int `json:"high"`
	Mid  int `json:"mid"`
	Low  int `json:"low"`
}

// Size returns the total number of members.
func (c Composition) Size() int {
	return c.High + c.Mid + c.Low
}

// Valid reports whether the composition is exactly the quota.
func (c Composition) Valid() bool {
	return c == Quota
}

// Of returns the count for one tier.
func (c Composition) Of(t student.Tier) int {
	switch t {
	case student.TierHigh:
		return c.High
	case student.TierMid:
		return c.Mid
	default:
		return c.Low
	}
}

// Plus returns the element-wise sum of two compositions.
func (c Composition) Plus(o Composition) Composition {
	return Composition{High: c.High + o.High, Mid: c.Mid + o.Mid, Low: c.Low + o.Low}
}

// Covers reports whether c has at least as many members of every tier as o.
func (c Composition) Covers(o Composition) bool {
	return c.High >= o.High && c.Mid >= o.Mid && c.Low >= o.Low
}

func (c *Composition) add(t student.Tier, delta int) {
	switch t {
	case student.TierHigh:
		c.High += delta
	case student.TierMid:
		c.Mid += delta
	default:
		c.Low += delta
	}
}

// String formats the composition as high/mid/low.
func (c Composition) String() string {
	return fmt.Sprintf("%d/%d/%d", c.High, c.Mid, c.Low)
}
