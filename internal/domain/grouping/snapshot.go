package grouping

import (
	"time"

	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// Snapshot is a detached, JSON-friendly copy of a whole directory.
type Snapshot struct {
	Subject  string      `json:"subject"`
	Language string      `json:"language"`
	TakenAt  time.Time   `json:"taken_at"`
	Groups   []GroupView `json:"groups"`
	Waiting  WaitingView `json:"waiting"`
}

// WaitingView lists the waiting records per tier, oldest first.
type WaitingView struct {
	High []student.Record `json:"high"`
	Mid  []student.Record `json:"mid"`
	Low  []student.Record `json:"low"`
}

// Counts returns the number of waiting records per tier.
func (w WaitingView) Counts() Composition {
	return Composition{High: len(w.High), Mid: len(w.Mid), Low: len(w.Low)}
}

// ActiveGroups returns the number of non-vacant groups.
func (s Snapshot) ActiveGroups() int {
	n := 0
	for _, g := range s.Groups {
		if !g.Vacant() {
			n++
		}
	}
	return n
}

// Snapshot copies the directory state under the lock.
func (d *Directory) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	groups := make([]GroupView, 0, len(d.groups))
	for _, g := range d.groups {
		groups = append(groups, g.View())
	}

	return Snapshot{
		Subject:  d.subject,
		Language: d.language,
		TakenAt:  d.now().UTC(),
		Groups:   groups,
		Waiting: WaitingView{
			High: d.waiting.Records(student.TierHigh),
			Mid:  d.waiting.Records(student.TierMid),
			Low:  d.waiting.Records(student.TierLow),
		},
	}
}
