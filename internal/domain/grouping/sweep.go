package grouping

import (
	"time"

	"github.com/alem-hub/study-group-finder/internal/domain/shared"
)

// SweepReport summarizes one maintenance sweep.
type SweepReport struct {
	ID              string        `json:"id,omitempty"`
	Subject         string        `json:"subject"`
	Language        string        `json:"language"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	RemovedGroups   []int         `json:"removed_groups"`
	ReshuffledPairs int           `json:"reshuffled_pairs"`
	Merges          int           `json:"merges"`
}

// Removed returns the number of groups vacated for low ratings.
func (r SweepReport) Removed() int {
	return len(r.RemovedGroups)
}

// RunMaintenanceSweep rebalances underperforming groups:
//
//  1. full groups whose composition is off quota and whose average rating is
//     below the threshold are vacated;
//  2. full groups with a valid composition but a low average are reshuffled
//     pairwise in directory order, then the last with the first;
//  3. partial groups are checked for merges.
func (d *Directory) RunMaintenanceSweep() SweepReport {
	d.mu.Lock()
	defer d.unlock()

	report := SweepReport{
		ID:            d.correlationLocked(),
		Subject:       d.subject,
		Language:      d.language,
		StartedAt:     d.now(),
		RemovedGroups: []int{},
	}
	d.correlation = report.ID
	defer func() { d.correlation = "" }()

	full, _ := d.classifyLocked()

	var worklist []*Group
	for _, g := range full {
		if g.AverageRating() >= d.lowRating {
			continue
		}
		if !g.Composition().Valid() {
			d.vacateLocked(g, shared.VacateLowRating)
			report.RemovedGroups = append(report.RemovedGroups, g.id)
			continue
		}
		worklist = append(worklist, g)
	}

	for i := 0; i+1 < len(worklist); i++ {
		d.reshuffleLocked(worklist[i], worklist[i+1])
		report.ReshuffledPairs++
	}
	if n := len(worklist); n > 1 && worklist[0] != worklist[n-1] {
		d.reshuffleLocked(worklist[n-1], worklist[0])
		report.ReshuffledPairs++
	}

	report.Merges = d.mergeEligibleLocked()
	report.Duration = d.now().Sub(report.StartedAt)

	d.metrics.SweepCompleted(d.key(), report.Removed(), report.ReshuffledPairs, report.Merges, report.Duration)
	d.logger.Info("maintenance sweep completed",
		"sweep_id", report.ID,
		"removed", report.Removed(),
		"reshuffled_pairs", report.ReshuffledPairs,
		"merges", report.Merges,
		"duration", report.Duration,
	)
	d.publishLocked(shared.NewSweepCompletedEvent(
		d.key(), report.RemovedGroups, report.ReshuffledPairs, report.Merges, report.Duration,
	))

	return report
}
