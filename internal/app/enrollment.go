package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/registry"
	"github.com/alem-hub/study-group-finder/internal/domain/shared"
	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// Enrollment is one entry of an enrollment file.
type Enrollment struct {
	Subject  string  `json:"subject"`
	Language string  `json:"language"`
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// EnrollmentStats summarizes a LoadEnrollment run.
type EnrollmentStats struct {
	Enqueued         int `json:"enqueued"`
	UnknownDirectory int `json:"unknown_directory"`
	Invalid          int `json:"invalid"`
	Duplicate        int `json:"duplicate"`
	GroupsFormed     int `json:"groups_formed"`
}

// Skipped returns the number of entries that were not enqueued.
func (s EnrollmentStats) Skipped() int {
	return s.UnknownDirectory + s.Invalid + s.Duplicate
}

// LoadEnrollment reads a JSON array of Enrollment from r, enqueues each
// student in its registered directory and then forms groups in every
// directory it touched until no more can be formed.
//
// Entries naming an unregistered directory, failing validation or repeating
// an id are logged and skipped. Any other error stops the load.
func LoadEnrollment(reg *registry.Registry, r io.Reader, log *slog.Logger) (EnrollmentStats, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "enrollment")

	var entries []Enrollment
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return EnrollmentStats{}, fmt.Errorf("decode enrollment: %w", err)
	}

	var (
		stats   EnrollmentStats
		touched []*grouping.Directory
		seen    = make(map[*grouping.Directory]bool)
	)

	for i, e := range entries {
		d, err := reg.Directory(e.Subject, e.Language)
		switch {
		case err == nil:
		case shared.IsNotFound(err):
			stats.UnknownDirectory++
			log.Warn("enrollment skipped: unknown directory",
				"entry", i, "subject", e.Subject, "language", e.Language)
			continue
		default:
			return stats, fmt.Errorf("enrollment entry %d: %w", i, err)
		}

		rec := &student.Record{ID: e.ID, Name: e.Name, Score: e.Score, PreferredLanguage: e.Language}
		err = d.Enqueue(rec)
		switch {
		case err == nil:
			stats.Enqueued++
		case shared.IsValidation(err):
			stats.Invalid++
			log.Warn("enrollment skipped: invalid student", "entry", i, "id", e.ID, "error", err)
			continue
		case shared.IsAlreadyExists(err):
			stats.Duplicate++
			log.Warn("enrollment skipped: duplicate student", "entry", i, "id", e.ID, "directory", d.Key())
			continue
		default:
			return stats, fmt.Errorf("enrollment entry %d: %w", i, err)
		}

		if !seen[d] {
			seen[d] = true
			touched = append(touched, d)
		}
	}

	for _, d := range touched {
		for {
			if _, err := d.FormGroup(); err != nil {
				if shared.IsUnavailable(err) {
					break
				}
				return stats, fmt.Errorf("form groups in %s: %w", d.Key(), err)
			}
			stats.GroupsFormed++
		}
	}

	log.Info("enrollment loaded",
		"enqueued", stats.Enqueued,
		"skipped", stats.Skipped(),
		"groups_formed", stats.GroupsFormed,
	)
	return stats, nil
}
