// Package demo replays a scripted session of the group engine: three
// English groups for CS101 are formed, lose members, merge, get rated,
// are swept twice and finally move to a renamed subject. Each step records
// a snapshot of the English directory.
package demo

import (
	"fmt"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/registry"
	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

const (
	Subject        = "CS101"
	RenamedSubject = "EC234"
	Language       = "English"
)

// Step is the state of the English directory after one scripted action.
type Step struct {
	Title    string                `json:"title"`
	Snapshot grouping.Snapshot     `json:"snapshot"`
	Sweep    *grouping.SweepReport `json:"sweep,omitempty"`
}

type entry struct {
	id    int
	name  string
	score float64
}

// english is the enrollment order of the English waiting lists.
var english = []entry{
	{1, "Amanda", 85}, {2, "Bethany", 90},
	{4, "Deborah", 65}, {5, "Emma", 70}, {6, "Yogini", 45},
	{7, "Fathima", 30}, {8, "Geetha", 30}, {9, "Hannah", 30},
	{10, "Devika", 90}, {11, "Alex", 85},
	{12, "Sarah", 70}, {13, "Michael", 60}, {14, "Ignacio", 60}, {15, "Jordan", 60}, {16, "Kris", 60},
	{17, "Bartholomew", 30},
	{18, "Isabel", 90}, {19, "Max", 85},
	{20, "Selena", 70}, {21, "Jessie", 60}, {22, "Betty", 60}, {23, "Sam", 60}, {24, "Dokyeom", 60},
	{25, "Yelena", 30},
	{26, "Lalitha", 85},
	{27, "Tessa", 70}, {28, "Cassandra", 60}, {29, "David", 60},
	{30, "Chiara", 30},
}

var newcomers = []entry{
	{31, "Senthil", 90}, {32, "Arun", 85},
	{33, "Kumar", 70}, {34, "Karan", 60}, {35, "Thea", 60}, {36, "Mary", 60}, {37, "Sriya", 60},
	{38, "Stella", 30}, {39, "Markus", 30},
}

// returning students rejoin after leaving their groups.
var returning = []int{10, 11, 12, 13, 14, 7, 8}

func (e entry) record(language string) *student.Record {
	return student.MustNewRecord(e.id, e.name, e.score, language)
}

func lookup(id int) entry {
	for _, e := range english {
		if e.id == id {
			return e
		}
	}
	panic(fmt.Sprintf("demo: unknown student %d", id))
}

// Prepare registers CS101 and CS102, the English, Hindi and Tamil languages
// of CS101, and fills the English and Tamil waiting lists. It returns the
// English directory.
func Prepare(reg *registry.Registry) (*grouping.Directory, error) {
	for _, s := range []string{Subject, "CS102"} {
		if err := reg.AddSubject(s); err != nil {
			return nil, fmt.Errorf("add subject %s: %w", s, err)
		}
	}

	dirs := make(map[string]*grouping.Directory)
	for _, lang := range []string{Language, "Hindi", "Tamil"} {
		d, err := reg.AddLanguage(Subject, lang)
		if err != nil {
			return nil, fmt.Errorf("add language %s: %w", lang, err)
		}
		dirs[lang] = d
	}

	for _, e := range english {
		if err := dirs[Language].Enqueue(e.record(Language)); err != nil {
			return nil, fmt.Errorf("enqueue %d: %w", e.id, err)
		}
	}
	tamil := entry{3, "Catherine", 100}
	if err := dirs["Tamil"].Enqueue(tamil.record("Tamil")); err != nil {
		return nil, fmt.Errorf("enqueue %d: %w", tamil.id, err)
	}

	return dirs[Language], nil
}

type script struct {
	dir   *grouping.Directory
	steps []Step
}

func (s *script) step(title string, fn func(d *grouping.Directory) error) error {
	if err := fn(s.dir); err != nil {
		return fmt.Errorf("%s: %w", title, err)
	}
	s.steps = append(s.steps, Step{Title: title, Snapshot: s.dir.Snapshot()})
	return nil
}

func (s *script) sweep(title string) {
	report := s.dir.RunMaintenanceSweep()
	s.steps = append(s.steps, Step{Title: title, Snapshot: s.dir.Snapshot(), Sweep: &report})
}

func removeAll(d *grouping.Directory, groupID int, ids ...int) error {
	for _, id := range ids {
		if err := d.RemoveMember(groupID, id); err != nil {
			return fmt.Errorf("remove %d from group %d: %w", id, groupID, err)
		}
	}
	return nil
}

func rate(d *grouping.Directory, groupID int, values ...float64) error {
	for _, v := range values {
		if err := d.RecordSessionRating(groupID, v); err != nil {
			return fmt.Errorf("rate group %d: %w", groupID, err)
		}
	}
	return nil
}

// Run plays the whole script against reg, which must not know CS101 yet.
func Run(reg *registry.Registry) ([]Step, error) {
	dir, err := Prepare(reg)
	if err != nil {
		return nil, err
	}
	s := &script{dir: dir}
	s.steps = append(s.steps, Step{Title: "students enrolled", Snapshot: dir.Snapshot()})

	err = s.step("groups formed", func(d *grouping.Directory) error {
		if n := len(d.FormAll()); n != 3 {
			return fmt.Errorf("formed %d groups, want 3", n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// No low-tier student waits, so group 1 shrinks to five.
	err = s.step("low-tier members leave group 1", func(d *grouping.Directory) error {
		return removeAll(d, 1, 7, 8)
	})
	if err != nil {
		return nil, err
	}

	// Lalitha takes Devika's seat, then the high tier runs dry.
	err = s.step("high-tier members leave group 2", func(d *grouping.Directory) error {
		return removeAll(d, 2, 10, 11, 26)
	})
	if err != nil {
		return nil, err
	}

	err = s.step("mid-tier waiting students withdraw", func(d *grouping.Directory) error {
		for {
			if _, ok := d.Dequeue(student.TierMid); !ok {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}

	// With two left, group 2 fits into group 1 exactly.
	err = s.step("group 2 merges into group 1", func(d *grouping.Directory) error {
		return removeAll(d, 2, 12, 13, 14)
	})
	if err != nil {
		return nil, err
	}

	err = s.step("returning students reuse group 2", func(d *grouping.Directory) error {
		for _, id := range returning {
			if err := d.Enqueue(lookup(id).record(Language)); err != nil {
				return fmt.Errorf("enqueue %d: %w", id, err)
			}
		}
		_, err := d.FormGroup()
		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.step("sessions rated", func(d *grouping.Directory) error {
		if err := rate(d, 3, 1.5, 1.8); err != nil {
			return err
		}
		if err := rate(d, 1, 1, 1.2); err != nil {
			return err
		}
		return rate(d, 2, 1, 1)
	})
	if err != nil {
		return nil, err
	}

	s.sweep("low-rated groups reshuffled")

	err = s.step("group 1 disbanded", func(d *grouping.Directory) error {
		if !d.RemoveGroup(1) {
			return grouping.ErrGroupNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.step("newcomers reuse group 1", func(d *grouping.Directory) error {
		for _, e := range newcomers {
			if err := d.Enqueue(e.record(Language)); err != nil {
				return fmt.Errorf("enqueue %d: %w", e.id, err)
			}
		}
		_, err := d.FormGroup()
		return err
	})
	if err != nil {
		return nil, err
	}

	// Mary waits in the mid tier and takes Kumar's seat.
	err = s.step("member replaced from the waiting list", func(d *grouping.Directory) error {
		return d.RemoveMember(1, 33)
	})
	if err != nil {
		return nil, err
	}

	// Markus moves from the low to the high tier and breaks the quota.
	err = s.step("score updated", func(d *grouping.Directory) error {
		_, err := d.UpdateScore(1, 39, 79)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sweep("off-quota group removed")

	err = s.step("subject renamed", func(*grouping.Directory) error {
		return reg.RenameSubject(Subject, RenamedSubject)
	})
	if err != nil {
		return nil, err
	}

	return s.steps, nil
}
