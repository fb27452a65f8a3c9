package grouping

import (
	"time"

	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// Recorder receives engine measurements. Implementations must be safe for
// concurrent use and must not call back into the directory.
type Recorder interface {
	GroupFormed(key string, reused bool)
	FormationMissed(key string)
	Reshuffled(key string)
	MergeAttempted(key string, ok bool)
	MemberDeparted(key string, backfilled bool)
	SweepCompleted(key string, removed, pairs, merges int, d time.Duration)
	WaitingChanged(key string, tier student.Tier, n int)
}

type nopRecorder struct{}

func (nopRecorder) GroupFormed(string, bool) {}
func (nopRecorder) FormationMissed(string) {}
func (nopRecorder) Reshuffled(string) {}
func (nopRecorder) MergeAttempted(string, bool) {}
func (nopRecorder) MemberDeparted(string, bool) {}
func (nopRecorder) SweepCompleted(string, int, int, int, time.Duration) {}
func (nopRecorder) WaitingChanged(string, student.Tier, int) {}

// NopRecorder discards all measurements.
func NopRecorder() Recorder {
	return nopRecorder{}
}
