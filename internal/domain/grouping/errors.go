package grouping

import "github.com/alem-hub/study-group-finder/internal/domain/shared"

// Errors returned by the grouping package. They are the shared domain errors,
// re-exported so callers of this package need only one import.
var (
	ErrGroupNotFound  = shared.ErrGroupNotFound
	ErrMemberNotFound = shared.ErrMemberNotFound
	ErrNotFormed      = shared.ErrNotFormed
	ErrSameGroup      = shared.ErrSameGroup
	ErrNilRecord      = shared.ErrNilRecord
	ErrDuplicateID    = shared.ErrDuplicateID
	ErrInvalidRating  = shared.ErrInvalidRating
)
