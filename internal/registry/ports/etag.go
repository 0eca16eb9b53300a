package ports

import "trailhead/internal/registry/models"

// PreconditionHolds reports whether a write conditioned on expected may replace the
// stored state. Adapters whose backend has no native conditional write use it inside
// their own critical section.
func PreconditionHolds(expected, stored models.ETag, exists bool) bool {
	switch {
	case expected.IsAny():
		return true
	case expected == models.ETagAbsent:
		return !exists
	default:
		return exists && expected == stored
	}
}
