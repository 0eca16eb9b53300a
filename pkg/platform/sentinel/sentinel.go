package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Adapters and infrastructure layers return
// these (usually through a typed error whose Is method matches them) so services can
// branch on the fact without knowing which backend produced it:
// - ErrNotFound: document does not exist in the store
// - ErrConflict: version precondition (ETag) did not hold
// - ErrUnavailable: backend temporarily unreachable or timed out
// - ErrInvalid: payload failed structural validation before a write
// - ErrIntegrity: stored data could not be brought to the current schema
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrInvalid     = errors.New("invalid")
	ErrIntegrity   = errors.New("integrity violation")
)
