package ports

import (
	"context"
	"errors"
	"fmt"
	"net"

	"trailhead/internal/registry/models"
	"trailhead/pkg/platform/sentinel"
)

// Kind names the entity an error refers to.
type Kind string

const (
	KindApp   Kind = "app"
	KindOrg   Kind = "org"
	KindEvent Kind = "event"
	KindMedia Kind = "media"
)

// ConcurrencyError reports a failed ETag precondition. The stored document changed
// after the caller read it; re-read and re-apply.
type ConcurrencyError struct {
	Kind     Kind
	Key      string
	Expected models.ETag
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s %q: etag precondition %q failed", e.Kind, e.Key, e.Expected)
}

func (e *ConcurrencyError) Is(target error) bool {
	return target == sentinel.ErrConflict
}

// NotFoundError reports an absent document or hunt.
type NotFoundError struct {
	Kind Kind
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == sentinel.ErrNotFound
}

// BackendUnavailableError wraps a transient failure talking to a backend.
// OutcomeUnknown is set for writes that may have been applied; callers must re-read
// before retrying them.
type BackendUnavailableError struct {
	Backend        string
	Op             string
	OutcomeUnknown bool
	Err            error
}

func (e *BackendUnavailableError) Error() string {
	msg := fmt.Sprintf("%s %s unavailable", e.Backend, e.Op)
	if e.OutcomeUnknown {
		msg += " (outcome unknown)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendUnavailableError) Is(target error) bool {
	return target == sentinel.ErrUnavailable
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable builds a BackendUnavailableError. Writes interrupted by a deadline,
// cancellation or network timeout are marked OutcomeUnknown.
func Unavailable(backend, op string, write bool, err error) *BackendUnavailableError {
	return &BackendUnavailableError{
		Backend:        backend,
		Op:             op,
		OutcomeUnknown: write && interrupted(err),
		Err:            err,
	}
}

func interrupted(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConflict reports whether err is a failed ETag precondition.
func IsConflict(err error) bool {
	return errors.Is(err, sentinel.ErrConflict)
}

// IsNotFound reports whether err is a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

// IsRetryable reports whether err is a transient backend failure that can be retried
// without re-reading first.
func IsRetryable(err error) bool {
	var bue *BackendUnavailableError
	return errors.As(err, &bue) && !bue.OutcomeUnknown
}
