package blob

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"trailhead/internal/registry/models"
)

var (
	// ErrObjectNotFound is returned by Bucket.Get for a missing key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrPreconditionFailed is returned by Bucket.Put when ifMatch does not hold.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Object is a stored body and the version token it was stored with.
type Object struct {
	Body []byte
	ETag models.ETag
}

// Bucket is a flat key/object store with conditional put, the subset of object
// storage the registry depends on.
//
// Put honors ifMatch like an HTTP If-Match header: models.ETagAny writes
// unconditionally, models.ETagAbsent only creates, any other token must equal the
// stored one.
type Bucket interface {
	Get(ctx context.Context, key string) (Object, error)
	Put(ctx context.Context, key string, body []byte, ifMatch models.ETag) (models.ETag, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// envelope prefixes the body with the 16-byte token it was written with, for backends
// that do not expose a usable version on commit.
func seal(body []byte) ([]byte, models.ETag) {
	id := uuid.New()
	out := make([]byte, 0, len(id)+len(body))
	out = append(out, id[:]...)
	out = append(out, body...)
	return out, etagOf(id)
}

func unseal(raw []byte) (Object, error) {
	if len(raw) < 16 {
		return Object{}, errors.New("stored object shorter than its version header")
	}
	id, err := uuid.FromBytes(raw[:16])
	if err != nil {
		return Object{}, err
	}
	body := make([]byte, len(raw)-16)
	copy(body, raw[16:])
	return Object{Body: body, ETag: etagOf(id)}, nil
}

func etagOf(id uuid.UUID) models.ETag {
	return models.ETag(id.String())
}
