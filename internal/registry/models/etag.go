package models

// ETag is the opaque version token a backend attaches to a stored document.
// It is compared for equality only and never parsed.
type ETag string

const (
	// ETagAny disables the write precondition: the write applies whatever is stored.
	ETagAny ETag = ""

	// ETagAbsent matches only when no document is stored under the key. Reads of a
	// missing App document return it alongside the seeded default, so writing the
	// seed back with it creates the document exactly once.
	ETagAbsent ETag = "absent"
)

// IsAny reports whether the token carries no precondition.
func (e ETag) IsAny() bool {
	return e == ETagAny
}

func (e ETag) String() string {
	return string(e)
}

// Versioned pairs a document with the ETag it was read at.
type Versioned[T any] struct {
	Data *T
	ETag ETag
}
