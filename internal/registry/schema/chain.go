package schema

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// DocType names a family of versioned documents.
type DocType string

const (
	DocTypeApp DocType = "app"
	DocTypeOrg DocType = "org"

	// DocTypeMedia tags validation errors for uploads. Media pointers are not
	// versioned on their own.
	DocTypeMedia DocType = "media"
)

// Variant is one decoded document shape. Variants are sealed to this package: each
// knows how to upgrade itself to the next version and only the head variant yields
// the current document type.
type Variant[T any] interface {
	version() string
	upgrade() (Variant[T], error)
	current() (*T, bool)
}

// VersionSpec registers one schema version of a document family.
type VersionSpec[T any] struct {
	Version         string
	Deprecated      bool
	MigrationTarget string // next version; empty for the head
	Decode          func(raw []byte) (Variant[T], error)
}

// VersionInfo is the type-erased view of a registered version.
type VersionInfo struct {
	DocType         DocType
	Version         string
	Deprecated      bool
	MigrationTarget string
	Current         bool
}

// Report describes what Migrate did to a document.
type Report struct {
	FromVersion string
	ToVersion   string
	Steps       []string
	Seeded      bool

	// DroppedFields are stored JSON paths a legacy decoder had no place for.
	DroppedFields []string
}

// Migrated reports whether the stored document was not already at the head version.
func (r Report) Migrated() bool {
	return r.Seeded || len(r.Steps) > 0
}

var (
	errUnknownVersion = errors.New("unknown schema version")
	errNoUpgrade      = errors.New("head version has no upgrade")
)

// Chain holds the ordered versions of one document family.
type Chain[T any] struct {
	mu       sync.RWMutex
	docType  DocType
	versions map[string]VersionSpec[T]
	order    []string
	validate func(key string, doc *T) error
	seed     func() *T
}

// NewChain creates an empty chain. validate runs on every migrated document; seed, if
// set, supplies the document returned for unknown versions instead of failing.
func NewChain[T any](docType DocType, validate func(key string, doc *T) error, seed func() *T) *Chain[T] {
	return &Chain[T]{
		docType:  docType,
		versions: make(map[string]VersionSpec[T]),
		validate: validate,
		seed:     seed,
	}
}

// Register adds a version. Versions must be registered oldest first and every
// non-head version must name the version registered after it as its target.
func (c *Chain[T]) Register(spec VersionSpec[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	version := normalizeVersion(spec.Version)
	if version == "" || spec.Decode == nil {
		return fmt.Errorf("register %s version %q: version and decoder are required", c.docType, spec.Version)
	}
	if _, ok := c.versions[version]; ok {
		return fmt.Errorf("register %s version %q: already registered", c.docType, version)
	}
	if n := len(c.order); n > 0 {
		prev := c.versions[c.order[n-1]]
		if normalizeVersion(prev.MigrationTarget) != version {
			return fmt.Errorf("register %s version %q: previous version %q targets %q", c.docType, version, prev.Version, prev.MigrationTarget)
		}
	}
	spec.Version = version
	spec.MigrationTarget = normalizeVersion(spec.MigrationTarget)
	c.versions[version] = spec
	c.order = append(c.order, version)
	return nil
}

// Schema returns the registered version, if any.
func (c *Chain[T]) Schema(version string) (VersionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.versions[normalizeVersion(version)]
	if !ok {
		return VersionInfo{}, false
	}
	return c.info(spec), true
}

// Current returns the head version.
func (c *Chain[T]) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.order) == 0 {
		return ""
	}
	return c.order[len(c.order)-1]
}

// Versions lists every registered version, oldest first.
func (c *Chain[T]) Versions() []VersionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]VersionInfo, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, c.info(c.versions[v]))
	}
	return out
}

func (c *Chain[T]) info(spec VersionSpec[T]) VersionInfo {
	return VersionInfo{
		DocType:         c.docType,
		Version:         spec.Version,
		Deprecated:      spec.Deprecated,
		MigrationTarget: spec.MigrationTarget,
		Current:         len(c.order) > 0 && c.order[len(c.order)-1] == spec.Version,
	}
}

// Migrate detects the stored version of raw, decodes it and walks the upgrade steps
// until the head version, then validates the result. Migration is pure: nothing is
// written back.
func (c *Chain[T]) Migrate(key string, raw []byte) (*T, Report, error) {
	head := c.Current()
	report := Report{ToVersion: head}

	version, ok := DetectVersion(raw)
	report.FromVersion = version
	c.mu.RLock()
	spec, known := c.versions[version]
	steps := len(c.order)
	c.mu.RUnlock()
	if !ok || !known {
		if c.seed != nil {
			report.Seeded = true
			return c.seed(), report, nil
		}
		return nil, report, c.integrity(key, version, StageDetect, nil, errUnknownVersion)
	}

	variant, err := spec.Decode(raw)
	if err != nil {
		return nil, report, c.integrity(key, version, StageDecode, nil, err)
	}
	if version != head {
		report.DroppedFields = droppedFields(raw, variant)
	}

	for range steps {
		if doc, isHead := variant.current(); isHead {
			if verr := c.validate(key, doc); verr != nil {
				var ve *ValidationError
				if errors.As(verr, &ve) {
					return nil, report, c.integrity(key, version, StageValidate, ve.Fields, nil)
				}
				return nil, report, c.integrity(key, version, StageValidate, nil, verr)
			}
			return doc, report, nil
		}
		from := variant.version()
		next, err := variant.upgrade()
		if err != nil {
			return nil, report, c.integrity(key, version, StageUpgrade, nil, fmt.Errorf("%s: %w", from, err))
		}
		report.Steps = append(report.Steps, from+"->"+next.version())
		variant = next
	}
	return nil, report, c.integrity(key, version, StageUpgrade, nil, errors.New("chain does not reach the head version"))
}

func (c *Chain[T]) integrity(key, from, stage string, fields []FieldError, err error) *MigrationIntegrityError {
	return &MigrationIntegrityError{
		DocType:     c.docType,
		Key:         key,
		FromVersion: from,
		ToVersion:   c.Current(),
		Stage:       stage,
		Fields:      fields,
		Err:         err,
	}
}

// IsKnown reports whether version is registered.
func (c *Chain[T]) IsKnown(version string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.order, normalizeVersion(version))
}
