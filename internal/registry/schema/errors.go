package schema

import (
	"fmt"
	"strings"

	"trailhead/pkg/platform/sentinel"
)

// FieldError describes one structural rule a document violated.
type FieldError struct {
	Field string // JSON path, e.g. "hunts[0].stops[2].id"
	Value any    // offending value
	Rule  string // validator tag, e.g. "required", "unique", "datetime"
	Param string // rule parameter, if any
}

func (f FieldError) String() string {
	if f.Param != "" {
		return fmt.Sprintf("%s=%v violates %s(%s)", f.Field, f.Value, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s=%v violates %s", f.Field, f.Value, f.Rule)
}

// ValidationError is returned when a payload fails the current schema before a write.
// It indicates a caller bug and is never retried.
type ValidationError struct {
	DocType DocType
	Key     string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s document %q: %s", e.DocType, e.Key, joinFields(e.Fields))
}

func (e *ValidationError) Is(target error) bool {
	return target == sentinel.ErrInvalid
}

// Migration stages reported by MigrationIntegrityError.
const (
	StageDetect   = "detect"
	StageDecode   = "decode"
	StageUpgrade  = "upgrade"
	StageValidate = "validate"
)

// MigrationIntegrityError is returned when stored data cannot be brought to a valid
// current-schema document. It is fatal for the read and halts any write built on it.
type MigrationIntegrityError struct {
	DocType     DocType
	Key         string
	FromVersion string
	ToVersion   string
	Stage       string
	Fields      []FieldError
	Err         error
}

func (e *MigrationIntegrityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migrate %s document %q from %q to %q failed at %s", e.DocType, e.Key, e.FromVersion, e.ToVersion, e.Stage)
	if len(e.Fields) > 0 {
		b.WriteString(": ")
		b.WriteString(joinFields(e.Fields))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *MigrationIntegrityError) Is(target error) bool {
	return target == sentinel.ErrIntegrity
}

func (e *MigrationIntegrityError) Unwrap() error {
	return e.Err
}

func joinFields(fields []FieldError) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; ")
}

// InvalidField builds a ValidationError for a single field.
func InvalidField(docType DocType, key, field string, value any, rule string) *ValidationError {
	return &ValidationError{
		DocType: docType,
		Key:     key,
		Fields:  []FieldError{{Field: field, Value: value, Rule: rule}},
	}
}
