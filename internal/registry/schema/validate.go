package schema

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"trailhead/internal/registry/models"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance builds the shared validator. Field paths use JSON names so errors
// point at the persisted shape rather than Go identifiers.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return len(s) <= 64 && slugPattern.MatchString(s)
		})
		v.RegisterStructValidation(huntStructLevel, models.Hunt{})
		validate = v
	})
	return validate
}

// huntStructLevel enforces rules that span fields of one hunt.
func huntStructLevel(sl validator.StructLevel) {
	h := sl.Current().Interface().(models.Hunt)
	// ISO dates compare correctly as strings.
	if h.StartDate != "" && h.EndDate != "" && h.EndDate < h.StartDate {
		sl.ReportError(h.EndDate, "endDate", "EndDate", "notbefore", "startDate")
	}
	if h.TeamMode == models.TeamModeSingle && h.SingleTeamName == "" {
		sl.ReportError(h.SingleTeamName, "singleTeamName", "SingleTeamName", "required_with", "teamMode=single")
	}
	if h.TeamMode == models.TeamModeTeams && len(h.Teams) == 0 {
		sl.ReportError(h.Teams, "teams", "Teams", "min", "1")
	}
}

// IsSlug reports whether s is a valid organization or hunt slug.
func IsSlug(s string) bool {
	return len(s) <= 64 && slugPattern.MatchString(s)
}

// ValidateApp checks an AppDocument against the current schema.
func ValidateApp(doc *models.AppDocument) error {
	if doc == nil {
		return &ValidationError{DocType: DocTypeApp, Key: AppKey, Fields: []FieldError{{Field: "", Rule: "required"}}}
	}
	fields := structFields(doc)
	if doc.SchemaVersion != AppCurrentVersion {
		fields = append(fields, FieldError{Field: "schemaVersion", Value: doc.SchemaVersion, Rule: "eq", Param: AppCurrentVersion})
	}
	if len(fields) > 0 {
		return &ValidationError{DocType: DocTypeApp, Key: AppKey, Fields: fields}
	}
	return nil
}

// ValidateOrg checks an OrgDocument against the current schema and, when key is not
// empty, that the embedded slug matches the storage key.
func ValidateOrg(key string, doc *models.OrgDocument) error {
	if doc == nil {
		return &ValidationError{DocType: DocTypeOrg, Key: key, Fields: []FieldError{{Field: "", Rule: "required"}}}
	}
	fields := structFields(doc)
	if doc.SchemaVersion != OrgCurrentVersion {
		fields = append(fields, FieldError{Field: "schemaVersion", Value: doc.SchemaVersion, Rule: "eq", Param: OrgCurrentVersion})
	}
	if key != "" && doc.Org.OrgSlug != key {
		fields = append(fields, FieldError{Field: "org.orgSlug", Value: doc.Org.OrgSlug, Rule: "eq", Param: key})
	}
	if len(fields) > 0 {
		return &ValidationError{DocType: DocTypeOrg, Key: key, Fields: fields}
	}
	return nil
}

// ValidateHunt checks a single hunt, used before it is merged into a document.
func ValidateHunt(h *models.Hunt) error {
	fields := structFields(h)
	if len(fields) > 0 {
		return &ValidationError{DocType: DocTypeOrg, Key: h.ID, Fields: fields}
	}
	return nil
}

func structFields(doc any) []FieldError {
	err := validatorInstance().Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Rule: "invalid", Value: err.Error()}}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field: trimRoot(fe.Namespace()),
			Value: fe.Value(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return fields
}

// trimRoot drops the leading Go type name validator puts on every namespace.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
