package table

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
)

// SQLSTATE codes and classes the adapter branches on.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	classDataException = "22"
	classIntegrity     = "23"
)

// sqlState extracts the SQLSTATE and the offending column or constraint from a
// driver error. The pgx driver is the one in use; lib/pq errors are accepted for
// databases opened with the pq driver.
func sqlState(err error) (code, field string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, firstNonEmpty(pgErr.ColumnName, pgErr.ConstraintName), true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), firstNonEmpty(pqErr.Column, pqErr.Constraint), true
	}
	return "", "", false
}

// docError says which document a failed statement was writing.
type docError struct {
	kind     ports.Kind
	docType  schema.DocType
	key      string
	op       string
	write    bool
	expected models.ETag
}

// classify maps a database error onto the registry's error taxonomy:
//
//   - unique violations, serialization failures and deadlocks lost a race with
//     another writer and become ConcurrencyError, which callers re-read and retry;
//   - other integrity violations and data exceptions reject the payload itself
//     and become ValidationError, which retrying cannot fix;
//   - everything else is a BackendUnavailableError.
func classify(d docError, err error) error {
	code, field, ok := sqlState(err)
	if !ok {
		return ports.Unavailable(backendName, d.op, d.write, err)
	}
	switch {
	case code == codeUniqueViolation, code == codeSerializationFailure, code == codeDeadlockDetected:
		return &ports.ConcurrencyError{Kind: d.kind, Key: d.key, Expected: d.expected}
	case len(code) == 5 && (code[:2] == classIntegrity || code[:2] == classDataException):
		rule := "constraint"
		if code[:2] == classDataException {
			rule = "data"
		}
		verr := schema.InvalidField(d.docType, d.key, field, nil, rule)
		verr.Fields[0].Param = code
		return verr
	}
	return ports.Unavailable(backendName, d.op, d.write, err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
