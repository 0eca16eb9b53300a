package table

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/ports"
	"trailhead/internal/registry/schema"
	"trailhead/pkg/platform/sentinel"
)

func TestClassify(t *testing.T) {
	orgWrite := docError{
		kind: ports.KindOrg, docType: schema.DocTypeOrg, key: "acme",
		op: "upsert org", write: true, expected: models.ETag("e1"),
	}

	tests := []struct {
		name      string
		err       error
		sentinel  error
		retryable bool
		rule      string
		field     string
	}{
		{
			name:     "unique violation lost a race",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "registry_orgs_pkey"},
			sentinel: sentinel.ErrConflict,
		},
		{
			name:     "serialization failure",
			err:      fmt.Errorf("write hunt projection h1: %w", &pgconn.PgError{Code: "40001"}),
			sentinel: sentinel.ErrConflict,
		},
		{
			name:     "deadlock",
			err:      &pq.Error{Code: "40P01"},
			sentinel: sentinel.ErrConflict,
		},
		{
			name:     "not null violation rejects the payload",
			err:      fmt.Errorf("write org summary: %w", &pgconn.PgError{Code: "23502", ColumnName: "org_name"}),
			sentinel: sentinel.ErrInvalid,
			rule:     "constraint",
			field:    "org_name",
		},
		{
			name:     "check violation from lib/pq",
			err:      &pq.Error{Code: "23514", Constraint: "hunt_dates_ordered"},
			sentinel: sentinel.ErrInvalid,
			rule:     "constraint",
			field:    "hunt_dates_ordered",
		},
		{
			name:     "bad date literal",
			err:      &pgconn.PgError{Code: "22008"},
			sentinel: sentinel.ErrInvalid,
			rule:     "data",
		},
		{
			name:      "connection failure",
			err:       &pgconn.PgError{Code: "08006"},
			sentinel:  sentinel.ErrUnavailable,
			retryable: true,
		},
		{
			name:      "admin shutdown",
			err:       &pq.Error{Code: "57P01"},
			sentinel:  sentinel.ErrUnavailable,
			retryable: true,
		},
		{
			name:      "driver error without a sqlstate",
			err:       errors.New("driver: bad connection"),
			sentinel:  sentinel.ErrUnavailable,
			retryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(orgWrite, tt.err)
			require.ErrorIs(t, got, tt.sentinel)
			if tt.sentinel == sentinel.ErrUnavailable {
				assert.Equal(t, tt.retryable, ports.IsRetryable(got))
			}
			if tt.sentinel == sentinel.ErrConflict {
				var ce *ports.ConcurrencyError
				require.ErrorAs(t, got, &ce)
				assert.Equal(t, ports.KindOrg, ce.Kind)
				assert.Equal(t, models.ETag("e1"), ce.Expected)
			}
			if tt.sentinel == sentinel.ErrInvalid {
				assert.NotErrorIs(t, got, sentinel.ErrUnavailable)
				var verr *schema.ValidationError
				require.ErrorAs(t, got, &verr)
				assert.Equal(t, "acme", verr.Key)
				assert.Equal(t, tt.rule, verr.Fields[0].Rule)
				assert.Equal(t, tt.field, verr.Fields[0].Field)
			}
		})
	}
}

func TestClassifyKeepsCancellation(t *testing.T) {
	got := classify(docError{kind: ports.KindApp, docType: schema.DocTypeApp, key: schema.AppKey, op: "upsert app", write: true},
		context.Canceled)
	assert.ErrorIs(t, got, sentinel.ErrUnavailable)
	assert.ErrorIs(t, got, context.Canceled)
}
