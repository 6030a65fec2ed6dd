package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "too many requests", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	require.Equal(t, CodeValidation, base.Code())
	require.Equal(t, "missing foo", base.Message())
	require.Nil(t, base.Details())

	base.WithDetails(map[string]any{"field": "foo"})
	require.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, CodeConflict, wrapped.Code())
	require.Contains(t, wrapped.Error(), "boom")
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "no variant"))
	got := As(err)
	require.NotNil(t, got)
	require.Equal(t, CodeNotFound, got.Code())
	require.Nil(t, As(nil))
}

func TestHasCodeWalksNestedTypedErrors(t *testing.T) {
	inner := New(CodeInsufficientStock, "on hand 5, requested 6")
	outer := Wrap(CodeDependency, inner, "deduct order item")

	require.True(t, HasCode(outer, CodeInsufficientStock))
	require.True(t, HasCode(outer, CodeDependency))
	require.False(t, HasCode(outer, CodeNotFound))
	require.False(t, HasCode(stdErrors.New("plain"), CodeInternal))
}

func TestIsRetryable(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.True(t, IsRetryable(stdErrors.New("connection reset")))
	require.True(t, IsRetryable(New(CodeDependency, "lock timeout")))
	require.False(t, IsRetryable(New(CodeInsufficientStock, "short")))
	require.False(t, IsRetryable(New(CodeValidation, "bad")))
}

func TestDumpCapturesPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_inventory_movements_reference", TableName: "inventory_movements"}
	err := Wrap(CodeConflict, fmt.Errorf("insert movement: %w", pgErr), "duplicate movement")

	dump := Dump(err)
	require.Equal(t, CodeConflict, dump.Code)
	require.Equal(t, "23505", dump.PGInfo.Code)
	require.Equal(t, "uq_inventory_movements_reference", dump.Constraint)
	require.GreaterOrEqual(t, len(dump.Chain), 3)

	fields := dump.Fields()
	require.Equal(t, "inventory_movements", fields["pg_table"])
	_, hasDetail := fields["pg_detail"]
	require.False(t, hasDetail)
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	dump := Dump(fmt.Errorf("exec: %w", &pq.Error{Code: "40P01", Message: "deadlock detected"}))
	require.Equal(t, "40P01", dump.PGInfo.Code)
	require.Equal(t, "deadlock detected", dump.Message)
	require.Empty(t, dump.Code)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", Newf(CodeNotFound, "variant %s not found", "SKU-1"))

	require.ErrorIs(t, err, New(CodeNotFound, ""))
	require.NotErrorIs(t, err, New(CodeConflict, ""))
	require.Equal(t, CodeNotFound, CodeOf(err))
	require.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	require.Contains(t, err.Error(), "variant SKU-1 not found")
}

func TestWrapNilCauseActsLikeNew(t *testing.T) {
	err := Wrap(CodeValidation, nil, "quantity must be positive")
	require.Nil(t, err.Unwrap())
	require.Equal(t, "VALIDATION_ERROR: quantity must be positive", err.Error())

	var nilErr *Error
	require.Equal(t, CodeInternal, nilErr.Code())
	require.Nil(t, nilErr.WithDetails("x"))
}
