package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/retailops-backend/pkg/errors"
	"github.com/angelmondragon/retailops-backend/pkg/logger"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestSuccessEnvelopes(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"sku": "TSHIRT-RED-M"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"sku":"TSHIRT-RED-M"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteCreated(rec, map[string]int{"on_hand": 4})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"data":{"on_hand":4}}`, rec.Body.String())
}

func TestWriteErrorStatusPerCode(t *testing.T) {
	cases := []struct {
		err         error
		status      int
		message     string
		withDetails bool
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "sku is required").WithDetails(map[string]string{"field": "sku"}), http.StatusBadRequest, "sku is required", true},
		{pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 2 on hand").WithDetails(map[string]int{"on_hand": 2}), http.StatusConflict, "only 2 on hand", true},
		{fmt.Errorf("cancel: %w", pkgerrors.New(pkgerrors.CodeStateConflict, "order already canceled")), http.StatusUnprocessableEntity, "order already canceled", false},
		{pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), http.StatusNotFound, "order not found", false},
		{pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp: refused"), "load stock"), http.StatusServiceUnavailable, "dependency unavailable", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(context.Background(), nil, rec, tc.err)

		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		body := decodeError(t, rec)
		assert.Equal(t, tc.message, body.Message)
		assert.Equal(t, tc.withDetails, body.Details != nil, tc.err.Error())
	}
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: &buf})

	rec := httptest.NewRecorder()
	WriteError(context.Background(), logg, rec, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, string(pkgerrors.CodeInternal), body.Code)
	require.Equal(t, "internal server error", body.Message)
	require.Nil(t, body.Details)
	require.Contains(t, buf.String(), "request.error")
	require.Contains(t, buf.String(), "password authentication failed")
}

func TestWriteErrorNilErr(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnencodablePayloadFallsBackToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, math.Inf(1))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, string(pkgerrors.CodeInternal), decodeError(t, rec).Code)
}
