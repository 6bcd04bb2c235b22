package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("documents: quantity: %w", shared.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("inventory: material 3: %w", shared.ErrReference), http.StatusUnprocessableEntity},
		{fmt.Errorf("numbering: %w", shared.ErrConflict), http.StatusConflict},
		{fmt.Errorf("accounting: %w", shared.ErrAlreadyPosted), http.StatusConflict},
		{fmt.Errorf("accounting: %w", shared.ErrImbalance), http.StatusInternalServerError},
		{shared.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := Classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Detail)

	rec = httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("quantity must be positive: %w", shared.ErrValidation))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Detail, "quantity must be positive")
}
