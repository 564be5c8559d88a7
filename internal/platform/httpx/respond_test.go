package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("sale: %w", ErrNotFound), status: http.StatusNotFound},
		{err: Mark(ErrDuplicate, errors.New("invoice exists")), status: http.StatusConflict},
		{err: ErrValidation, status: http.StatusBadRequest},
		{err: ErrUnauthorized, status: http.StatusUnauthorized},
		{err: Mark(ErrUnavailable, errors.New("lock timeout")), status: http.StatusServiceUnavailable},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))
	require.NotContains(t, rec.Body.String(), "password")
}

func TestMarkKeepsMessageAndBothChains(t *testing.T) {
	inner := errors.New("invoice INV-1 already received")
	err := Mark(ErrDuplicate, inner)
	require.Equal(t, inner.Error(), err.Error())
	require.ErrorIs(t, err, ErrDuplicate)
	require.ErrorIs(t, err, inner)
	require.NoError(t, Mark(ErrDuplicate, nil))
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	require.Equal(t, "x", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"other":1}`))
	require.ErrorIs(t, DecodeJSON(req, &dst), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}{"name":"y"}`))
	require.ErrorIs(t, DecodeJSON(req, &dst), ErrValidation)
}
