package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONResponse(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteJSONResponse(rr, map[string]int{"total": 3}, http.StatusOK)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"total":3}`, rr.Body.String())
}

func TestWriteErrorResponse(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteErrorResponse(rr, "bad page", http.StatusBadRequest)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "bad page", resp.Error)
}

func TestIntQueryParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		want    int
		wantErr string
	}{
		{name: "absent uses fallback", query: "", want: 20},
		{name: "blank uses fallback", query: "?pageSize=%20", want: 20},
		{name: "parsed", query: "?pageSize=5", want: 5},
		{name: "negative is parsed", query: "?pageSize=-1", want: -1},
		{name: "not a number", query: "?pageSize=ten", wantErr: "invalid pageSize parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard"+tt.query, nil)
			got, err := IntQueryParam(req, "pageSize", 20)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionalQueryParam(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard/search?login=gin&nickname=", nil)

	value, ok := OptionalQueryParam(req, "login")
	assert.True(t, ok)
	assert.Equal(t, "gin", value)

	value, ok = OptionalQueryParam(req, "nickname")
	assert.True(t, ok)
	assert.Empty(t, value)

	_, ok = OptionalQueryParam(req, "rating")
	assert.False(t, ok)
}
