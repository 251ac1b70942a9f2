package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain"
)

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 50, 0},
		{"explicit", "limit=25&offset=100", 25, 100},
		{"capped at max", "limit=9999", 500, 0},
		{"garbage ignored", "limit=abc&offset=-5", 50, 0},
		{"zero limit ignored", "limit=0", 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/markets?"+tt.query, nil)
			opts := parseListOpts(r)
			assert.Equal(t, tt.wantLimit, opts.Limit)
			assert.Equal(t, tt.wantOffset, opts.Offset)
		})
	}
}

func TestParseListOptsTimeBounds(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/markets?since=2024-06-01T00:00:00Z&until=2024-06-02T00:00:00Z", nil)
	opts := parseListOpts(r)

	require.NotNil(t, opts.Since)
	require.NotNil(t, opts.Until)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *opts.Since)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), *opts.Until)

	r = httptest.NewRequest(http.MethodGet, "/markets?since=yesterday", nil)
	opts = parseListOpts(r)
	assert.Nil(t, opts.Since)
}

func TestFieldErrorsFrom(t *testing.T) {
	fe := domain.FieldErrors{"slots": "must be at least 1"}

	got, ok := fieldErrorsFrom(fmt.Errorf("service: validate bet: %w", fe))
	require.True(t, ok)
	assert.Equal(t, fe, got)

	_, ok = fieldErrorsFrom(fmt.Errorf("service: %w", domain.ErrNotFound))
	assert.False(t, ok)

	_, ok = fieldErrorsFrom(nil)
	assert.False(t, ok)
}

func TestWriteErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusConflict, "market closed for betting")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"market closed for betting"}`, rec.Body.String())
}
