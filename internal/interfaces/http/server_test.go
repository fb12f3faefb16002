package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gammafunnel/internal/metrics"
)

func TestHealth_BeforeFirstRun(t *testing.T) {
	srv := NewServer(":0", &Status{}, metrics.New().Gatherer())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_ReportsLastRun(t *testing.T) {
	status := &Status{}
	status.Set(Summary{
		RunID:     "abc",
		AsOf:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Regime:    "YELLOW",
		BMI:       48.2,
		Positions: 5,
	})
	srv := NewServer(":0", status, metrics.New().Gatherer())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.RunID)
	assert.Equal(t, 5, got.Positions)
}

func TestHealth_HaltedRunIsUnavailable(t *testing.T) {
	status := &Status{}
	status.Set(Summary{RunID: "x", Halted: true, Reasons: []string{"circuit breaker active"}})
	srv := NewServer(":0", status, metrics.New().Gatherer())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.New()
	reg.BMI.Set(33)
	srv := NewServer(":0", &Status{}, reg.Gatherer())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gammafunnel_bmi 33")
}

func TestUnknownMethodRejected(t *testing.T) {
	srv := NewServer(":0", &Status{}, metrics.New().Gatherer())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
