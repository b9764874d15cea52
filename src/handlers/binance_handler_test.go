package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSyncUnconfigured(t *testing.T) {
	// No API credentials means no sync service behind the import service.
	h := NewBinanceHandler(newTestImportService())

	req := authedRequest(http.MethodPost, "/binance/sync", nil, 7001)
	rr := httptest.NewRecorder()
	h.HandleSync(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleSyncValidation(t *testing.T) {
	h := NewBinanceHandler(newTestImportService())

	body := strings.NewReader(`{"start_date":"not-a-date"}`)
	req := authedRequest(http.MethodPost, "/binance/sync", body, 7002)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandleSync(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body = strings.NewReader(`{"start_date":"2023-06-01","end_date":"2023-01-01"}`)
	req = authedRequest(http.MethodPost, "/binance/sync", body, 7002)
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	h.HandleSync(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestParseSyncDate(t *testing.T) {
	parsed, err := parseSyncDate("2023-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC), parsed)

	parsed, err = parseSyncDate("2023-06-01T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.June, 1, 12, 30, 0, 0, time.UTC), parsed)

	_, err = parseSyncDate("June 1st")
	assert.Error(t, err)
}
