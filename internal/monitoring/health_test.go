package monitoring

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthChecker_Healthy tests the healthy response
func TestHealthChecker_Healthy(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(true)
	h.UpdateLastRequest(time.Now())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, 200, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.IsConnected)
}

// TestHealthChecker_Degraded tests the disconnected response
func TestHealthChecker_Degraded(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, 503, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
}

// TestHealthChecker_ErrorsCapped tests the bounded error list
func TestHealthChecker_ErrorsCapped(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(true)

	for i := 0; i < 25; i++ {
		h.AddError("boom")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.LessOrEqual(t, len(status.Errors), 10)

	h.ClearErrors()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	var cleared HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	assert.Empty(t, cleared.Errors)
}
