package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_TrackRequestIncrementsCountersAndHistogram(t *testing.T) {
	m := NewMetrics(zerolog.Nop())
	m.TrackRequest("REQUEST_LOG", "tier1", 200, 42.5, 10)
	m.TrackRequest("REQUEST_LOG", "tier1", 200, 10.0, 5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "gateway_requests_total")
	assert.Contains(t, body, "gateway_rows_returned_total")
}

func TestMetrics_TrackWarehouseHealthSetsGauge(t *testing.T) {
	m := NewMetrics(zerolog.Nop())
	m.TrackWarehouseHealth(true)
	assert.Equal(t, float64(1), m.getGauge("gateway_warehouse_healthy", nil).Value())

	m.TrackWarehouseHealth(false)
	assert.Equal(t, float64(0), m.getGauge("gateway_warehouse_healthy", nil).Value())
}

func TestHistogram_ObserveBucketsCorrectly(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})
	h.Observe(5)
	h.Observe(75)
	h.Observe(500)

	assert.Equal(t, int64(1), h.counts[0])
	assert.Equal(t, int64(1), h.counts[2])
	assert.Equal(t, int64(1), h.counts[3])
	assert.Equal(t, 3, int(h.count))
}
