package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TransitionAttempted("TRIP", "APPROVE", "applied")
	m.TransitionAttempted("TRIP", "APPROVE", "applied")
	m.TransitionAttempted("TRIP", "APPROVE", "settled")
	m.RequestCreated("ROUTE")
	m.ObserveHTTP("GET", "/api/v1/trips", 200, 20*time.Millisecond)
	m.EffectFailed("effect.notify_requester")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("TRIP", "APPROVE", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("TRIP", "APPROVE", "settled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsCreated.WithLabelValues("ROUTE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EffectsFailed.WithLabelValues("effect.notify_requester")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["commute_http_request_duration_seconds"])
}

func TestNewMetrics_NilRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(nil).RequestCreated("TRIP")
		NewMetrics(nil).RequestCreated("TRIP")
	})
}
