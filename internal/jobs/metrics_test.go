package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("stock:reconcile").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("stock:reconcile").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:reconcile", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:reconcile", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("stock:reconcile")))
}

func TestGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetDrift(3)
	m.SetExpiring(7)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.driftProducts))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.expiringLots))

	var nilMetrics *Metrics
	nilMetrics.SetDrift(1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
