package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.PredictRequests.WithLabelValues("success").Inc()

	assert.Equal(t, 1.0, counterValue(t, a.PredictRequests.WithLabelValues("success")))
	assert.Equal(t, 0.0, counterValue(t, b.PredictRequests.WithLabelValues("success")))

	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { reg.MustRegister(a.collectors()...) })
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
