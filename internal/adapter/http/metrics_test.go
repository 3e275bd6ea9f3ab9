package http_test

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-risk-service/internal/observability"
)

func counterValue(t *testing.T, m *observability.Metrics) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.RateLimited.Write(&out))
	return out.GetCounter().GetValue()
}
