package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountAndServe(t *testing.T) {
	m := New()
	m.Rounds.Inc()
	m.Orders.WithLabelValues("buy", "filled").Inc()
	m.Orders.WithLabelValues("buy", "filled").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rounds))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Orders.WithLabelValues("buy", "filled")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `trader_orders_total{outcome="filled",side="buy"} 2`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
