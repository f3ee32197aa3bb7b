package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterValueTracksIncrements(t *testing.T) {
	m := New(nil)

	assert.Equal(t, float64(0), CounterValue(m.AttemptsTotal))
	m.AttemptsTotal.Inc()
	m.AttemptsTotal.Inc()
	assert.Equal(t, float64(2), CounterValue(m.AttemptsTotal))
}

func TestRejectCounterByGate(t *testing.T) {
	m := New(nil)

	m.AttemptRejects.WithLabelValues("age").Inc()
	m.AttemptRejects.WithLabelValues("age").Inc()
	m.AttemptRejects.WithLabelValues("fee_ratio").Inc()

	assert.Equal(t, float64(2), CounterValue(m.AttemptRejects.WithLabelValues("age")))
	assert.Equal(t, float64(1), CounterValue(m.AttemptRejects.WithLabelValues("fee_ratio")))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.OpportunitiesFound.Add(3)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
