package metrics

import (
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherFamily(t *testing.T, r *Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestRegistry_CountersAppearInGather(t *testing.T) {
	r := NewRegistry()

	r.WSMessages.WithLabelValues("ticker").Add(3)
	r.WSMessages.WithLabelValues("kline").Inc()
	r.AlertsEmitted.WithLabelValues("PUMP_LIKELY").Inc()
	r.TrackedSymbols.Set(7)

	ws := gatherFamily(t, r, "surgewatch_ws_messages_total")
	require.NotNil(t, ws)
	require.Len(t, ws.Metric, 2)

	tracked := gatherFamily(t, r, "surgewatch_tracked_symbols")
	require.NotNil(t, tracked)
	assert.Equal(t, 7.0, tracked.Metric[0].GetGauge().GetValue())
}

func TestRegistry_HistogramObservations(t *testing.T) {
	r := NewRegistry()

	r.SweepDuration.Observe(0.2)
	r.SweepDuration.Observe(1.7)

	mf := gatherFamily(t, r, "surgewatch_sweep_duration_seconds")
	require.NotNil(t, mf)
	h := mf.Metric[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 1.9, h.GetSampleSum(), 1e-9)
}

func TestRegistry_IsolatedFromDefaultRegistry(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.SweepSkips.Inc()

	mf := gatherFamily(t, b, "surgewatch_sweep_skips_total")
	require.NotNil(t, mf)
	assert.Zero(t, mf.Metric[0].GetCounter().GetValue())
}

func TestRegistry_HandlerServesScrape(t *testing.T) {
	r := NewRegistry()
	r.RESTThrottles.Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "surgewatch_rest_throttles_total 1")
}
