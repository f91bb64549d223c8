package metrics

import (
	"testing"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type mockStats struct {
	statsFn func() model.EngineStats
}

func (m *mockStats) Stats() model.EngineStats { return m.statsFn() }

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := model.EngineStats{Backlog: 3, Collecting: 1, Awaiting: 2, Carousel: 5}
	r := New(reg, &mockStats{statsFn: func() model.EngineStats { return stats }})

	r.Draw()
	r.Draw()
	r.Result()
	r.Decision(model.VerdictAccepted)
	r.Decision(model.VerdictRejected)
	r.Decision(model.VerdictRejected)
	r.Reclaimed(4)
	r.Reclaimed(0)

	require.Equal(t, 2.0, testutil.ToFloat64(r.draws))
	require.Equal(t, 1.0, testutil.ToFloat64(r.results))
	require.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("accepted")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("rejected")))
	require.Equal(t, 4.0, testutil.ToFloat64(r.reclaimed))

	families, err := reg.Gather()
	require.NoError(t, err)

	gauges := map[string]float64{}
	for _, mf := range families {
		if mf.GetType().String() == "GAUGE" {
			gauges[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	require.Equal(t, map[string]float64{
		"photoreview_backlog_jobs":     3,
		"photoreview_collecting_jobs":  1,
		"photoreview_awaiting_jobs":    2,
		"photoreview_carousel_entries": 5,
	}, gauges)
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Draw()
	r.Result()
	r.Decision(model.VerdictAccepted)
	r.Reclaimed(1)
}
