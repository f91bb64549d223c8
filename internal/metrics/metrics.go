// Package metrics exposes engine depth gauges and reviewer decision counters to Prometheus
package metrics

import (
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "photoreview"

// StatsSource - то, откуда берутся глубины очередей; реализует engine.Engine
type StatsSource interface {
	Stats() model.EngineStats
}

type Recorder struct {
	draws     prometheus.Counter
	results   prometheus.Counter
	decisions *prometheus.CounterVec
	reclaimed prometheus.Counter
}

// New registers the collectors in reg; gauges are read from src on every scrape
func New(reg prometheus.Registerer, src StatsSource) *Recorder {
	f := promauto.With(reg)

	gauge := func(name, help string, pick func(model.EngineStats) int) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(src.Stats())) })
	}
	gauge("backlog_jobs", "Jobs in the admission queue.", func(s model.EngineStats) int { return s.Backlog })
	gauge("collecting_jobs", "Jobs with draws issued and fewer than k results.", func(s model.EngineStats) int { return s.Collecting })
	gauge("awaiting_jobs", "Jobs with all results, waiting for the reviewer.", func(s model.EngineStats) int { return s.Awaiting })
	gauge("carousel_entries", "Accepted results held for display.", func(s model.EngineStats) int { return s.Carousel })

	return &Recorder{
		draws: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_total",
			Help:      "Draws handed out to workers.",
		}),
		results: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Results accepted from workers.",
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Reviewer decisions split by verdict.",
		}, []string{"verdict"}),
		reclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reclaimed_draws_total",
			Help:      "Draws returned to the queue after their lease expired.",
		}),
	}
}

// Nil-safe: без метрик сервис работает так же

func (r *Recorder) Draw() {
	if r != nil {
		r.draws.Inc()
	}
}

func (r *Recorder) Result() {
	if r != nil {
		r.results.Inc()
	}
}

func (r *Recorder) Decision(v model.Verdict) {
	if r != nil {
		r.decisions.WithLabelValues(string(v)).Inc()
	}
}

func (r *Recorder) Reclaimed(n int) {
	if r != nil && n > 0 {
		r.reclaimed.Add(float64(n))
	}
}
