package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusRecorder struct {
	reg           *prom.Registry
	queueOutcomes *prom.CounterVec
	buildDuration *prom.HistogramVec
	enqueued      prom.Counter
	queueEligible prom.Gauge
}

// NewPrometheusRecorder registers the builder metrics on reg, or on a fresh
// registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.queueOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "docbuilder",
		Name:      "queue_outcomes_total",
		Help:      "Queue worker cycles by outcome",
	}, []string{"outcome"})
	pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "docbuilder",
		Name:      "build_duration_seconds",
		Help:      "Duration of one package build",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
	}, []string{"status"})
	pr.enqueued = prom.NewCounter(prom.CounterOpts{
		Namespace: "docbuilder",
		Name:      "enqueued_total",
		Help:      "Releases added to the build queue",
	})
	pr.queueEligible = prom.NewGauge(prom.GaugeOpts{
		Namespace: "docbuilder",
		Name:      "queue_eligible",
		Help:      "Queue entries still eligible for a build",
	})
	reg.MustRegister(pr.queueOutcomes, pr.buildDuration, pr.enqueued, pr.queueEligible)
	return pr
}

func (p *PrometheusRecorder) IncQueueOutcome(outcome OutcomeLabel) {
	if p == nil || p.queueOutcomes == nil {
		return
	}
	p.queueOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(status string, d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddEnqueued(n int) {
	if p == nil || p.enqueued == nil {
		return
	}
	p.enqueued.Add(float64(n))
}

func (p *PrometheusRecorder) SetQueueEligible(n int64) {
	if p == nil || p.queueEligible == nil {
		return
	}
	p.queueEligible.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
