// Package metrics holds the Prometheus collectors for sync runs and webhook
// ingestion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts sync and webhook outcomes. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry  *prometheus.Registry
	syncItems *prometheus.CounterVec
	syncRuns  *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		syncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_sync_items_total",
			Help: "Profiles processed by poll-driven sync runs, by outcome.",
		}, []string{"kind", "outcome"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_sync_runs_total",
			Help: "Sync runs by terminal status.",
		}, []string{"kind", "status"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospect_webhook_events_total",
			Help: "Webhook events by dispatch outcome.",
		}, []string{"kind", "outcome"}),
	}
	r.registry.MustRegister(
		r.syncItems,
		r.syncRuns,
		r.webhooks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) SyncRun(kind, status string, added, updated, failed int) {
	if r == nil {
		return
	}
	r.syncRuns.WithLabelValues(kind, status).Inc()
	r.syncItems.WithLabelValues(kind, "added").Add(float64(added))
	r.syncItems.WithLabelValues(kind, "updated").Add(float64(updated))
	r.syncItems.WithLabelValues(kind, "failed").Add(float64(failed))
}

func (r *Recorder) WebhookEvent(kind, outcome string) {
	if r == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	r.webhooks.WithLabelValues(kind, outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
