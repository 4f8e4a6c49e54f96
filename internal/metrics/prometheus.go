package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "airtime_bot"

// PrometheusRecorder exports Recorder events as Prometheus collectors.
type PrometheusRecorder struct {
	registry          *prometheus.Registry
	updates           *prometheus.CounterVec
	updatesDropped    prometheus.Counter
	membershipChecks  *prometheus.CounterVec
	flows             *prometheus.CounterVec
	flowDuration      prometheus.Histogram
	broadcastDelivery *prometheus.CounterVec
}

// NewPrometheus registers the bot collectors plus the Go and process
// collectors on a private registry.
func NewPrometheus() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound events by decoded kind.",
		}, []string{"kind"}),
		updatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "Inbound events dropped because the user queue was full or closed.",
		}),
		membershipChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_checks_total",
			Help:      "Channel membership lookups by result.",
		}, []string{"result"}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "airtime_flows_total",
			Help:      "Airtime request flows by outcome.",
		}, []string{"outcome"}),
		flowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "airtime_flow_duration_seconds",
			Help:      "Wall time from feature selection to result message.",
			Buckets:   []float64{1, 2, 4, 6, 8, 12, 20},
		}),
		broadcastDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast send attempts by status.",
		}, []string{"status"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.updates,
		r.updatesDropped,
		r.membershipChecks,
		r.flows,
		r.flowDuration,
		r.broadcastDelivery,
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// IncUpdate counts an inbound event.
func (r *PrometheusRecorder) IncUpdate(kind string) {
	r.updates.WithLabelValues(kind).Inc()
}

// IncUpdateDropped counts a dropped inbound event.
func (r *PrometheusRecorder) IncUpdateDropped() {
	r.updatesDropped.Inc()
}

// IncMembershipCheck counts a channel lookup.
func (r *PrometheusRecorder) IncMembershipCheck(result string) {
	r.membershipChecks.WithLabelValues(result).Inc()
}

// IncFlow counts a finished airtime flow.
func (r *PrometheusRecorder) IncFlow(outcome string) {
	r.flows.WithLabelValues(outcome).Inc()
}

// ObserveFlowDuration records how long an airtime flow took.
func (r *PrometheusRecorder) ObserveFlowDuration(duration time.Duration) {
	r.flowDuration.Observe(duration.Seconds())
}

// IncBroadcastDelivery counts a broadcast send attempt.
func (r *PrometheusRecorder) IncBroadcastDelivery(status string) {
	r.broadcastDelivery.WithLabelValues(status).Inc()
}
