package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	alerts        *prometheus.CounterVec
	subscribers   *prometheus.CounterVec
	sends         *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
	anomalies     prometheus.Counter
	dispatch      prometheus.Histogram
	partial       prometheus.Counter
	errorsTotal   *prometheus.CounterVec
}

// New creates a Prometheus recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrelay_alerts_total",
				Help: "Alerts received, by ingest result",
			},
			[]string{"result"},
		),
		subscribers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrelay_subscriber_outcomes_total",
				Help: "Per-subscriber dispatch outcomes",
			},
			[]string{"status"},
		),
		sends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrelay_channel_sends_total",
				Help: "Channel send attempts, by destination kind and result",
			},
			[]string{"kind", "result"},
		),
		sendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalrelay_channel_send_duration_seconds",
				Help:    "Duration of channel sends in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		invalidations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrelay_invalidations_total",
				Help: "Destination invalidations applied to the directory",
			},
			[]string{"kind", "result"},
		),
		anomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "signalrelay_filter_anomalies_total",
			Help: "Filter evaluations that hit an unknown mode",
		}),
		dispatch: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalrelay_dispatch_duration_seconds",
			Help:    "Duration of dispatch runs in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 30},
		}),
		partial: f.NewCounter(prometheus.CounterOpts{
			Name: "signalrelay_dispatch_partial_total",
			Help: "Dispatch runs cut off by the run deadline",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrelay_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordAlert(result string) {
	r.alerts.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordSubscriber(status string) {
	r.subscribers.WithLabelValues(status).Inc()
}

// RecordSend counts one channel attempt and observes its latency.
func (r *Recorder) RecordSend(kind, result string, seconds float64) {
	r.sends.WithLabelValues(kind, result).Inc()
	r.sendDuration.WithLabelValues(kind).Observe(seconds)
}

func (r *Recorder) RecordInvalidation(kind, result string) {
	r.invalidations.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordFilterAnomaly() {
	r.anomalies.Inc()
}

func (r *Recorder) RecordDispatch(seconds float64, partial bool) {
	r.dispatch.Observe(seconds)
	if partial {
		r.partial.Inc()
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
