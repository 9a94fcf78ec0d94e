// Package metrics exposes Prometheus counters for upload dialogs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mediafield"

// Metrics implements binder.Recorder and tracks live forms.
type Metrics struct {
	dialogsOpened prometheus.Counter
	results       *prometheus.CounterVec
	activeForms   prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dialogsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogs_opened_total",
			Help:      "Upload dialogs opened by trigger clicks.",
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_results_total",
			Help:      "Upload results delivered to forms, by event.",
		}, []string{"event"}),
		activeForms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_forms",
			Help:      "Form sessions currently held in memory.",
		}),
	}
	reg.MustRegister(m.dialogsOpened, m.results, m.activeForms)
	return m
}

func (m *Metrics) DialogOpened() {
	m.dialogsOpened.Inc()
}

// ResultReceived counts a dialog outcome. Failed uploads are counted under
// the "error" event.
func (m *Metrics) ResultReceived(event string, err error) {
	if err != nil {
		event = "error"
	}
	if event == "" {
		event = "unknown"
	}
	m.results.WithLabelValues(event).Inc()
}

func (m *Metrics) FormOpened() {
	m.activeForms.Inc()
}

func (m *Metrics) FormClosed() {
	m.activeForms.Dec()
}
