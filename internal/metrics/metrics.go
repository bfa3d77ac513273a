// Package metrics holds the Prometheus metrics of an analysis run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the analysis pipeline.
type Metrics struct {
	registry *prometheus.Registry

	EntriesParsed    prometheus.Counter
	ParseWarnings    prometheus.Counter
	EntriesSelected  prometheus.Counter
	Groups           prometheus.Gauge
	CollaboratorCall *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	GroupStates      *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	RedactionsTotal  *prometheus.CounterVec
	RunDuration      prometheus.Histogram
}

// New creates and registers all pipeline metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		EntriesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logmedic_entries_parsed_total",
			Help: "Total log entries parsed",
		}),
		ParseWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logmedic_parse_warnings_total",
			Help: "Total lines skipped with a parse warning",
		}),
		EntriesSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logmedic_entries_selected_total",
			Help: "Total entries selected as error events",
		}),
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logmedic_groups",
			Help: "Error groups in the current run",
		}),
		CollaboratorCall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logmedic_collaborator_calls_total",
			Help: "Language model calls by stage and outcome",
		}, []string{"stage", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logmedic_retries_total",
			Help: "Retried language model calls by stage",
		}, []string{"stage"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logmedic_call_duration_seconds",
			Help:    "Duration of language model calls",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		GroupStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logmedic_group_final_state_total",
			Help: "Groups by final pipeline state",
		}, []string{"state"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logmedic_submissions_total",
			Help: "Pull request submissions by result",
		}, []string{"result"}),
		RedactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logmedic_redactions_total",
			Help: "Total redactions applied by pattern",
		}, []string{"pattern"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logmedic_run_duration_seconds",
			Help:    "Duration of the analysis run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(
		m.EntriesParsed,
		m.ParseWarnings,
		m.EntriesSelected,
		m.Groups,
		m.CollaboratorCall,
		m.Retries,
		m.CallDuration,
		m.GroupStates,
		m.Submissions,
		m.RedactionsTotal,
		m.RunDuration,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCall records one collaborator attempt. A nil Metrics is a no-op,
// as are the other helpers.
func (m *Metrics) ObserveCall(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CollaboratorCall.WithLabelValues(stage, outcome).Inc()
	m.CallDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Retry counts a retried attempt.
func (m *Metrics) Retry(stage string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(stage).Inc()
}

// FinalState counts a group's terminal state.
func (m *Metrics) FinalState(state string) {
	if m == nil {
		return
	}
	m.GroupStates.WithLabelValues(state).Inc()
}

// Submission counts a submission result.
func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
}

// Redaction counts a redacted match; it fits redact.Redactor.SetOnRedact.
func (m *Metrics) Redaction(pattern string) {
	if m == nil {
		return
	}
	m.RedactionsTotal.WithLabelValues(pattern).Inc()
}

// WriteTextfile writes the registry in text exposition format for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
