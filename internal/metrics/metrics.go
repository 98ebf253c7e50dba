// Package metrics exposes Prometheus collectors for statement building and
// archive writing.
package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "osputil"

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder owns a registry and the collectors registered on it.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry   *prometheus.Registry
	statements *prometheus.CounterVec
	entries    *prometheus.CounterVec
	bytes      prometheus.Counter
	extracted  prometheus.Counter
}

// New returns a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sql",
				Name:      "statements_total",
				Help:      "Total number of SQL statements built.",
			},
			[]string{"kind", "result"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "zip",
				Name:      "entries_total",
				Help:      "Total number of zip entries added.",
			},
			[]string{"result"},
		),
		bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "zip",
				Name:      "bytes_total",
				Help:      "Uncompressed bytes written into zip archives.",
			},
		),
		extracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "zip",
				Name:      "extracted_entries_total",
				Help:      "Total number of zip entries extracted.",
			},
		),
	}
	r.registry.MustRegister(r.statements, r.entries, r.bytes, r.extracted)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns an HTTP handler serving the recorder's metrics.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteText writes every collected metric to w in the Prometheus text
// exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// ObserveStatement records one built statement of the given kind.
func (r *Recorder) ObserveStatement(kind string, err error) {
	if r == nil {
		return
	}
	r.statements.WithLabelValues(kind, result(err)).Inc()
}

// ObserveEntry records one AddToZip call and the number of bytes it stored.
func (r *Recorder) ObserveEntry(size int64, err error) {
	if r == nil {
		return
	}
	r.entries.WithLabelValues(result(err)).Inc()
	if err == nil && size > 0 {
		r.bytes.Add(float64(size))
	}
}

// ObserveExtract records one extracted entry.
func (r *Recorder) ObserveExtract() {
	if r == nil {
		return
	}
	r.extracted.Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
