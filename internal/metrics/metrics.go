// Package metrics exposes Prometheus instrumentation for fetches, pipeline
// stages, runs and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chanlun"

// Metrics bundle.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchedBars   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageOutput   *prometheus.GaugeVec
	runs          *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates the metrics bundle on a private registry that also carries the
// go_* and process_* collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry: reg,
		fetches: newCounterVec(reg, prometheus.CounterOpts{
			Name: "fetch_total", Help: "Bar fetches by provider, interval and outcome",
		}, []string{"provider", "interval", "status"}),
		fetchDuration: newHistVec(reg, prometheus.HistogramOpts{
			Name:    "fetch_seconds",
			Help:    "Bar fetch duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		fetchedBars: newCounterVec(reg, prometheus.CounterOpts{
			Name: "fetched_bars_total", Help: "Bars returned by providers",
		}, []string{"interval"}),
		stageDuration: newHistVec(reg, prometheus.HistogramOpts{
			Name:    "stage_seconds",
			Help:    "Pipeline stage duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"stage"}),
		stageOutput: newGaugeVec(reg, prometheus.GaugeOpts{
			Name: "stage_output_items", Help: "Items produced by the most recent stage run",
		}, []string{"stage"}),
		runs: newCounterVec(reg, prometheus.CounterOpts{
			Name: "runs_total", Help: "Pipeline runs by interval and outcome",
		}, []string{"interval", "status"}),
		lastRun: newGaugeVec(reg, prometheus.GaugeOpts{
			Name: "last_run_timestamp_seconds", Help: "Unix time of the last successful run",
		}, []string{"symbol", "interval"}),
		httpRequests: newCounterVec(reg, prometheus.CounterOpts{
			Name: "http_requests_total", Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		httpDuration: newHistVec(reg, prometheus.HistogramOpts{
			Name:    "http_request_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Convenience helpers to avoid repeating namespace.
func newCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	c := prometheus.NewCounterVec(opts, labels)
	reg.MustRegister(c)
	return c
}

func newGaugeVec(reg prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = namespace
	g := prometheus.NewGaugeVec(opts, labels)
	reg.MustRegister(g)
	return g
}

func newHistVec(reg prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace = namespace
	h := prometheus.NewHistogramVec(opts, labels)
	reg.MustRegister(h)
	return h
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFetch records one provider call.
func (m *Metrics) ObserveFetch(provider, interval string, bars int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(provider, interval, status(err)).Inc()
	m.fetchDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err == nil {
		m.fetchedBars.WithLabelValues(interval).Add(float64(bars))
	}
}

// ObserveStage records one pipeline stage run.
func (m *Metrics) ObserveStage(stage string, in, out int, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageOutput.WithLabelValues(stage).Set(float64(out))
}

// ObserveRun records a finished run for a symbol and interval.
func (m *Metrics) ObserveRun(symbol, interval string, at time.Time, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(interval, status(err)).Inc()
	if err == nil {
		m.lastRun.WithLabelValues(symbol, interval).Set(float64(at.Unix()))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
