package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the rest of the application
type Recorder interface {
	IncRuns(result string)
	ObserveRunDuration(duration time.Duration)
	AddMessagesFetched(n int)
	IncIdentityLookups(result string)
	IncIdentityCacheHits()
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	Handler() http.Handler
}

// Prometheus records into a private registry so tests can build as many as they like
type Prometheus struct {
	registry          *prometheus.Registry
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	messagesFetched   prometheus.Counter
	identityLookups   *prometheus.CounterVec
	identityCacheHits prometheus.Counter
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New returns a Prometheus recorder, or a no-op one when disabled
func New(enabled bool) Recorder {
	if !enabled {
		return Noop{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionmap_runs_total",
			Help: "Analysis runs by result",
		}, []string{"result"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mentionmap_run_duration_seconds",
			Help:    "Wall time of completed analysis runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		messagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "mentionmap_messages_fetched_total",
			Help: "Messages retrieved from channel history",
		}),

		identityLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionmap_identity_lookups_total",
			Help: "Remote user lookups by result",
		}, []string{"result"}),

		identityCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mentionmap_identity_cache_hits_total",
			Help: "User name resolutions served from cache",
		}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionmap_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentionmap_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (p *Prometheus) IncRuns(result string) {
	p.runsTotal.WithLabelValues(result).Inc()
}

func (p *Prometheus) ObserveRunDuration(duration time.Duration) {
	p.runDuration.Observe(duration.Seconds())
}

func (p *Prometheus) AddMessagesFetched(n int) {
	p.messagesFetched.Add(float64(n))
}

func (p *Prometheus) IncIdentityLookups(result string) {
	p.identityLookups.WithLabelValues(result).Inc()
}

func (p *Prometheus) IncIdentityCacheHits() {
	p.identityCacheHits.Inc()
}

func (p *Prometheus) IncRequestsTotal(endpoint string, status int) {
	p.requestsTotal.WithLabelValues(endpoint, statusBucket(status)).Inc()
}

func (p *Prometheus) ObserveRequestDuration(endpoint string, duration time.Duration) {
	p.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop is used when metrics are disabled
type Noop struct{}

func (Noop) IncRuns(_ string)                                 {}
func (Noop) ObserveRunDuration(_ time.Duration)               {}
func (Noop) AddMessagesFetched(_ int)                         {}
func (Noop) IncIdentityLookups(_ string)                      {}
func (Noop) IncIdentityCacheHits()                            {}
func (Noop) IncRequestsTotal(_ string, _ int)                 {}
func (Noop) ObserveRequestDuration(_ string, _ time.Duration) {}
func (Noop) Handler() http.Handler                            { return http.NotFoundHandler() }
