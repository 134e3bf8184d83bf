// Package metrics exposes publish, retry and HTTP counters in Prometheus
// format on a private registry.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
)

const namespace = "socpost"

// Recorder owns the registry and every socpost collector.
type Recorder struct {
	registry *prom.Registry

	publishes *prom.CounterVec
	duration  *prom.HistogramVec
	retries   *prom.CounterVec
	requests  *prom.CounterVec
}

var _ publish.Observer = (*Recorder)(nil)

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prom.NewRegistry(),
		publishes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Publish attempts by platform, strategy and outcome.",
		}, []string{"platform", "strategy", "outcome"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Wall time of publish attempts, uploads and polling included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"platform"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry waits scheduled by the retry engine.",
		}, []string{"op", "reason"}),
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests served, by route and status code.",
		}, []string{"method", "route", "status"}),
	}
	r.registry.MustRegister(
		r.publishes, r.duration, r.retries, r.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prom.Registry { return r.registry }

// ObservePublish counts ev by outcome; failures are labelled by error kind.
func (r *Recorder) ObservePublish(_ context.Context, ev publish.Event) {
	outcome := "success"
	if !ev.Result.Success {
		outcome = "error"
		if ev.Result.Error != nil {
			outcome = string(ev.Result.Error.Kind)
		}
	}
	strategy := string(ev.Strategy)
	if strategy == "" {
		strategy = "none"
	}
	r.publishes.WithLabelValues(string(ev.Platform), strategy, outcome).Inc()
	r.duration.WithLabelValues(string(ev.Platform)).Observe(ev.Duration.Seconds())
}

// RetryHook is passed to retry.WithRetryHook.
func (r *Recorder) RetryHook(a retry.Attempt) {
	reason := "transient"
	if a.Limited {
		reason = "rate_limit"
	}
	r.retries.WithLabelValues(a.Op, reason).Inc()
}

// GinMiddleware counts served requests by matched route.
func (r *Recorder) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Timeout: 10 * time.Second})
}
