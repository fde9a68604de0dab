package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the RBAC engine.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	ChecksTotal   *prometheus.CounterVec
	CheckDuration prometheus.Histogram

	AssignmentMutationsTotal *prometheus.CounterVec

	SweepRunsTotal     *prometheus.CounterVec
	SweepExpiredTotal  prometheus.Counter
	SweepDuration      prometheus.Histogram
	LastSweepTimestamp prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors on registry.
func New(registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbac_permission_checks_total",
				Help: "Total number of permission checks by outcome",
			},
			[]string{"outcome"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rbac_permission_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		AssignmentMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbac_assignment_mutations_total",
				Help: "Total number of assignment mutations",
			},
			[]string{"operation", "status"},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbac_sweep_runs_total",
				Help: "Total number of expiry sweeps",
			},
			[]string{"status"},
		),
		SweepExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rbac_sweep_expired_assignments_total",
				Help: "Total number of assignments expired by the sweep",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rbac_sweep_duration_seconds",
				Help:    "Expiry sweep duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		LastSweepTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rbac_sweep_last_success_timestamp_seconds",
				Help: "Unix time of the last successful sweep",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rbac_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rbac_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	registry.MustRegister(
		c.ChecksTotal,
		c.CheckDuration,
		c.AssignmentMutationsTotal,
		c.SweepRunsTotal,
		c.SweepExpiredTotal,
		c.SweepDuration,
		c.LastSweepTimestamp,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
	)
	return c
}

// ObserveCheck records a check outcome: allowed, denied or error.
func (c *Collector) ObserveCheck(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ChecksTotal.WithLabelValues(outcome).Inc()
	c.CheckDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveMutation(operation string, err error) {
	if c == nil {
		return
	}
	c.AssignmentMutationsTotal.WithLabelValues(operation, status(err)).Inc()
}

func (c *Collector) ObserveSweep(expired int, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.SweepRunsTotal.WithLabelValues(status(err)).Inc()
	c.SweepDuration.Observe(d.Seconds())
	c.SweepExpiredTotal.Add(float64(expired))
	if err == nil {
		c.LastSweepTimestamp.SetToCurrentTime()
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware instruments echo requests. Paths are the route templates.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c == nil {
				return next(ctx)
			}
			start := time.Now()
			err := next(ctx)

			code := ctx.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			}
			path := ctx.Path()
			c.HTTPRequestsTotal.WithLabelValues(ctx.Request().Method, path, strconv.Itoa(code)).Inc()
			c.HTTPRequestDuration.WithLabelValues(ctx.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
