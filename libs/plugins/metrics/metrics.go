package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/dangvanduc1999/doffy-cdi/libs/app"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrMetricsDisabled is returned by Init when the container collects no metrics
var ErrMetricsDisabled = errors.New("metrics are disabled in the configuration")

const startTimeKey = "doffy.metrics.start_time"

// MetricsPlugin exposes the container collectors and HTTP request metrics
// on a Prometheus endpoint
type MetricsPlugin struct {
	app.BasePlugin
	path string

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsPlugin serves metrics on path, "/metrics" when empty
func NewMetricsPlugin(path string) *MetricsPlugin {
	if path == "" {
		path = "/metrics"
	}
	return &MetricsPlugin{path: path}
}

// Name returns the plugin name
func (p *MetricsPlugin) Name() string {
	return "metrics"
}

// Version returns the plugin version
func (p *MetricsPlugin) Version() string {
	return "1.0.0"
}

// Init registers the HTTP collectors on the container registry
func (p *MetricsPlugin) Init(a *app.DoffApp) error {
	m := a.GetContainer().Metrics()
	if m == nil {
		return ErrMetricsDisabled
	}
	namespace := a.GetConfig().Metrics.Namespace
	p.registry = m.Registry()
	p.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of handled HTTP requests",
	}, []string{"method", "route", "status"})
	p.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	if err := p.registry.Register(p.requests); err != nil {
		return err
	}
	return p.registry.Register(p.duration)
}

// Routes serves the registry
func (p *MetricsPlugin) Routes(router *gin.Engine) error {
	if p.registry == nil {
		return ErrMetricsDisabled
	}
	router.GET(p.path, gin.WrapH(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})))
	return nil
}

// Hooks returns the request instrumentation hook
func (p *MetricsPlugin) Hooks() []app.LifecycleHook {
	return []app.LifecycleHook{
		&app.LifecycleHookFunc{
			OnRequestFunc: func(c *gin.Context) {
				c.Set(startTimeKey, time.Now())
			},
			OnResponseFunc: p.observe,
		},
	}
}

func (p *MetricsPlugin) observe(c *gin.Context, _ interface{}) {
	if p.requests == nil {
		return
	}
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	p.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	if start, ok := c.Value(startTimeKey).(time.Time); ok {
		p.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
