package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the container's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	BeansRegistered    prometheus.Gauge
	InstancesCreated   *prometheus.CounterVec
	InstancesDestroyed *prometheus.CounterVec
	EventsFired        *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	ObserverDuration   prometheus.Histogram
	ResolutionCache    *prometheus.CounterVec
}

// NewMetrics creates collectors registered on a private registry
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		BeansRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "beans_registered",
			Help:      "Number of registered bean definitions",
		}),
		InstancesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contextual_instances_created_total",
			Help:      "Total number of contextual instances created",
		}, []string{"scope"}),
		InstancesDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contextual_instances_destroyed_total",
			Help:      "Total number of contextual instances destroyed",
		}, []string{"scope"}),
		EventsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fired_total",
			Help:      "Total number of fired events",
		}, []string{"mode"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observer_notifications_total",
			Help:      "Total number of observer notifications",
		}, []string{"outcome"}),
		ObserverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "observer_duration_seconds",
			Help:      "Observer method duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ResolutionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_cache_lookups_total",
			Help:      "Typesafe resolution cache lookups",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.BeansRegistered,
		m.InstancesCreated,
		m.InstancesDestroyed,
		m.EventsFired,
		m.Notifications,
		m.ObserverDuration,
		m.ResolutionCache,
	)

	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) beanRegistered() {
	if m != nil {
		m.BeansRegistered.Inc()
	}
}

func (m *Metrics) instanceCreated(scope Scope) {
	if m != nil {
		m.InstancesCreated.WithLabelValues(string(scope)).Inc()
	}
}

func (m *Metrics) instanceDestroyed(scope Scope) {
	if m != nil {
		m.InstancesDestroyed.WithLabelValues(string(scope)).Inc()
	}
}

func (m *Metrics) eventFired(mode string) {
	if m != nil {
		m.EventsFired.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) notified(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
	if !started.IsZero() {
		m.ObserverDuration.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ResolutionCache.WithLabelValues("hit").Inc()
		return
	}
	m.ResolutionCache.WithLabelValues("miss").Inc()
}
