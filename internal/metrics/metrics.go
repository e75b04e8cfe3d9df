// Package metrics exposes hook engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yqhp/hookd/internal/hook"
	"yqhp/hookd/internal/model"
)

// Collector records instance lifecycle events and log reads. It implements
// hook.Observer.
type Collector struct {
	launches       *prometheus.CounterVec
	launchFailures *prometheus.CounterVec
	running        *prometheus.GaugeVec
	finished       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	bytesServed    *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ hook.Observer = (*Collector)(nil)

// NewCollector creates a Collector with its own registry. The registry also
// carries the Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "hookd"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_launches_total",
			Help:      "Total number of hook instances spawned",
		},
		[]string{"hook"},
	)

	c.launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_launch_failures_total",
			Help:      "Total number of rejected or failed launch requests",
		},
		[]string{"hook", "code"},
	)

	c.running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hook_instances_running",
			Help:      "Number of instances that have not been finalized",
		},
		[]string{"hook"},
	)

	c.finished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_instances_finished_total",
			Help:      "Total number of finalized instances by result",
		},
		[]string{"hook", "result"},
	)

	c.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hook_instance_duration_seconds",
			Help:      "Wall time from start to finalization",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		},
		[]string{"hook"},
	)

	c.bytesServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_bytes_served_total",
			Help:      "Total number of log bytes returned to clients",
		},
		[]string{"stream"},
	)

	c.registry.MustRegister(
		c.launches,
		c.launchFailures,
		c.running,
		c.finished,
		c.duration,
		c.bytesServed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// InstanceStarted implements hook.Observer.
func (c *Collector) InstanceStarted(_ context.Context, _ uuid.UUID, hookName string, _ *model.Info) error {
	c.launches.WithLabelValues(hookName).Inc()
	c.running.WithLabelValues(hookName).Inc()
	return nil
}

// UnknownHook is the hook label of launches naming a hook that is not configured.
const UnknownHook = "unknown"

// LaunchFailed implements hook.Observer. Names of unconfigured hooks come from
// clients and are folded into UnknownHook.
func (c *Collector) LaunchFailed(_ context.Context, hookName string, code hook.ErrorCode) error {
	if code == hook.ErrCodeNotFound {
		hookName = UnknownHook
	}
	c.launchFailures.WithLabelValues(hookName, string(code)).Inc()
	return nil
}

// InstanceFinished implements hook.Observer.
func (c *Collector) InstanceFinished(_ context.Context, _ uuid.UUID, hookName string, info *model.Info) error {
	c.running.WithLabelValues(hookName).Dec()
	c.finished.WithLabelValues(hookName, info.Result()).Inc()
	c.duration.WithLabelValues(hookName).Observe(info.Duration().Seconds())
	return nil
}

// LogBytesServed records n bytes of stream returned to a client.
func (c *Collector) LogBytesServed(stream model.Stream, n int) {
	c.bytesServed.WithLabelValues(string(stream)).Add(float64(n))
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
