// Package metrics pairs in-process atomic counters with their OpenTelemetry
// instruments, so Metrics() snapshots and exported metrics never disagree.
package metrics

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/multierr"
)

// NoopMeter is used when no MeterProvider is wired.
func NoopMeter() metric.Meter {
	return noop.NewMeterProvider().Meter("noop")
}

// Counter is a monotonic counter readable in-process.
type Counter struct {
	n    atomic.Uint64
	inst metric.Int64Counter
}

// Inc adds one.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Add adds n.
func (c *Counter) Add(ctx context.Context, n uint64, attrs ...attribute.KeyValue) {
	if n == 0 {
		return
	}
	c.n.Add(n)
	if c.inst != nil {
		c.inst.Add(ctx, int64(n), metric.WithAttributes(attrs...))
	}
}

// Load returns the in-process total.
func (c *Counter) Load() uint64 { return c.n.Load() }

// Registry creates instruments on one meter and collects creation errors.
type Registry struct {
	meter metric.Meter
	err   error
}

func NewRegistry(meter metric.Meter) *Registry {
	if meter == nil {
		meter = NoopMeter()
	}
	return &Registry{meter: meter}
}

// Counter creates a named counter. Instrument errors are deferred to Err.
func (r *Registry) Counter(name, description string) *Counter {
	inst, err := r.meter.Int64Counter(name, metric.WithDescription(description))
	r.err = multierr.Append(r.err, err)
	return &Counter{inst: inst}
}

// Histogram creates a float64 histogram in seconds.
func (r *Registry) Histogram(name, description string) metric.Float64Histogram {
	h, err := r.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit("s"))
	r.err = multierr.Append(r.err, err)
	return h
}

// Gauge registers an observable gauge fed by fn on every collection.
func (r *Registry) Gauge(name, description string, fn func(ctx context.Context, o metric.Int64Observer) error) {
	_, err := r.meter.Int64ObservableGauge(name, metric.WithDescription(description), metric.WithInt64Callback(fn))
	r.err = multierr.Append(r.err, err)
}

// Err returns every error met while creating instruments.
func (r *Registry) Err() error { return r.err }
