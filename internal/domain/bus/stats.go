package bus

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/breaker"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/metrics"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

// degradedUtilization is the lane fill ratio above which the bus reports degraded health.
const degradedUtilization = 0.8

type instruments struct {
	published       *metrics.Counter
	processed       *metrics.Counter
	failed          *metrics.Counter
	retried         *metrics.Counter
	deadLettered    *metrics.Counter
	queueFull       *metrics.Counter
	breakerRejected *metrics.Counter
	unrouted        *metrics.Counter
	workerFaults    *metrics.Counter
	handlerDuration metric.Float64Histogram
}

func newInstruments(meter metric.Meter, depths func() [model.LaneCount]int) (*instruments, error) {
	reg := metrics.NewRegistry(meter)
	inst := &instruments{
		published:       reg.Counter("eventbus.events.published", "Events accepted into a lane"),
		processed:       reg.Counter("eventbus.events.processed", "Events delivered without handler failure"),
		failed:          reg.Counter("eventbus.events.failed", "Deliveries with at least one failing handler"),
		retried:         reg.Counter("eventbus.events.retried", "Redelivery attempts"),
		deadLettered:    reg.Counter("eventbus.events.dead_lettered", "Events moved to the dead-letter queue"),
		queueFull:       reg.Counter("eventbus.queue.full", "Publish attempts rejected by a saturated lane"),
		breakerRejected: reg.Counter("eventbus.breaker.rejected", "Handler calls skipped by an open circuit breaker"),
		unrouted:        reg.Counter("eventbus.events.unrouted", "Events with no matching subscription"),
		workerFaults:    reg.Counter("eventbus.worker.faults", "Recovered worker loop panics"),
		handlerDuration: reg.Histogram("eventbus.handler.duration", "Handler execution time"),
	}
	reg.Gauge("eventbus.queue.depth", "Events waiting per lane", func(_ context.Context, o metric.Int64Observer) error {
		for i, depth := range depths() {
			o.Observe(int64(depth), metric.WithAttributes(laneAttr(model.Lanes[i])))
		}
		return nil
	})
	return inst, reg.Err()
}

func laneAttr(p model.Priority) attribute.KeyValue {
	return attribute.String("lane", p.String())
}

// Metrics is the point-in-time view of the bus.
type Metrics struct {
	Running         bool             `json:"running"`
	Published       uint64           `json:"published"`
	Processed       uint64           `json:"processed"`
	Failed          uint64           `json:"failed"`
	Retried         uint64           `json:"retried"`
	DeadLettered    uint64           `json:"dead_lettered"`
	QueueFull       uint64           `json:"queue_full"`
	BreakerRejected uint64           `json:"breaker_rejected"`
	Unrouted        uint64           `json:"unrouted"`
	WorkerFaults    uint64           `json:"worker_faults"`
	QueueCapacity   int              `json:"queue_capacity"`
	QueueDepths     map[string]int   `json:"queue_depths"`
	Handlers        []HandlerStats   `json:"handlers"`
	DeadLetter      deadletter.Stats `json:"dead_letter"`
}

func (b *Bus) Metrics() Metrics {
	b.mu.RLock()
	running := b.state == stateRunning
	b.mu.RUnlock()

	m := Metrics{
		Running:         running,
		Published:       b.stats.published.Load(),
		Processed:       b.stats.processed.Load(),
		Failed:          b.stats.failed.Load(),
		Retried:         b.stats.retried.Load(),
		DeadLettered:    b.stats.deadLettered.Load(),
		QueueFull:       b.stats.queueFull.Load(),
		BreakerRejected: b.stats.breakerRejected.Load(),
		Unrouted:        b.stats.unrouted.Load(),
		WorkerFaults:    b.stats.workerFaults.Load(),
		QueueCapacity:   b.settings.queueSize,
		QueueDepths:     make(map[string]int, model.LaneCount),
		DeadLetter:      b.dlq.Stats(),
	}
	for i, depth := range b.laneDepths() {
		m.QueueDepths[model.Lanes[i].String()] = depth
	}
	for _, s := range b.reg.all() {
		m.Handlers = append(m.Handlers, s.stats())
	}
	return m
}

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health summarizes whether the bus can keep up.
type Health struct {
	Status  HealthStatus `json:"status"`
	Issues  []string     `json:"issues,omitempty"`
	Metrics Metrics      `json:"metrics"`
}

// HealthCheck reports unhealthy when the bus is not running, degraded when a lane
// is above 80% full or a handler breaker is open, healthy otherwise.
func (b *Bus) HealthCheck() Health {
	m := b.Metrics()
	h := Health{Status: HealthHealthy, Metrics: m}

	if !m.Running {
		h.Status = HealthUnhealthy
		h.Issues = append(h.Issues, "event bus is not running")
		return h
	}

	for _, lane := range model.Lanes {
		depth := m.QueueDepths[lane.String()]
		if float64(depth) > degradedUtilization*float64(m.QueueCapacity) {
			h.Status = HealthDegraded
			h.Issues = append(h.Issues, lane.String()+" lane above 80% capacity")
		}
	}
	for _, hs := range m.Handlers {
		if hs.Breaker != nil && hs.Breaker.State == breaker.StateOpen.String() {
			h.Status = HealthDegraded
			h.Issues = append(h.Issues, "circuit breaker open for handler "+hs.ID)
		}
	}
	return h
}
