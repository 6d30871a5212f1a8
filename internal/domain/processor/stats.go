package processor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/dedup"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/metrics"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/pool"
)

type instruments struct {
	received         *metrics.Counter
	processed        *metrics.Counter
	duplicates       *metrics.Counter
	immediate        *metrics.Counter
	ingressFull      *metrics.Counter
	inlineFallbacks  *metrics.Counter
	handlerErrors    *metrics.Counter
	unrouted         *metrics.Counter
	workerFaults     *metrics.Counter
	deadLettered     *metrics.Counter
	batchesCreated   *metrics.Counter
	batchesProcessed *metrics.Counter
	batchedEvents    *metrics.Counter
	flushedBySize    *metrics.Counter
	flushedByAge     *metrics.Counter
	flushedShutdown  *metrics.Counter
	handlerDuration  metric.Float64Histogram
}

func newInstruments(meter metric.Meter, p *Processor) (*instruments, error) {
	reg := metrics.NewRegistry(meter)
	inst := &instruments{
		received:         reg.Counter("processor.events.received", "Events offered to the processor"),
		processed:        reg.Counter("processor.events.processed", "Events handed to handlers"),
		duplicates:       reg.Counter("processor.events.duplicates", "Events dropped by deduplication"),
		immediate:        reg.Counter("processor.events.immediate", "Events dispatched in the caller"),
		ingressFull:      reg.Counter("processor.ingress.full", "Admissions done inline because the ingress queue was full"),
		inlineFallbacks:  reg.Counter("processor.batches.inline", "Batches processed by the submitter because the lane was full"),
		handlerErrors:    reg.Counter("processor.handler.errors", "Batch handler failures"),
		unrouted:         reg.Counter("processor.events.unrouted", "Events with no matching handler"),
		workerFaults:     reg.Counter("processor.worker.faults", "Recovered worker panics"),
		deadLettered:     reg.Counter("processor.events.dead_lettered", "Events dead-lettered on forced shutdown"),
		batchesCreated:   reg.Counter("processor.batches.created", "Batches opened"),
		batchesProcessed: reg.Counter("processor.batches.processed", "Batches handed to handlers"),
		batchedEvents:    reg.Counter("processor.batches.events", "Events carried by processed batches"),
		flushedBySize:    reg.Counter("processor.batches.flushed_size", "Batches flushed on reaching the size limit"),
		flushedByAge:     reg.Counter("processor.batches.flushed_age", "Batches flushed on reaching the age limit"),
		flushedShutdown:  reg.Counter("processor.batches.flushed_shutdown", "Batches flushed by shutdown"),
		handlerDuration:  reg.Histogram("processor.handler.duration", "Batch handler execution time"),
	}
	reg.Gauge("processor.batches.active", "Batches still accepting events", func(_ context.Context, o metric.Int64Observer) error {
		o.Observe(int64(p.activeBatches()))
		return nil
	})
	reg.Gauge("processor.queue.depth", "Batches waiting per lane", func(_ context.Context, o metric.Int64Observer) error {
		for i, lane := range model.Lanes {
			o.Observe(int64(len(p.lanes[i])), metric.WithAttributes(laneAttr(lane)))
		}
		return nil
	})
	return inst, reg.Err()
}

func (s *instruments) flushed(reason string) *metrics.Counter {
	switch reason {
	case flushSize:
		return s.flushedBySize
	case flushAge:
		return s.flushedByAge
	default:
		return s.flushedShutdown
	}
}

func laneAttr(p model.Priority) attribute.KeyValue {
	return attribute.String("lane", p.String())
}

func (p *Processor) activeBatches() int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	return len(p.batches)
}

// HandlerStats describes one batch handler registration.
type HandlerStats struct {
	ID          string        `json:"id"`
	Pattern     string        `json:"pattern"`
	Strategy    string        `json:"strategy"`
	Calls       uint64        `json:"calls"`
	Events      uint64        `json:"events"`
	Errors      uint64        `json:"errors"`
	AvgExecTime time.Duration `json:"avg_exec_time"`
}

func (r *registration) stats() HandlerStats {
	s := HandlerStats{
		ID:       r.id,
		Pattern:  r.pattern,
		Strategy: r.strategy.String(),
		Calls:    r.calls.Load(),
		Events:   r.events.Load(),
		Errors:   r.errors.Load(),
	}
	if s.Calls > 0 {
		s.AvgExecTime = time.Duration(r.totalNanos.Load() / int64(s.Calls))
	}
	return s
}

// Metrics is the point-in-time view of the processor.
type Metrics struct {
	Running          bool             `json:"running"`
	Received         uint64           `json:"received"`
	Processed        uint64           `json:"processed"`
	Duplicates       uint64           `json:"duplicates"`
	Immediate        uint64           `json:"immediate"`
	IngressFull      uint64           `json:"ingress_full"`
	InlineFallbacks  uint64           `json:"inline_fallbacks"`
	HandlerErrors    uint64           `json:"handler_errors"`
	Unrouted         uint64           `json:"unrouted"`
	WorkerFaults     uint64           `json:"worker_faults"`
	DeadLettered     uint64           `json:"dead_lettered"`
	BatchesCreated   uint64           `json:"batches_created"`
	BatchesProcessed uint64           `json:"batches_processed"`
	FlushedBySize    uint64           `json:"flushed_by_size"`
	FlushedByAge     uint64           `json:"flushed_by_age"`
	FlushedShutdown  uint64           `json:"flushed_shutdown"`
	ActiveBatches    int              `json:"active_batches"`
	AvgBatchSize     float64          `json:"avg_batch_size"`
	IngressDepth     int              `json:"ingress_depth"`
	QueueDepths      map[string]int   `json:"queue_depths"`
	Dedup            dedup.Stats      `json:"dedup"`
	Pool             pool.MemoryStats `json:"pool"`
	Handlers         []HandlerStats   `json:"handlers"`
}

func (p *Processor) Metrics() Metrics {
	p.mu.RLock()
	running := p.state == stateRunning
	p.mu.RUnlock()

	m := Metrics{
		Running:          running,
		Received:         p.stats.received.Load(),
		Processed:        p.stats.processed.Load(),
		Duplicates:       p.stats.duplicates.Load(),
		Immediate:        p.stats.immediate.Load(),
		IngressFull:      p.stats.ingressFull.Load(),
		InlineFallbacks:  p.stats.inlineFallbacks.Load(),
		HandlerErrors:    p.stats.handlerErrors.Load(),
		Unrouted:         p.stats.unrouted.Load(),
		WorkerFaults:     p.stats.workerFaults.Load(),
		DeadLettered:     p.stats.deadLettered.Load(),
		BatchesCreated:   p.stats.batchesCreated.Load(),
		BatchesProcessed: p.stats.batchesProcessed.Load(),
		FlushedBySize:    p.stats.flushedBySize.Load(),
		FlushedByAge:     p.stats.flushedByAge.Load(),
		FlushedShutdown:  p.stats.flushedShutdown.Load(),
		ActiveBatches:    p.activeBatches(),
		IngressDepth:     len(p.ingress),
		QueueDepths:      make(map[string]int, model.LaneCount),
		Dedup:            p.dedup.Stats(),
		Pool:             p.pool.Stats(),
	}
	if m.BatchesProcessed > 0 {
		m.AvgBatchSize = float64(p.stats.batchedEvents.Load()) / float64(m.BatchesProcessed)
	}
	for i, lane := range model.Lanes {
		m.QueueDepths[lane.String()] = len(p.lanes[i])
	}

	p.handlersMu.RLock()
	for _, regs := range p.exact {
		for _, r := range regs {
			m.Handlers = append(m.Handlers, r.stats())
		}
	}
	for _, r := range p.wildcards {
		m.Handlers = append(m.Handlers, r.stats())
	}
	p.handlersMu.RUnlock()
	return m
}
