package processor

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/metric"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/dedup"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/pool"
)

const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 10000
	DefaultIngressSize  = 10000
	DefaultMaxBatchSize = 100
	DefaultMaxBatchAge  = 100 * time.Millisecond
)

type settings struct {
	workers       int
	queueSize     int
	ingressSize   int
	maxBatchSize  int
	maxBatchAge   time.Duration
	sweepInterval time.Duration
}

// Option defines a functional configuration type for the Processor.
type Option func(*Processor)

// WithWorkers sets the number of generic admission workers.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.settings.workers = n
		}
	}
}

// WithQueueSize bounds each priority lane of flushed batches.
func WithQueueSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.settings.queueSize = n
		}
	}
}

// WithIngressSize bounds the admission queue in front of the workers.
func WithIngressSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.settings.ingressSize = n
		}
	}
}

func WithMaxBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.settings.maxBatchSize = n
		}
	}
}

func WithMaxBatchAge(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.settings.maxBatchAge = d
		}
	}
}

// WithSweepInterval sets the [AGING_TIMER] granularity.
// Defaults to a tenth of the maximum batch age.
func WithSweepInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.settings.sweepInterval = d
		}
	}
}

// WithClock drives batch ageing from c, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Processor) { p.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

func WithMeter(m metric.Meter) Option {
	return func(p *Processor) { p.meter = m }
}

func WithDeduplicator(d *dedup.Deduplicator) Option {
	return func(p *Processor) { p.dedup = d }
}

func WithMemoryPool(m *pool.MemoryPool) Option {
	return func(p *Processor) { p.pool = m }
}

// WithDeadLetterQueue shares a dead-letter queue with the bus.
func WithDeadLetterQueue(q *deadletter.Queue) Option {
	return func(p *Processor) { p.dlq = q }
}
