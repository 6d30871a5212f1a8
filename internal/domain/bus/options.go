package bus

import (
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/breaker"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
)

const (
	DefaultQueueSize      = 10000
	DefaultWorkersPerLane = 1
)

// OverflowPolicy decides what Publish does with an event its lane cannot hold.
type OverflowPolicy uint8

const (
	// OverflowDeadLetter moves the event to the dead-letter queue and reports success.
	OverflowDeadLetter OverflowPolicy = iota
	// OverflowReject returns a *QueueFullError and keeps nothing.
	OverflowReject
)

func (p OverflowPolicy) String() string {
	if p == OverflowReject {
		return "reject"
	}
	return "dead_letter"
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dead_letter", "deadletter", "":
		return OverflowDeadLetter, nil
	case "reject", "raise":
		return OverflowReject, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Option defines a functional configuration type for the Bus.
type Option func(*Bus)

// WithQueueSize sets the [BACKPRESSURE] threshold of every priority lane.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.settings.queueSize = n
		}
	}
}

// WithWorkersPerLane sets how many goroutines drain each lane.
// FIFO order only holds per (lane, worker) pair.
func WithWorkersPerLane(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.settings.workersPerLane = n
		}
	}
}

func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(b *Bus) { b.settings.overflow = p }
}

// WithDeadLetterQueue shares a dead-letter queue with other components.
func WithDeadLetterQueue(q *deadletter.Queue) Option {
	return func(b *Bus) { b.dlq = q }
}

// WithDefaultBreaker protects every subscription that does not bring its own breaker config.
func WithDefaultBreaker(cfg breaker.Config) Option {
	return func(b *Bus) { b.settings.defaultBreaker = &cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

func WithMeter(m metric.Meter) Option {
	return func(b *Bus) { b.meter = m }
}

// SubscribeOption customizes one subscription.
type SubscribeOption func(*subscription)

// WithPriority orders handlers of the same event: higher runs first.
func WithPriority(p int) SubscribeOption {
	return func(s *subscription) { s.priority = p }
}

// WithFilter skips events the predicate rejects.
func WithFilter(f Filter) SubscribeOption {
	return func(s *subscription) { s.filter = f }
}

// WithCircuitBreaker wraps the handler in its own breaker.
func WithCircuitBreaker(cfg breaker.Config) SubscribeOption {
	return func(s *subscription) { s.breakerCfg = &cfg }
}

// WithName labels the subscription in logs and metrics.
func WithName(name string) SubscribeOption {
	return func(s *subscription) { s.name = name }
}
