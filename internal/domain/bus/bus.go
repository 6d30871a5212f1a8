/*
Package bus provides the priority-laned in-memory publish/subscribe core.

Key Architectural Concepts:
  - Priority Lanes: every priority class owns a bounded queue and its own workers,
    so a Low backlog can never starve Critical delivery.
  - Ordered Fan-out: exact-type and wildcard subscribers are merged and invoked in
    descending handler priority for each event.
  - Failure Isolation: each subscription may sit behind its own circuit breaker; an open
    breaker skips the handler without consuming the event's retry budget.
  - Bounded Retry: failed deliveries are requeued synchronously by the worker that saw the
    failure until MaxRetries is exhausted, then the event is dead-lettered.
*/
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/breaker"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/topic"
)

const origin = "bus"

// Publisher is the producer-facing side of the bus.
type Publisher interface {
	Publish(ctx context.Context, ev *model.Event) (string, error)
	PublishMany(ctx context.Context, events []*model.Event) ([]string, error)
}

// Subscriber is the consumer-facing side of the bus.
type Subscriber interface {
	Subscribe(pattern string, h Handler, opts ...SubscribeOption) (string, error)
	Unsubscribe(id string) error
}

// Interface guards
var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)

type runState uint8

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

type settings struct {
	queueSize      int
	workersPerLane int
	overflow       OverflowPolicy
	defaultBreaker *breaker.Config
}

// Bus is the priority-laned event bus.
type Bus struct {
	settings settings
	logger   *slog.Logger
	meter    metric.Meter
	dlq      *deadletter.Queue
	reg      *registry
	stats    *instruments

	// [LANE_QUEUES] indexed by model.Priority.Lane()
	lanes [model.LaneCount]chan *model.Event

	// [LIFECYCLE_CONTROL]
	// mu guards state and the closing of lanes. Senders hold the read lock
	// for the duration of a non-blocking send, so a closed lane is never written.
	mu      sync.RWMutex
	state   runState
	ctx     context.Context
	cancel  context.CancelFunc
	workers *errgroup.Group

	fullWarn rate.Sometimes
}

// New builds an idle bus. Events published before Start wait in their lanes.
func New(opts ...Option) (*Bus, error) {
	b := &Bus{
		settings: settings{
			queueSize:      DefaultQueueSize,
			workersPerLane: DefaultWorkersPerLane,
			overflow:       OverflowDeadLetter,
		},
		logger:   slog.Default(),
		reg:      newRegistry(),
		fullWarn: rate.Sometimes{Interval: time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.dlq == nil {
		b.dlq = deadletter.New(deadletter.DefaultCapacity, deadletter.WithLogger(b.logger))
	}
	for i := range b.lanes {
		b.lanes[i] = make(chan *model.Event, b.settings.queueSize)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	stats, err := newInstruments(b.meter, b.laneDepths)
	if err != nil {
		return nil, fmt.Errorf("eventbus: metrics: %w", err)
	}
	b.stats = stats
	return b, nil
}

// Start launches the lane workers.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrBusClosed
	}
	b.state = stateRunning

	b.workers = new(errgroup.Group)
	for i, lane := range model.Lanes {
		for w := range b.settings.workersPerLane {
			b.workers.Go(func() error {
				b.worker(lane, w, b.lanes[i])
				return nil
			})
		}
	}

	b.logger.Info("EVENT_BUS_STARTED",
		"lanes", model.LaneCount,
		"workers_per_lane", b.settings.workersPerLane,
		"queue_size", b.settings.queueSize,
		"overflow", b.settings.overflow.String(),
	)
	return nil
}

// Stop refuses new events, lets the workers drain every lane and returns
// once they are done. If ctx expires first the workers are cancelled and
// whatever is still queued is dead-lettered with ReasonShutdown.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state == stateStopped {
		b.mu.Unlock()
		return nil
	}
	wasRunning := b.state == stateRunning
	b.state = stateStopped
	for _, lane := range b.lanes {
		close(lane)
	}
	b.mu.Unlock()

	var err error
	if wasRunning {
		done := make(chan struct{})
		go func() {
			_ = b.workers.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			// [FORCED_SHUTDOWN] handlers observe cancellation through their context
			b.cancel()
			<-done
			err = fmt.Errorf("eventbus: stop: %w", ctx.Err())
		}
	}
	b.cancel()

	leftover := 0
	for _, lane := range b.lanes {
		for ev := range lane {
			leftover++
			b.deadLetter(ev, deadletter.ReasonShutdown, ErrBusClosed)
		}
	}

	b.logger.Info("EVENT_BUS_STOPPED", "dead_lettered_on_stop", leftover, "processed", b.stats.processed.Load())
	return err
}

// Subscribe registers h under an exact type or a wildcard pattern and returns the handler id.
func (b *Bus) Subscribe(pattern string, h Handler, opts ...SubscribeOption) (string, error) {
	if pattern == "" {
		return "", ErrEmptyPattern
	}
	if h == nil {
		return "", ErrNilHandler
	}

	s := &subscription{
		id:       uuid.NewString(),
		pattern:  pattern,
		wildcard: topic.IsPattern(pattern),
		handler:  h,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breakerCfg == nil {
		s.breakerCfg = b.settings.defaultBreaker
	}
	if s.breakerCfg != nil {
		name := s.name
		if name == "" {
			name = pattern + "#" + s.id[:8]
		}
		s.breaker = breaker.New(name, *s.breakerCfg, breaker.WithLogger(b.logger))
	}

	b.reg.add(s)
	b.logger.Debug("HANDLER_SUBSCRIBED", "handler_id", s.id, "pattern", pattern, "priority", s.priority, "wildcard", s.wildcard)
	return s.id, nil
}

// Unsubscribe removes the handler from both stores and drops its breaker.
func (b *Bus) Unsubscribe(id string) error {
	s, ok := b.reg.remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, id)
	}
	b.logger.Debug("HANDLER_UNSUBSCRIBED", "handler_id", id, "pattern", s.pattern)
	return nil
}

// Publish enqueues ev on the lane of its priority and returns its id.
// Events without a valid priority get the default of their kind.
func (b *Bus) Publish(ctx context.Context, ev *model.Event) (string, error) {
	if ev == nil {
		return "", ErrNilEvent
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if !ev.Priority.Valid() {
		ev.Priority = ev.Kind.DefaultPriority()
	}

	lane := ev.Priority.Lane()

	b.mu.RLock()
	if b.state == stateStopped {
		b.mu.RUnlock()
		return "", ErrBusClosed
	}
	select {
	case b.lanes[lane] <- ev:
		b.mu.RUnlock()
		b.stats.published.Inc(ctx, laneAttr(ev.Priority))
		return ev.ID, nil
	default:
		b.mu.RUnlock()
	}

	return b.overflow(ctx, ev)
}

func (b *Bus) overflow(ctx context.Context, ev *model.Event) (string, error) {
	b.stats.queueFull.Inc(ctx, laneAttr(ev.Priority))
	full := &QueueFullError{Lane: ev.Priority, Capacity: b.settings.queueSize, EventID: ev.ID}

	b.fullWarn.Do(func() {
		b.logger.Warn("LANE_QUEUE_FULL",
			"lane", ev.Priority.String(),
			"capacity", b.settings.queueSize,
			"policy", b.settings.overflow.String(),
			"total_rejections", b.stats.queueFull.Load(),
		)
	})

	if b.settings.overflow == OverflowReject {
		return "", full
	}
	b.deadLetter(ev, deadletter.ReasonQueueFull, full)
	return ev.ID, nil
}

// PublishMany publishes sequentially and keeps going past failures.
// The returned slice is index-aligned with events; failed entries are empty.
func (b *Bus) PublishMany(ctx context.Context, events []*model.Event) ([]string, error) {
	ids := make([]string, len(events))
	var errs error
	for i, ev := range events {
		id, err := b.Publish(ctx, ev)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %d: %w", i, err))
			if errors.Is(err, ErrBusClosed) {
				break
			}
			continue
		}
		ids[i] = id
	}
	return ids, errs
}

// DeadLetters exposes the dead-letter queue for inspection and replay.
func (b *Bus) DeadLetters() *deadletter.Queue { return b.dlq }

func (b *Bus) deadLetter(ev *model.Event, reason deadletter.Reason, cause error) {
	b.stats.deadLettered.Inc(context.Background())
	b.dlq.Add(ev, reason, origin, cause)
}

func (b *Bus) laneDepths() [model.LaneCount]int {
	var depths [model.LaneCount]int
	for i, lane := range b.lanes {
		depths[i] = len(lane)
	}
	return depths
}
