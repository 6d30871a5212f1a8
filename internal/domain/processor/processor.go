/*
Package processor implements the high-throughput batching front of the event core.

Admission pipeline per event:
  - Deduplication: near-identical events inside the TTL window are dropped and counted.
  - Classification: the event kind decides the processing priority through a lookup table.
  - Strategy: critical events are dispatched immediately in the caller; everything else
    joins a batch keyed by (strategy, symbol, exchange, type prefix).
  - Flush: a batch leaves when it reaches the size limit, or when the aging sweeper finds
    it older than the age limit.
  - Submission: flushed batches go to the lane of their priority. A full lane makes the
    submitter process the batch inline instead of dropping it.

Handlers receive every event of one exact type in a batch as a single slice. Events and
batches are recycled through the memory pool once all handlers return, so handlers must
not retain them.
*/
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/dedup"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/pool"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/topic"
)

const origin = "processor"

var (
	ErrNilEvent        = errors.New("processor: nil event")
	ErrNilHandler      = errors.New("processor: nil handler")
	ErrEmptyType       = errors.New("processor: empty event type")
	ErrStopped         = errors.New("processor: stopped")
	ErrAlreadyStarted  = errors.New("processor: already started")
	ErrHandlerNotFound = errors.New("processor: handler not found")
)

// BatchHandler receives all events of one exact type from a batch.
// The slice and the events are only valid until the handler returns.
type BatchHandler func(ctx context.Context, events []*model.Event) error

// EventProcessor is the ingress contract consumed by the service layer.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev *model.Event) (string, error)
	ProcessEvents(ctx context.Context, events []*model.Event) ([]string, error)
}

// Interface guard
var _ EventProcessor = (*Processor)(nil)

type runState uint8

const (
	stateIdle runState = iota
	stateRunning
	stateDraining
	stateStopped
)

type admission struct {
	ev       *model.Event
	strategy model.Strategy
}

type registration struct {
	id       string
	pattern  string
	wildcard bool
	strategy model.Strategy
	handler  BatchHandler

	calls      atomic.Uint64
	events     atomic.Uint64
	errors     atomic.Uint64
	totalNanos atomic.Int64
}

// Processor batches, deduplicates and dispatches events to vectorized handlers.
type Processor struct {
	settings settings
	logger   *slog.Logger
	clock    clock.Clock
	meter    metric.Meter
	dedup    *dedup.Deduplicator
	pool     *pool.MemoryPool
	dlq      *deadletter.Queue
	stats    *instruments

	handlersMu sync.RWMutex
	exact      map[string][]*registration
	wildcards  []*registration

	// [BATCH_OWNERSHIP] a batch belongs to this map until it is removed for submission
	batchMu sync.Mutex
	batches map[model.BatchKey]*model.Batch

	ingress chan admission
	lanes   [model.LaneCount]chan *model.Batch

	// [LIFECYCLE_CONTROL]
	mu          sync.RWMutex
	state       runState
	inflight    sync.WaitGroup
	runCtx      context.Context
	runCancel   context.CancelFunc
	sweepCancel context.CancelFunc
	admitters   *errgroup.Group
	sweeper     *errgroup.Group
	processors  *errgroup.Group
}

// New builds an idle processor. Missing collaborators are created with defaults.
func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		settings: settings{
			workers:      DefaultWorkers,
			queueSize:    DefaultQueueSize,
			ingressSize:  DefaultIngressSize,
			maxBatchSize: DefaultMaxBatchSize,
			maxBatchAge:  DefaultMaxBatchAge,
		},
		logger:  slog.Default(),
		clock:   clock.New(),
		exact:   make(map[string][]*registration),
		batches: make(map[model.BatchKey]*model.Batch),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.settings.sweepInterval <= 0 {
		p.settings.sweepInterval = max(p.settings.maxBatchAge/10, time.Millisecond)
	}

	if p.dedup == nil {
		d, err := dedup.New(dedup.DefaultConfig(), dedup.WithClock(p.clock))
		if err != nil {
			return nil, err
		}
		p.dedup = d
	}
	if p.pool == nil {
		p.pool = pool.NewMemoryPool(p.settings.ingressSize, p.settings.queueSize/10)
	}
	if p.dlq == nil {
		p.dlq = deadletter.New(deadletter.DefaultCapacity, deadletter.WithLogger(p.logger))
	}

	p.ingress = make(chan admission, p.settings.ingressSize)
	for i := range p.lanes {
		p.lanes[i] = make(chan *model.Batch, p.settings.queueSize)
	}
	p.runCtx, p.runCancel = context.WithCancel(context.Background())

	stats, err := newInstruments(p.meter, p)
	if err != nil {
		return nil, fmt.Errorf("processor: metrics: %w", err)
	}
	p.stats = stats
	return p, nil
}

// Start launches the admission workers, one batch processor per lane and the aging sweeper.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateDraining, stateStopped:
		return ErrStopped
	}
	p.state = stateRunning

	p.admitters = new(errgroup.Group)
	for w := range p.settings.workers {
		p.admitters.Go(func() error {
			p.admissionLoop(w)
			return nil
		})
	}

	p.processors = new(errgroup.Group)
	for i, lane := range model.Lanes {
		p.processors.Go(func() error {
			p.laneLoop(lane, p.lanes[i])
			return nil
		})
	}

	sweepCtx, cancel := context.WithCancel(p.runCtx)
	p.sweepCancel = cancel
	p.sweeper = new(errgroup.Group)
	p.sweeper.Go(func() error {
		p.sweepLoop(sweepCtx)
		return nil
	})

	p.logger.Info("EVENT_PROCESSOR_STARTED",
		"workers", p.settings.workers,
		"max_batch_size", p.settings.maxBatchSize,
		"max_batch_age", p.settings.maxBatchAge,
		"sweep_interval", p.settings.sweepInterval,
	)
	return nil
}

// Stop refuses new events, drains admission, flushes every active batch and
// waits for the lane processors. If ctx expires first, work is cancelled and
// every event still queued is dead-lettered with ReasonShutdown.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state == stateDraining || p.state == stateStopped {
		p.mu.Unlock()
		return nil
	}
	wasRunning := p.state == stateRunning
	p.state = stateDraining
	p.mu.Unlock()

	var stopErr error
	await := func(wait func()) {
		if err := p.await(ctx, wait); err != nil && stopErr == nil {
			stopErr = fmt.Errorf("processor: stop: %w", err)
		}
	}

	// 1. callers already inside ProcessEvent
	await(p.inflight.Wait)
	close(p.ingress)

	// 2. admission workers, then whatever they left behind
	if wasRunning {
		await(func() { _ = p.admitters.Wait() })
	}
	for a := range p.ingress {
		p.admit(a.ev, a.strategy)
	}

	// 3. no sweeps may race the final flush
	if wasRunning {
		p.sweepCancel()
		_ = p.sweeper.Wait()
	}

	// 4. [FLUSH_ON_SHUTDOWN]
	flushed := p.flushAll()

	p.mu.Lock()
	p.state = stateStopped
	for _, lane := range p.lanes {
		close(lane)
	}
	p.mu.Unlock()

	// 5. lane processors drain what was submitted
	if wasRunning {
		await(func() { _ = p.processors.Wait() })
	}

	deadLettered := 0
	for _, lane := range p.lanes {
		for b := range lane {
			if p.runCtx.Err() == nil {
				p.processBatch(p.runCtx, b)
				continue
			}
			deadLettered += b.Len()
			p.deadLetterBatch(b, deadletter.ReasonShutdown, ErrStopped)
		}
	}
	p.runCancel()

	p.logger.Info("EVENT_PROCESSOR_STOPPED",
		"flushed_batches", flushed,
		"dead_lettered_on_stop", deadLettered,
		"processed", p.stats.processed.Load(),
	)
	return stopErr
}

// await runs wait to completion. If ctx expires first, all work is cancelled
// and await still waits for wait to return before reporting ctx's error.
func (p *Processor) await(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.runCancel()
		<-done
		return ctx.Err()
	}
}

// RegisterHandler subscribes h to an exact type or a wildcard pattern.
// The strategy applies to non-critical events of matching types; the latest
// registration for an exact type wins over wildcards.
func (p *Processor) RegisterHandler(eventType string, h BatchHandler, strategy model.Strategy) (string, error) {
	if eventType == "" {
		return "", ErrEmptyType
	}
	if h == nil {
		return "", ErrNilHandler
	}

	r := &registration{
		id:       uuid.NewString(),
		pattern:  eventType,
		wildcard: topic.IsPattern(eventType),
		strategy: strategy,
		handler:  h,
	}

	p.handlersMu.Lock()
	if r.wildcard {
		p.wildcards = append(slices.Clone(p.wildcards), r)
	} else {
		p.exact[eventType] = append(slices.Clone(p.exact[eventType]), r)
	}
	p.handlersMu.Unlock()

	p.logger.Debug("BATCH_HANDLER_REGISTERED", "handler_id", r.id, "pattern", eventType, "strategy", strategy.String())
	return r.id, nil
}

// UnregisterHandler removes a registration by id.
func (p *Processor) UnregisterHandler(id string) error {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	match := func(r *registration) bool { return r.id == id }
	if i := slices.IndexFunc(p.wildcards, match); i >= 0 {
		p.wildcards = slices.Delete(slices.Clone(p.wildcards), i, i+1)
		return nil
	}
	for typ, regs := range p.exact {
		if i := slices.IndexFunc(regs, match); i >= 0 {
			if len(regs) == 1 {
				delete(p.exact, typ)
			} else {
				p.exact[typ] = slices.Delete(slices.Clone(regs), i, i+1)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHandlerNotFound, id)
}

// match returns exact registrations first, then matching wildcards, each in registration order.
func (p *Processor) match(eventType string) []*registration {
	p.handlersMu.RLock()
	exact := p.exact[eventType]
	wildcards := p.wildcards
	p.handlersMu.RUnlock()

	out := exact
	for _, r := range wildcards {
		if topic.Match(r.pattern, eventType) {
			if len(out) == len(exact) {
				out = slices.Clone(exact)
			}
			out = append(out, r)
		}
	}
	return out
}

// DeadLetters exposes the dead-letter queue used on forced shutdown.
func (p *Processor) DeadLetters() *deadletter.Queue { return p.dlq }

func (p *Processor) deadLetterBatch(b *model.Batch, reason deadletter.Reason, cause error) {
	for _, ev := range b.Events {
		p.stats.deadLettered.Inc(context.Background())
		p.dlq.Add(ev, reason, origin, cause)
	}
	p.release(b)
}

func (p *Processor) release(b *model.Batch) {
	for _, ev := range b.Events {
		p.pool.ReleaseEvent(ev)
	}
	p.pool.ReleaseBatch(b)
}
