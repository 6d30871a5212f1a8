package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/topic"
)

// [CLASSIFICATION_TABLE]
// Processing priority per kind. Trading signals always take the critical path.
var kindPriority = map[model.EventKind]model.Priority{
	model.KindTradingSignal: model.PriorityCritical,
	model.KindMarketData:    model.PriorityHigh,
	model.KindAnalysis:      model.PriorityHigh,
	model.KindAlert:         model.PriorityNormal,
	model.KindError:         model.PriorityNormal,
	model.KindSystem:        model.PriorityLow,
}

// Default strategy per kind when no handler registration names one.
var kindStrategy = map[model.EventKind]model.Strategy{
	model.KindMarketData: model.StrategyBatchHybrid,
	model.KindAnalysis:   model.StrategyBatchHybrid,
	model.KindAlert:      model.StrategyBatchHybrid,
	model.KindSystem:     model.StrategyBatchTime,
	model.KindError:      model.StrategyBatchTime,
}

// Classify maps an event to its processing priority. Critical-flagged events stay
// critical; generic events keep a valid producer priority.
func Classify(ev *model.Event) model.Priority {
	if ev.Priority == model.PriorityCritical {
		return model.PriorityCritical
	}
	if p, ok := kindPriority[ev.Kind]; ok {
		return p
	}
	if ev.Priority.Valid() {
		return ev.Priority
	}
	return model.PriorityNormal
}

func (p *Processor) strategyFor(ev *model.Event, prio model.Priority) model.Strategy {
	if prio == model.PriorityCritical {
		return model.StrategyImmediate
	}

	if s, ok := p.registeredStrategy(ev.Type); ok {
		return s
	}
	if s, ok := kindStrategy[ev.Kind]; ok {
		return s
	}
	return model.StrategyBatchHybrid
}

// registeredStrategy prefers the newest exact registration, then the first
// matching wildcard.
func (p *Processor) registeredStrategy(eventType string) (model.Strategy, bool) {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()

	if exact := p.exact[eventType]; len(exact) > 0 {
		return exact[len(exact)-1].strategy, true
	}
	for _, r := range p.wildcards {
		if topic.Match(r.pattern, eventType) {
			return r.strategy, true
		}
	}
	return 0, false
}

// ProcessEvent runs the admission pipeline for ev and returns its id.
// The caller keeps ownership of ev; batched processing works on a pooled copy.
func (p *Processor) ProcessEvent(ctx context.Context, ev *model.Event) (string, error) {
	if ev == nil {
		return "", ErrNilEvent
	}

	p.mu.RLock()
	if p.state >= stateDraining {
		p.mu.RUnlock()
		return "", ErrStopped
	}
	p.inflight.Add(1)
	p.mu.RUnlock()
	defer p.inflight.Done()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	p.stats.received.Inc(ctx)

	// 1. [DEDUPLICATION]
	if p.dedup.IsDuplicate(ev) {
		p.stats.duplicates.Inc(ctx)
		return ev.ID, nil
	}

	// 2-3. [CLASSIFICATION] and [STRATEGY_SELECTION]
	prio := Classify(ev)
	strategy := p.strategyFor(ev, prio)
	if strategy == model.StrategyImmediate {
		p.dispatchImmediate(ctx, ev, prio)
		return ev.ID, nil
	}

	pooled := p.pool.AcquireEvent()
	pooled.CopyFrom(ev)
	pooled.Priority = prio

	// 4. [BATCH_ADMISSION] through the workers, or inline when they are saturated
	select {
	case p.ingress <- admission{ev: pooled, strategy: strategy}:
	default:
		p.stats.ingressFull.Inc(ctx)
		p.admit(pooled, strategy)
	}
	return ev.ID, nil
}

// ProcessEvents admits events in order and keeps going past failures.
func (p *Processor) ProcessEvents(ctx context.Context, events []*model.Event) ([]string, error) {
	ids := make([]string, len(events))
	var errs error
	for i, ev := range events {
		id, err := p.ProcessEvent(ctx, ev)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %d: %w", i, err))
			if errors.Is(err, ErrStopped) {
				break
			}
			continue
		}
		ids[i] = id
	}
	return ids, errs
}

func (p *Processor) dispatchImmediate(ctx context.Context, ev *model.Event, prio model.Priority) {
	p.stats.immediate.Inc(ctx)
	regs := p.match(ev.Type)
	if len(regs) == 0 {
		p.stats.unrouted.Inc(ctx)
	}
	events := []*model.Event{ev}
	for _, r := range regs {
		p.invoke(ctx, r, ev.Type, events)
	}
	p.stats.processed.Inc(ctx, laneAttr(prio))
}

func (p *Processor) admissionLoop(worker int) {
	for {
		select {
		case <-p.runCtx.Done():
			return
		case a, ok := <-p.ingress:
			if !ok {
				return
			}
			p.safeAdmit(worker, a)
		}
	}
}

func (p *Processor) safeAdmit(worker int, a admission) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.workerFaults.Inc(p.runCtx)
			p.logger.Error("ADMISSION_WORKER_FAULT",
				"err", r,
				"stack", string(debug.Stack()),
				"worker", worker,
				"event_id", a.ev.ID,
			)
		}
	}()
	p.admit(a.ev, a.strategy)
}

// admit appends ev to the batch of its key, creating the batch lazily,
// and submits the batch once a flush threshold is crossed.
func (p *Processor) admit(ev *model.Event, strategy model.Strategy) {
	key := model.KeyFor(strategy, ev)
	now := p.clock.Now()

	p.batchMu.Lock()
	b, ok := p.batches[key]
	if !ok {
		b = p.pool.AcquireBatch()
		b.Init(key, now)
		p.batches[key] = b
		p.stats.batchesCreated.Inc(p.runCtx)
	}
	b.Add(ev)

	reason := p.flushReason(b, now)
	if reason != "" {
		delete(p.batches, key)
	}
	p.batchMu.Unlock()

	if reason != "" {
		p.submit(b, reason)
	}
}

const (
	flushSize     = "size"
	flushAge      = "age"
	flushShutdown = "shutdown"
)

func (p *Processor) flushReason(b *model.Batch, now time.Time) string {
	full := b.Len() >= p.settings.maxBatchSize
	aged := b.Age(now) >= p.settings.maxBatchAge

	switch b.Key.Strategy {
	case model.StrategyBatchSize:
		if full {
			return flushSize
		}
	case model.StrategyBatchTime:
		if aged {
			return flushAge
		}
	default:
		if full {
			return flushSize
		}
		if aged {
			return flushAge
		}
	}
	return ""
}

func (p *Processor) sweepLoop(ctx context.Context) {
	t := p.clock.Ticker(p.settings.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.sweep()
		}
	}
}

// sweep force-submits every batch older than the maximum age, whatever its strategy,
// so no batch starves from inactivity.
func (p *Processor) sweep() {
	now := p.clock.Now()

	p.batchMu.Lock()
	var aged []*model.Batch
	for key, b := range p.batches {
		if b.Age(now) >= p.settings.maxBatchAge {
			delete(p.batches, key)
			aged = append(aged, b)
		}
	}
	p.batchMu.Unlock()

	for _, b := range aged {
		p.submit(b, flushAge)
	}
}

func (p *Processor) flushAll() int {
	p.batchMu.Lock()
	all := make([]*model.Batch, 0, len(p.batches))
	for key, b := range p.batches {
		delete(p.batches, key)
		all = append(all, b)
	}
	p.batchMu.Unlock()

	for _, b := range all {
		p.submit(b, flushShutdown)
	}
	return len(all)
}

// submit hands b to its priority lane. A full or closed lane means the
// caller processes b inline: correctness over unbounded buffering.
func (p *Processor) submit(b *model.Batch, reason string) {
	p.stats.flushed(reason).Inc(p.runCtx)

	lane := b.Priority.Lane()
	if lane < 0 {
		lane = model.PriorityNormal.Lane()
	}

	p.mu.RLock()
	if p.state != stateStopped {
		select {
		case p.lanes[lane] <- b:
			p.mu.RUnlock()
			return
		default:
		}
	}
	p.mu.RUnlock()

	p.stats.inlineFallbacks.Inc(p.runCtx, laneAttr(model.Lanes[lane]))
	p.processBatch(p.runCtx, b)
}
