package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

func (p *Processor) laneLoop(lane model.Priority, ch <-chan *model.Batch) {
	for b := range ch {
		if p.runCtx.Err() != nil {
			// [FORCED_SHUTDOWN] stop deadline passed, nothing more reaches handlers
			p.deadLetterBatch(b, deadletter.ReasonShutdown, ErrStopped)
			continue
		}
		p.processBatch(p.runCtx, b)
	}
	p.logger.Debug("BATCH_LANE_CLOSED", "lane", lane.String())
}

// processBatch groups b by exact type and hands each group to every matching
// handler. b and its events go back to the pool afterwards, whatever happened.
func (p *Processor) processBatch(ctx context.Context, b *model.Batch) {
	lane := b.Priority
	size := b.Len()

	defer func() {
		if r := recover(); r != nil {
			p.stats.workerFaults.Inc(ctx)
			p.logger.Error("BATCH_PROCESSING_FAULT",
				"err", r,
				"stack", string(debug.Stack()),
				"batch_id", b.ID,
				"batch_key", b.Key.String(),
			)
		}
		p.release(b)
	}()

	for _, group := range b.GroupByType() {
		regs := p.match(group.Type)
		if len(regs) == 0 {
			p.stats.unrouted.Add(ctx, uint64(len(group.Events)))
			continue
		}
		for _, r := range regs {
			p.invoke(ctx, r, group.Type, group.Events)
		}
	}

	p.stats.batchesProcessed.Inc(ctx, laneAttr(lane))
	p.stats.batchedEvents.Add(ctx, uint64(size))
	p.stats.processed.Add(ctx, uint64(size), laneAttr(lane))
}

// invoke runs one handler with panic recovery. Handler failures are logged
// and counted; batched events are not retried.
func (p *Processor) invoke(ctx context.Context, r *registration, eventType string, events []*model.Event) {
	start := p.clock.Now()
	var err error

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("handler panic: %v", rec)
				p.logger.Error("BATCH_HANDLER_PANIC",
					"err", rec,
					"stack", string(debug.Stack()),
					"handler_id", r.id,
				)
			}
		}()
		err = r.handler(ctx, events)
	}()

	elapsed := p.clock.Since(start)
	r.calls.Add(1)
	r.events.Add(uint64(len(events)))
	r.totalNanos.Add(int64(elapsed))
	p.stats.handlerDuration.Record(ctx, elapsed.Seconds())

	if err != nil {
		r.errors.Add(1)
		p.stats.handlerErrors.Inc(ctx)
		p.logger.Warn("BATCH_HANDLER_FAILED",
			"err", err,
			"handler_id", r.id,
			"pattern", r.pattern,
			"event_type", eventType,
			"events", len(events),
			"elapsed", elapsed.Round(time.Microsecond),
		)
	}
}
