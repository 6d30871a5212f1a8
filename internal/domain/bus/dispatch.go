package bus

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/breaker"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

// worker drains one lane until it is closed and empty, or the bus is cancelled.
func (b *Bus) worker(lane model.Priority, id int, ch <-chan *model.Event) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b.safeDispatch(lane, id, ev)
		}
	}
}

// safeDispatch isolates a worker-loop fault to the event being handled.
func (b *Bus) safeDispatch(lane model.Priority, worker int, ev *model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.stats.workerFaults.Inc(b.ctx, laneAttr(lane))
			b.logger.Error("WORKER_LOOP_FAULT",
				"err", r,
				"stack", string(debug.Stack()),
				"lane", lane.String(),
				"worker", worker,
				"event_id", ev.ID,
			)
		}
	}()
	b.dispatch(b.ctx, ev)
}

// dispatch delivers ev to every matching subscription in priority order and
// takes exactly one retry decision for the whole delivery.
func (b *Bus) dispatch(ctx context.Context, ev *model.Event) {
	subs := b.reg.match(ev.Type)
	if len(subs) == 0 {
		b.stats.unrouted.Inc(ctx)
		b.stats.processed.Inc(ctx, laneAttr(ev.Priority))
		return
	}

	var failures error
	for _, s := range subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}

		err := b.invoke(ctx, s, ev)
		switch {
		case err == nil:
		case errors.Is(err, breaker.ErrOpen):
			// [DO_NOT_RETRY_NOW] an open breaker is not a handler failure
			b.stats.breakerRejected.Inc(ctx)
			b.logger.Debug("HANDLER_SKIPPED_BREAKER_OPEN", "handler_id", s.id, "event_id", ev.ID, "err", err)
		default:
			failures = multierr.Append(failures, &HandlerError{HandlerID: s.id, EventID: ev.ID, Err: err})
		}
	}

	if failures == nil {
		b.stats.processed.Inc(ctx, laneAttr(ev.Priority))
		return
	}

	b.stats.failed.Inc(ctx, laneAttr(ev.Priority))
	b.logger.Error("EVENT_DELIVERY_FAILED",
		"err", failures,
		"event_id", ev.ID,
		"event_type", ev.Type,
		"retry_count", ev.RetryCount,
		"max_retries", ev.MaxRetries,
	)
	b.retryOrDeadLetter(ctx, ev, failures)
}

// invoke runs one handler behind its breaker and records its stats.
func (b *Bus) invoke(ctx context.Context, s *subscription, ev *model.Event) error {
	call := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("HANDLER_PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"handler_id", s.id,
					"event_id", ev.ID,
				)
				err = &PanicError{Value: r}
			}
		}()
		return s.handler(ctx, ev)
	}

	start := time.Now()
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(call)
	} else {
		err = call()
	}
	if errors.Is(err, breaker.ErrOpen) {
		return err
	}

	elapsed := time.Since(start)
	s.record(elapsed, err)
	b.stats.handlerDuration.Record(ctx, elapsed.Seconds())
	return err
}

// retryOrDeadLetter requeues ev on its own lane without blocking. If the lane is
// full or already closed the retry runs inline on the current worker instead,
// so the retry count is only ever touched by the goroutine holding the event.
func (b *Bus) retryOrDeadLetter(ctx context.Context, ev *model.Event, cause error) {
	if !ev.CanRetry() {
		b.deadLetter(ev, deadletter.ReasonMaxRetries, cause)
		return
	}

	ev.RetryCount++
	b.stats.retried.Inc(ctx, laneAttr(ev.Priority))

	if b.requeue(ev) {
		return
	}
	b.dispatch(ctx, ev)
}

func (b *Bus) requeue(ev *model.Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == stateStopped {
		return false
	}
	select {
	case b.lanes[ev.Priority.Lane()] <- ev:
		return true
	default:
		return false
	}
}
