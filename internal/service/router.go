package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/bus"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/processor"
)

// EventJournal is the durable audit-trail collaborator. The core only appends;
// storage and queries live outside this service.
type EventJournal interface {
	AppendEvent(ctx context.Context, ev *model.Event) (string, error)
}

// Router is the ingress contract used by transport handlers.
type Router interface {
	Route(ctx context.Context, ev *model.Event) (string, error)
	RouteMany(ctx context.Context, events []*model.Event) ([]string, error)
}

// EventRouter sends latency-sensitive events through the bus and the bulk
// of the stream through the batching processor.
type EventRouter struct {
	bus       bus.Publisher
	processor processor.EventProcessor
	journal   EventJournal
	logger    *slog.Logger
}

func NewEventRouter(pub bus.Publisher, proc processor.EventProcessor, journal EventJournal, logger *slog.Logger) *EventRouter {
	return &EventRouter{bus: pub, processor: proc, journal: journal, logger: logger}
}

// viaBus reports whether ev needs per-event delivery with retries and breakers.
func viaBus(ev *model.Event) bool {
	switch ev.Kind {
	case model.KindTradingSignal, model.KindAlert:
		return true
	}
	return ev.Priority == model.PriorityCritical
}

// Route journals ev and hands it to the bus or the processor.
func (r *EventRouter) Route(ctx context.Context, ev *model.Event) (string, error) {
	// [AUDIT_TRAIL] best effort: a journal outage must not stall trading flow
	if _, err := r.journal.AppendEvent(ctx, ev); err != nil {
		r.logger.Warn("JOURNAL_APPEND_FAILED", "err", err, "event_id", ev.ID, "event_type", ev.Type)
	}

	if viaBus(ev) {
		id, err := r.bus.Publish(ctx, ev)
		if err != nil {
			return "", fmt.Errorf("route %s via bus: %w", ev.Type, err)
		}
		return id, nil
	}

	id, err := r.processor.ProcessEvent(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("route %s via processor: %w", ev.Type, err)
	}
	return id, nil
}

// RouteMany routes events in order and combines every failure.
func (r *EventRouter) RouteMany(ctx context.Context, events []*model.Event) ([]string, error) {
	ids := make([]string, len(events))
	var errs error
	for i, ev := range events {
		id, err := r.Route(ctx, ev)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		ids[i] = id
	}
	return ids, errs
}
