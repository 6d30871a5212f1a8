package ingress

import (
	"context"
	"errors"
	"fmt"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service/dto"
)

// [ON_EVENT_V1]
// Validates, enriches and routes a single producer event.
func (h *MessageHandler) OnEventV1(ctx context.Context, raw *dto.EventV1) error {
	ev, ok := h.toDomain(ctx, raw)
	if !ok {
		return nil // ACK: invalid envelopes are terminal.
	}

	// [ENRICHMENT]
	if err := h.enricher.Enrich(ctx, ev); err != nil {
		return fmt.Errorf("failed to enrich event: %w", err)
	}

	// [DISPATCH]
	if _, err := h.router.Route(ctx, ev); err != nil {
		return fmt.Errorf("failed to route event: %w", err)
	}
	return nil
}

// [ON_EVENT_BATCH_V1]
// Producers that already batch upstream send many events per message.
// Invalid envelopes are dropped individually; routing failures NACK the whole message.
func (h *MessageHandler) OnEventBatchV1(ctx context.Context, raw *dto.EventBatchV1) error {
	events := make([]*model.Event, 0, len(raw.Events))
	for i := range raw.Events {
		if ev, ok := h.toDomain(ctx, &raw.Events[i]); ok {
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		return nil
	}

	if err := h.enricher.EnrichAll(ctx, events); err != nil {
		return fmt.Errorf("failed to enrich batch: %w", err)
	}

	if _, err := h.router.RouteMany(ctx, events); err != nil {
		return fmt.Errorf("failed to route batch: %w", err)
	}
	return nil
}

func (h *MessageHandler) toDomain(ctx context.Context, raw *dto.EventV1) (*model.Event, bool) {
	ev, err := raw.ToDomain(h.maxRetries)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, dto.ErrMissingType) {
			reason = "missing_type"
		}
		h.logger.Warn("EVENT_REJECTED", "err", err, "reason", reason, "event_id", raw.ID)
		return nil, false
	}

	if cid := CorrelationIDFromContext(ctx); cid != "" && ev.Meta(model.MetaCorrelation) == "" {
		ev.SetMeta(model.MetaCorrelation, cid)
	}
	return ev, true
}
