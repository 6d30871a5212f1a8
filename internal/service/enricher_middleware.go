package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

// EnricherMiddleware implements [DECORATOR_PATTERN] to add observability
// to the enrichment process without touching business logic.
type EnricherMiddleware struct {
	Next   Enricher
	Logger *slog.Logger
}

// NewEnricherMiddleware creates a new logging decorator for the Enricher.
func NewEnricherMiddleware(next Enricher, logger *slog.Logger) Enricher {
	return &EnricherMiddleware{
		Next:   next,
		Logger: logger,
	}
}

// Enrich wraps a single event enrichment.
func (m *EnricherMiddleware) Enrich(ctx context.Context, ev *model.Event) error {
	start := time.Now()

	err := m.Next.Enrich(ctx, ev)
	if err != nil {
		m.Logger.Warn("EVENT_ENRICHMENT_FAILED",
			"err", err,
			"event_id", ev.ID,
			"event_type", ev.Type,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return err
}

// EnrichAll wraps the concurrent enrichment with execution timing and outcome logging.
func (m *EnricherMiddleware) EnrichAll(ctx context.Context, events []*model.Event) error {
	start := time.Now()

	err := m.Next.EnrichAll(ctx, events)

	// [OBSERVABILITY] Scoped logging for performance auditing
	duration := time.Since(start)
	if err != nil {
		m.Logger.Error("EVENT_ENRICHMENT_BATCH_FAILED",
			"err", err,
			"events", len(events),
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.Logger.Debug("EVENT_ENRICHMENT_BATCH_COMPLETED",
			"events", len(events),
			"duration_ms", duration.Milliseconds(),
		)
	}
	return err
}
