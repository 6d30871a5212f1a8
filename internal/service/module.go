package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/bus"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/processor"
)

// publisherID names this node in the metadata of every event it ingests.
func publisherID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "eventcore"
	}
	return host + "-" + uuid.NewString()[:8]
}

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			func() (*MetadataEnricher, error) { return NewMetadataEnricher(publisherID(), clock.New()) },
			fx.As(new(Enricher)),
		),
		fx.Annotate(
			NewEventRouter,
			fx.As(new(Router)),
		),
		func(b *bus.Bus, p *processor.Processor, dlq *deadletter.Queue, reader *sdkmetric.ManualReader,
			cfg *config.Config, logger *slog.Logger) *StatsReporter {
			return NewStatsReporter(b, p, dlq, reader, clock.New(), cfg.Stats.Interval, logger.With("component", "stats"))
		},
	),

	// [DECORATION_LAYER] Intercept Enricher to add cross-cutting concerns
	fx.Decorate(func(orig Enricher, logger *slog.Logger) Enricher {
		return &EnricherMiddleware{
			Next:   orig,
			Logger: logger,
		}
	}),

	fx.Invoke(func(lc fx.Lifecycle, r *StatsReporter) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				r.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				r.Stop()
				return nil
			},
		})
	}),
)
