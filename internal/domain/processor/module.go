package processor

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/dedup"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/pool"
)

// NewFromConfig builds the processor and its dedup window and memory pool.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, dlq *deadletter.Queue, meter metric.Meter) (*Processor, error) {
	d, err := dedup.New(dedup.Config{
		TTL:            cfg.Dedup.TTL,
		CacheSize:      cfg.Dedup.CacheSize,
		PricePrecision: cfg.Dedup.PricePrecision,
	})
	if err != nil {
		return nil, err
	}

	mem := pool.NewMemoryPool(cfg.Pool.Events, cfg.Pool.Batches)
	mem.Prewarm(cfg.Pool.Events/10, cfg.Pool.Batches/10)

	return New(
		WithWorkers(cfg.Processor.Workers),
		WithQueueSize(cfg.Processor.QueueSize),
		WithIngressSize(cfg.Processor.IngressSize),
		WithMaxBatchSize(cfg.Processor.MaxBatchSize),
		WithMaxBatchAge(cfg.Processor.MaxBatchAge),
		WithSweepInterval(cfg.Processor.SweepInterval),
		WithDeduplicator(d),
		WithMemoryPool(mem),
		WithDeadLetterQueue(dlq),
		WithLogger(logger.With("component", "processor")),
		WithMeter(meter),
	)
}

var Module = fx.Module("processor",
	fx.Provide(
		NewFromConfig,
		fx.Annotate(
			func(p *Processor) EventProcessor { return p },
			fx.As(new(EventProcessor)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, p *Processor) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return p.Start()
			},
			OnStop: func(ctx context.Context) error {
				return p.Stop(ctx) // [FLUSH_ON_SHUTDOWN]
			},
		})
	}),
)
