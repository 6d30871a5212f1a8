package bus

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/breaker"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
)

// NewFromConfig builds the bus from the service configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, dlq *deadletter.Queue, meter metric.Meter) (*Bus, error) {
	policy, err := ParseOverflowPolicy(cfg.Bus.OverflowPolicy)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithQueueSize(cfg.Bus.QueueSize),
		WithWorkersPerLane(cfg.Bus.WorkersPerLane),
		WithOverflowPolicy(policy),
		WithDeadLetterQueue(dlq),
		WithLogger(logger.With("component", "eventbus")),
		WithMeter(meter),
	}
	if cfg.Breaker.Enabled {
		opts = append(opts, WithDefaultBreaker(breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		}))
	}
	return New(opts...)
}

var Module = fx.Module("eventbus",
	fx.Provide(
		NewFromConfig,
		fx.Annotate(
			func(b *Bus) Publisher { return b },
			fx.As(new(Publisher)),
		),
		fx.Annotate(
			func(b *Bus) Subscriber { return b },
			fx.As(new(Subscriber)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, b *Bus) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return b.Start()
			},
			OnStop: func(ctx context.Context) error {
				return b.Stop(ctx) // [GRACEFUL_SHUTDOWN] drain every lane
			},
		})
	}),
)
