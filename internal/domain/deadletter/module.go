package deadletter

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
)

// Module provides the single dead-letter queue shared by the bus and the processor.
var Module = fx.Module("deadletter",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) *Queue {
		return New(cfg.DeadLetter.Capacity, WithLogger(logger.With("component", "deadletter")))
	}),
)
