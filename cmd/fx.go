package cmd

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	infrapubsub "github.com/virtexvirtuoso/Virtuoso-sub009/infra/pubsub"
	"github.com/virtexvirtuoso/Virtuoso-sub009/infra/telemetry"
	pubsubadapter "github.com/virtexvirtuoso/Virtuoso-sub009/internal/adapter/pubsub"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/bus"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/processor"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/handler/ingress"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(Options(cfg))
}

// Options assembles the application graph. Module order is start order;
// fx stops them in reverse, so ingress closes before the domain drains.
func Options(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Provide(
			func() *config.Config { return cfg },
			func() telemetry.Service {
				return telemetry.Service{Name: ServiceName, Namespace: ServiceNamespace, Version: version}
			},
			ProvideLogger,
			ProvideWatermillLogger,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		telemetry.Module,
		infrapubsub.Module,
		deadletter.Module,
		bus.Module,
		processor.Module,
		pubsubadapter.Module,
		service.Module,
		ingress.Module,
	)
}
