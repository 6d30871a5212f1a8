package bus

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/metrics"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

func TestModuleLifecycle(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	var (
		pub Publisher
		sub Subscriber
	)
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			func() *slog.Logger { return discardLogger() },
			func() metric.Meter { return metrics.NoopMeter() },
		),
		deadletter.Module,
		Module,
		fx.Populate(&pub, &sub),
	)
	app.RequireStart()

	var got atomic.Int32
	_, err = sub.Subscribe("system.*", func(context.Context, *model.Event) error {
		got.Add(1)
		return nil
	})
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), model.NewSystemEvent("node", "startup", nil))
	require.NoError(t, err)

	// Stop drains the lanes, so delivery is complete once it returns
	app.RequireStop()
	require.Equal(t, int32(1), got.Load())
}
