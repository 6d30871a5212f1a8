package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	infrapubsub "github.com/virtexvirtuoso/Virtuoso-sub009/infra/pubsub"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/bus"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service/dto"
)

func TestAppGraph(t *testing.T) {
	cfg, err := config.LoadConfig("--log.level", "error")
	require.NoError(t, err)

	var (
		router service.Router
		sub    bus.Subscriber
	)
	app := fxtest.New(t, Options(cfg), fx.Populate(&router, &sub))
	app.RequireStart()

	delivered := make(chan string, 1)
	_, err = sub.Subscribe("signal.*", func(_ context.Context, ev *model.Event) error {
		delivered <- ev.ID
		return nil
	})
	require.NoError(t, err)

	ev := model.NewTradingSignalEvent("strategy", "BTCUSDT", "binance", "buy", 0.9)
	_, err = router.Route(context.Background(), ev)
	require.NoError(t, err)
	select {
	case id := <-delivered:
		require.Equal(t, ev.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not delivered through the bus")
	}

	app.RequireStop()
}

func TestDeadLettersForwardedWhileBusDrains(t *testing.T) {
	cfg, err := config.LoadConfig("--log.level", "error")
	require.NoError(t, err)
	require.True(t, cfg.DeadLetter.Forward)
	require.Equal(t, 1, cfg.Bus.WorkersPerLane)

	var (
		pub      bus.Publisher
		sub      bus.Subscriber
		provider infrapubsub.Provider
	)
	app := fxtest.New(t, Options(cfg), fx.Populate(&pub, &sub, &provider))
	app.RequireStart()

	msgs, err := provider.Subscriber().Subscribe(context.Background(), cfg.PubSub.DeadLetterTopic)
	require.NoError(t, err)
	forwarded := make(chan dto.DeadLetterV1, 8)
	go func() {
		for msg := range msgs {
			var dl dto.DeadLetterV1
			if json.Unmarshal(msg.Payload, &dl) == nil {
				forwarded <- dl
			}
			msg.Ack()
		}
	}()

	// the single critical worker stays busy until a forced shutdown cancels it
	entered := make(chan struct{}, 1)
	_, err = sub.Subscribe("signal.*", func(ctx context.Context, _ *model.Event) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return errors.New("handler cancelled")
	})
	require.NoError(t, err)

	busy := model.NewTradingSignalEvent("strategy", "BTCUSDT", "binance", "buy", 0.9, model.WithMaxRetries(0))
	queued := model.NewTradingSignalEvent("strategy", "ETHUSDT", "binance", "sell", 0.8, model.WithMaxRetries(0))
	_, err = pub.Publish(context.Background(), busy)
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), queued)
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = app.Stop(ctx) // the bus reports the missed deadline

	ids := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(ids) < 2 {
		select {
		case dl := <-forwarded:
			ids[dl.Event.ID] = true
		case <-deadline:
			t.Fatalf("forwarded dead letters: %v", ids)
		}
	}
	assert.True(t, ids[busy.ID])
	assert.True(t, ids[queued.ID])
}
