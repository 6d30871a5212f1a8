package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

func TestEventV1ToDomain(t *testing.T) {
	in := EventV1{
		ID:         "evt-1",
		Type:       "market_data.ticker",
		Kind:       "market_data",
		Source:     "binance-ws",
		OccurredAt: "2026-03-01T10:00:00.5Z",
		Data:       map[string]any{"symbol": "BTCUSDT", "price": 64000.5},
		Metadata:   map[string]string{"correlation_id": "c-1"},
	}

	ev, err := in.ToDomain(5)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, model.KindMarketData, ev.Kind)
	assert.Equal(t, model.PriorityHigh, ev.Priority, "kind default")
	assert.Equal(t, 5, ev.MaxRetries)
	assert.Equal(t, "BTCUSDT", ev.Symbol())
	assert.Equal(t, "c-1", ev.Meta(model.MetaCorrelation))
	assert.True(t, ev.Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 5e8, time.UTC)))
}

func TestEventV1ToDomainOverrides(t *testing.T) {
	zero := 0
	in := EventV1{Type: "custom.job", Priority: "critical", MaxRetries: &zero}

	ev, err := in.ToDomain(3)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, model.KindGeneric, ev.Kind)
	assert.Equal(t, model.PriorityCritical, ev.Priority)
	assert.Zero(t, ev.MaxRetries)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestEventV1ToDomainRejectsInvalid(t *testing.T) {
	_, err := (&EventV1{}).ToDomain(3)
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = (&EventV1{Type: "x", Kind: "weather"}).ToDomain(3)
	assert.ErrorContains(t, err, "unknown event kind")

	_, err = (&EventV1{Type: "x", Priority: "urgent"}).ToDomain(3)
	assert.ErrorContains(t, err, "unknown priority")
}

func TestFromDomainKeepsIdentity(t *testing.T) {
	ev := model.NewTradingSignalEvent("strategy", "ETHUSDT", "bybit", "buy", 0.8)
	ev.RetryCount = 2

	out := FromDomain(ev)
	assert.Equal(t, ev.ID, out.ID)
	assert.Equal(t, "signal.buy", out.Type)
	assert.Equal(t, "trading_signal", out.Kind)
	assert.Equal(t, "critical", out.Priority)
	assert.Equal(t, 2, out.RetryCount)
	require.NotNil(t, out.MaxRetries)
	assert.Equal(t, model.DefaultMaxRetries, *out.MaxRetries)

	back, err := out.ToDomain(0)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, back.ID)
	assert.Equal(t, ev.Kind, back.Kind)
	assert.True(t, ev.Timestamp.Equal(back.Timestamp))
}
