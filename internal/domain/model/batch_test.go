package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchPriorityTracksMostUrgentEvent(t *testing.T) {
	b := &Batch{}
	b.Init(BatchKey{Strategy: StrategyBatchHybrid}, time.Now())

	b.Add(&Event{Type: "a", Priority: PriorityLow})
	assert.Equal(t, PriorityLow, b.Priority)

	b.Add(&Event{Type: "a", Priority: PriorityHigh})
	b.Add(&Event{Type: "a", Priority: PriorityNormal})
	assert.Equal(t, PriorityHigh, b.Priority)
	assert.Equal(t, 3, b.Len())
}

func TestBatchGroupByTypeKeepsFirstSeenOrder(t *testing.T) {
	b := &Batch{}
	b.Init(BatchKey{}, time.Now())
	for _, typ := range []string{"market_data.ticker", "market_data.trade", "market_data.ticker", "market_data.book"} {
		b.Add(&Event{Type: typ})
	}

	groups := b.GroupByType()
	require.Len(t, groups, 3)
	assert.Equal(t, "market_data.ticker", groups[0].Type)
	assert.Len(t, groups[0].Events, 2)
	assert.Equal(t, "market_data.trade", groups[1].Type)
	assert.Equal(t, "market_data.book", groups[2].Type)
}

func TestBatchAgeAndReset(t *testing.T) {
	start := time.Now()
	b := &Batch{}
	b.Init(BatchKey{Symbol: "BTCUSDT"}, start)
	b.Add(&Event{Type: "a", Priority: PriorityHigh})

	assert.Equal(t, 150*time.Millisecond, b.Age(start.Add(150*time.Millisecond)))
	assert.NotEmpty(t, b.ID)

	b.Reset()
	assert.True(t, b.IsZero())
	assert.Zero(t, b.Len())
}

func TestKeyForSeparatesSymbols(t *testing.T) {
	btc := NewMarketDataEvent("feed", "BTCUSDT", "binance", "ticker", 1, nil)
	eth := NewMarketDataEvent("feed", "ETHUSDT", "binance", "ticker", 1, nil)
	btcTrade := NewMarketDataEvent("feed", "BTCUSDT", "binance", "trade", 1, nil)

	assert.NotEqual(t, KeyFor(StrategyBatchHybrid, btc), KeyFor(StrategyBatchHybrid, eth))
	assert.Equal(t, KeyFor(StrategyBatchHybrid, btc), KeyFor(StrategyBatchHybrid, btcTrade))
	assert.NotEqual(t, KeyFor(StrategyBatchHybrid, btc), KeyFor(StrategyBatchSize, btc))
	assert.Equal(t, "batch_hybrid:BTCUSDT:binance:market_data", KeyFor(StrategyBatchHybrid, btc).String())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("size")
	require.NoError(t, err)
	assert.Equal(t, StrategyBatchSize, s)

	_, err = ParseStrategy("whenever")
	assert.Error(t, err)
}
