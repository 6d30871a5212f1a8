package dedup

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

func newTestDedup(t *testing.T, cfg Config) (*Deduplicator, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	d, err := New(cfg, WithClock(mock))
	require.NoError(t, err)
	return d, mock
}

func ticker(price float64) *model.Event {
	return model.NewMarketDataEvent("feed", "BTCUSDT", "binance", "ticker", price, nil)
}

func TestDuplicateWithinTTL(t *testing.T) {
	d, _ := newTestDedup(t, Config{TTL: time.Minute, CacheSize: 100, PricePrecision: 2})

	assert.False(t, d.IsDuplicate(ticker(100.001)))
	assert.True(t, d.IsDuplicate(ticker(100.004)), "rounds to the same price")
	assert.False(t, d.IsDuplicate(ticker(100.01)))

	s := d.Stats()
	assert.Equal(t, uint64(3), s.Checks)
	assert.Equal(t, uint64(1), s.Duplicates)
}

func TestWindowExpires(t *testing.T) {
	d, mock := newTestDedup(t, Config{TTL: time.Minute, CacheSize: 100})

	require.False(t, d.IsDuplicate(ticker(1)))
	mock.Add(30 * time.Second)
	require.True(t, d.IsDuplicate(ticker(1)))

	// the duplicate above must not have refreshed the window
	mock.Add(31 * time.Second)
	assert.False(t, d.IsDuplicate(ticker(1)))
}

func TestDifferentSourceIsNotDuplicate(t *testing.T) {
	d, _ := newTestDedup(t, DefaultConfig())

	a := ticker(5)
	b := ticker(5)
	b.Source = "other-feed"

	assert.False(t, d.IsDuplicate(a))
	assert.False(t, d.IsDuplicate(b))
}

func TestNonMarketEventsHashPayload(t *testing.T) {
	d, _ := newTestDedup(t, DefaultConfig())

	a := model.NewAlertEvent("monitor", "warning", "spread widening")
	b := model.NewAlertEvent("monitor", "warning", "spread widening")
	c := model.NewAlertEvent("monitor", "warning", "latency spike")

	assert.Equal(t, d.Hash(a), d.Hash(b), "ids and timestamps are not part of the fingerprint")
	assert.NotEqual(t, d.Hash(a), d.Hash(c))

	assert.False(t, d.IsDuplicate(a))
	assert.True(t, d.IsDuplicate(b))
	assert.False(t, d.IsDuplicate(c))
}

func TestCacheIsBounded(t *testing.T) {
	d, _ := newTestDedup(t, Config{TTL: time.Hour, CacheSize: 2})

	require.False(t, d.IsDuplicate(ticker(1)))
	require.False(t, d.IsDuplicate(ticker(2)))
	require.False(t, d.IsDuplicate(ticker(3)))

	assert.Equal(t, 2, d.Stats().CacheSize)
	assert.False(t, d.IsDuplicate(ticker(1)), "oldest fingerprint was evicted")
}
