package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

type item struct{ n int }

func TestPoolHitsAndMisses(t *testing.T) {
	p := New(2, func() *item { return &item{} }, func(i *item) { i.n = 0 })

	a := p.Get()
	a.n = 7
	p.Put(a)

	b := p.Get()
	assert.Same(t, a, b)
	assert.Zero(t, b.n, "objects come back reset")

	s := p.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
}

func TestPoolDiscardsBeyondCapacity(t *testing.T) {
	p := New(1, func() *item { return &item{} }, func(*item) {})

	p.Put(&item{})
	p.Put(&item{})
	p.Put(nil)

	s := p.Stats()
	assert.Equal(t, uint64(1), s.Returned)
	assert.Equal(t, uint64(1), s.Discarded)
	assert.Equal(t, 1, s.Available)
}

func TestPoolConcurrentUse(t *testing.T) {
	p := New(16, func() *item { return &item{} }, func(i *item) { i.n = 0 })
	p.Prewarm(16)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for range 1000 {
				it := p.Get()
				assert.Zero(t, it.n)
				it.n = g + 1
				p.Put(it)
			}
		})
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, uint64(8000), s.Hits+s.Misses)
}

func TestMemoryPoolReturnsBlankObjects(t *testing.T) {
	m := NewMemoryPool(4, 4)

	ev := m.AcquireEvent()
	ev.CopyFrom(model.NewMarketDataEvent("feed", "BTCUSDT", "binance", "ticker", 1, nil))
	m.ReleaseEvent(ev)

	again := m.AcquireEvent()
	assert.True(t, again.IsZero())

	b := m.AcquireBatch()
	b.Init(model.BatchKey{}, time.Now())
	b.Add(again)
	m.ReleaseBatch(b)

	blank := m.AcquireBatch()
	assert.True(t, blank.IsZero())

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Events.Hits)
	assert.Equal(t, uint64(1), stats.Batches.Hits)
}
