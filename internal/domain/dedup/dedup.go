// Package dedup suppresses near-duplicate events inside a TTL window.
package dedup

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

// Config bounds the deduplication window.
type Config struct {
	TTL            time.Duration
	CacheSize      int
	PricePrecision int32
}

func DefaultConfig() Config {
	return Config{
		TTL:            60 * time.Second,
		CacheSize:      10000,
		PricePrecision: 6,
	}
}

// Option customizes a Deduplicator.
type Option func(*Deduplicator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(d *Deduplicator) { d.clock = c }
}

// Deduplicator remembers event fingerprints for TTL. Once the cache is full
// the least recently seen fingerprint is forgotten first.
type Deduplicator struct {
	cfg   Config
	clock clock.Clock

	// [CHECK_THEN_ADD] the cache is safe on its own, the mutex makes the
	// peek and the insert one atomic step.
	mu    sync.Mutex
	cache *lru.Cache[uint64, time.Time]

	checks     atomic.Uint64
	duplicates atomic.Uint64
}

// New builds a Deduplicator. Zero config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) (*Deduplicator, error) {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.PricePrecision < 0 {
		cfg.PricePrecision = def.PricePrecision
	}

	cache, err := lru.New[uint64, time.Time](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("dedup: cache: %w", err)
	}

	d := &Deduplicator{cfg: cfg, clock: clock.New(), cache: cache}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// IsDuplicate records ev and reports whether an equivalent event was seen within TTL.
// A duplicate does not extend the window of the original.
func (d *Deduplicator) IsDuplicate(ev *model.Event) bool {
	d.checks.Add(1)
	h := d.Hash(ev)
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if seen, ok := d.cache.Peek(h); ok && now.Sub(seen) < d.cfg.TTL {
		d.duplicates.Add(1)
		return true
	}
	d.cache.Add(h, now)
	return false
}

// Hash fingerprints ev. Market data is keyed by symbol, exchange and price
// rounded to PricePrecision decimals; other kinds by their full payload.
func (d *Deduplicator) Hash(ev *model.Event) uint64 {
	digest := xxhash.New()
	write := func(s string) {
		_, _ = digest.WriteString(s)
		_, _ = digest.Write([]byte{0})
	}

	write(ev.Type)
	write(ev.Source)

	if ev.Kind == model.KindMarketData {
		write(ev.Symbol())
		write(ev.Exchange())
		if price, ok := ev.Price(); ok {
			write(decimal.NewFromFloat(price).Round(d.cfg.PricePrecision).String())
		} else {
			write("-")
		}
		return digest.Sum64()
	}

	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		write(k)
		write(fmt.Sprint(ev.Data[k]))
	}
	return digest.Sum64()
}

// Stats is a point-in-time view for metrics.
type Stats struct {
	Checks     uint64  `json:"checks"`
	Duplicates uint64  `json:"duplicates_removed"`
	CacheSize  int     `json:"cache_size"`
	HitRate    float64 `json:"hit_rate"`
}

func (d *Deduplicator) Stats() Stats {
	s := Stats{
		Checks:     d.checks.Load(),
		Duplicates: d.duplicates.Load(),
		CacheSize:  d.cache.Len(),
	}
	if s.Checks > 0 {
		s.HitRate = float64(s.Duplicates) / float64(s.Checks)
	}
	return s
}
