package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

const symbolCacheSize = 10000

// Enricher defines the contract for ingress metadata augmentation.
type Enricher interface {
	// Enrich annotates a single event in place.
	Enrich(ctx context.Context, ev *model.Event) error
	// EnrichAll annotates a slice concurrently; all events are enriched or the call fails.
	EnrichAll(ctx context.Context, events []*model.Event) error
}

// MetadataEnricher stamps provenance metadata and normalizes exchange symbols.
type MetadataEnricher struct {
	publisherID string
	clock       clock.Clock
	symbols     *lru.Cache[string, string]
}

// NewMetadataEnricher provides a thread-safe enricher with an internal LRU cache of normalized symbols.
func NewMetadataEnricher(publisherID string, clk clock.Clock) (*MetadataEnricher, error) {
	// [MEMORY_MANAGEMENT] hot symbols are normalized once
	cache, err := lru.New[string, string](symbolCacheSize)
	if err != nil {
		return nil, fmt.Errorf("enricher: symbol cache: %w", err)
	}
	return &MetadataEnricher{publisherID: publisherID, clock: clk, symbols: cache}, nil
}

func (e *MetadataEnricher) Enrich(_ context.Context, ev *model.Event) error {
	if ev == nil {
		return nil
	}

	if ev.Meta(model.MetaPublisherID) == "" {
		ev.SetMeta(model.MetaPublisherID, e.publisherID)
	}
	ev.SetMeta(model.MetaReceivedAt, e.clock.Now().UTC().Format(time.RFC3339Nano))

	// [SYMBOL_NORMALIZATION] BTC/USDT, btc-usdt and btc_usdt all become BTCUSDT
	if raw := ev.Symbol(); raw != "" {
		ev.Data[model.FieldSymbol] = e.normalize(raw)
	}
	if ex := ev.Exchange(); ex != "" {
		ev.Data[model.FieldExchange] = strings.ToLower(strings.TrimSpace(ex))
	}
	return nil
}

// EnrichAll fans the events out over an errgroup.
// [CONCURRENCY_OPTIMIZATION] events are independent, so each gets its own goroutine.
func (e *MetadataEnricher) EnrichAll(ctx context.Context, events []*model.Event) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, ev := range events {
		g.Go(func() error { return e.Enrich(gCtx, ev) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("parallel enrichment failed: %w", err)
	}
	return nil
}

func (e *MetadataEnricher) normalize(raw string) string {
	if cached, ok := e.symbols.Get(raw); ok {
		return cached
	}
	norm := strings.Map(func(r rune) rune {
		switch r {
		case '/', '-', '_', ' ', ':':
			return -1
		}
		return r
	}, strings.ToUpper(raw))
	e.symbols.Add(raw, norm)
	return norm
}
