package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sink struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *sink) record(ev *model.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.ids = append(s.ids, ev.ID)
	return ev.ID, nil
}

func (s *sink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type fakeBus struct{ sink }

func (b *fakeBus) Publish(_ context.Context, ev *model.Event) (string, error) { return b.record(ev) }
func (b *fakeBus) PublishMany(ctx context.Context, events []*model.Event) ([]string, error) {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i], _ = b.Publish(ctx, ev)
	}
	return ids, nil
}

type fakeProcessor struct{ sink }

func (p *fakeProcessor) ProcessEvent(_ context.Context, ev *model.Event) (string, error) {
	return p.record(ev)
}
func (p *fakeProcessor) ProcessEvents(ctx context.Context, events []*model.Event) ([]string, error) {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i], _ = p.ProcessEvent(ctx, ev)
	}
	return ids, nil
}

type fakeJournal struct{ sink }

func (j *fakeJournal) AppendEvent(_ context.Context, ev *model.Event) (string, error) {
	return j.record(ev)
}

func TestRouterSplitsByUrgency(t *testing.T) {
	b, p, j := &fakeBus{}, &fakeProcessor{}, &fakeJournal{}
	r := NewEventRouter(b, p, j, discardLogger())

	signal := model.NewTradingSignalEvent("s", "BTCUSDT", "binance", "buy", 0.7)
	alert := model.NewAlertEvent("risk", "critical", "margin call")
	halt := model.NewSystemEvent("node", "halt", nil, model.WithPriority(model.PriorityCritical))
	quote := model.NewMarketDataEvent("feed", "BTCUSDT", "binance", "ticker", 1, nil)
	tick := model.NewSystemEvent("node", "tick", nil)

	ids, err := r.RouteMany(context.Background(), []*model.Event{signal, alert, halt, quote, tick})
	require.NoError(t, err)
	assert.Equal(t, []string{signal.ID, alert.ID, halt.ID, quote.ID, tick.ID}, ids)

	assert.Equal(t, []string{signal.ID, alert.ID, halt.ID}, b.seen())
	assert.Equal(t, []string{quote.ID, tick.ID}, p.seen())
	assert.Len(t, j.seen(), 5, "every event is journaled")
}

func TestRouterToleratesJournalOutage(t *testing.T) {
	p := &fakeProcessor{}
	j := &fakeJournal{sink: sink{err: errors.New("journal down")}}
	r := NewEventRouter(&fakeBus{}, p, j, discardLogger())

	ev := model.NewMarketDataEvent("feed", "BTCUSDT", "binance", "ticker", 1, nil)
	id, err := r.Route(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, id)
	assert.Equal(t, []string{ev.ID}, p.seen())
}

func TestRouterPropagatesDownstreamErrors(t *testing.T) {
	errFull := errors.New("lane full")
	b := &fakeBus{sink: sink{err: errFull}}
	r := NewEventRouter(b, &fakeProcessor{}, &fakeJournal{}, discardLogger())

	ids, err := r.RouteMany(context.Background(), []*model.Event{
		model.NewTradingSignalEvent("s", "BTCUSDT", "binance", "sell", 0.9),
		model.NewMarketDataEvent("feed", "BTCUSDT", "binance", "ticker", 1, nil),
	})
	require.ErrorIs(t, err, errFull)
	assert.Empty(t, ids[0])
	assert.NotEmpty(t, ids[1])
}
