package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service/dto"
)

func newChannel(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func receive(t *testing.T, msgs <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-msgs:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestJournalAppendEvent(t *testing.T) {
	ch := newChannel(t)
	msgs, err := ch.Subscribe(context.Background(), "journal")
	require.NoError(t, err)

	ev := model.NewMarketDataEvent("feed", "BTCUSDT", "binance", "ticker", 64000, nil,
		model.WithMetadata(model.MetaCorrelation, "corr-7"))

	j := NewJournal(NewEventDispatcher(ch), "journal")
	id, err := j.AppendEvent(context.Background(), ev)
	require.NoError(t, err)

	msg := receive(t, msgs)
	assert.Equal(t, id, msg.UUID)
	assert.Equal(t, "corr-7", middleware.MessageCorrelationID(msg))

	var got dto.EventV1
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "market_data.ticker", got.Type)
	assert.Equal(t, "high", got.Priority)
}

func TestDeadLetterSinkForwardsEntries(t *testing.T) {
	ch := newChannel(t)
	msgs, err := ch.Subscribe(context.Background(), "dead")
	require.NoError(t, err)

	q := deadletter.New(4,
		deadletter.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		deadletter.WithSink(NewDeadLetterSink(NewEventDispatcher(ch), "dead")),
	)
	ev := model.NewAlertEvent("risk", "critical", "exposure")
	q.Add(ev, deadletter.ReasonMaxRetries, "eventbus", errors.New("handler failed"))

	var got dto.DeadLetterV1
	require.NoError(t, json.Unmarshal(receive(t, msgs).Payload, &got))
	assert.Equal(t, ev.ID, got.Event.ID)
	assert.Equal(t, "max_retries_exceeded", got.Reason)
	assert.Equal(t, "handler failed", got.Error)
	assert.Equal(t, "eventbus", got.Origin)
}

func TestDispatcherRejectsNilPayload(t *testing.T) {
	d := NewEventDispatcher(newChannel(t))
	_, err := d.Publish(context.Background(), "x", "", nil)
	assert.Error(t, err)
}
