package pubsub

import (
	"context"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service/dto"
)

// DeadLetterSink forwards dead-lettered events to a topic for operator tooling.
type DeadLetterSink struct {
	dispatcher EventDispatcher
	topic      string
}

// Interface guard
var _ deadletter.Sink = (*DeadLetterSink)(nil)

func NewDeadLetterSink(d EventDispatcher, topic string) *DeadLetterSink {
	return &DeadLetterSink{dispatcher: d, topic: topic}
}

func (s *DeadLetterSink) Forward(ctx context.Context, e deadletter.Entry) error {
	_, err := s.dispatcher.Publish(ctx, s.topic, e.Event.Meta(model.MetaCorrelation), dto.FromDeadLetter(e))
	return err
}
