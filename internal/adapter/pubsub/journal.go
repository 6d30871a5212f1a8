package pubsub

import (
	"context"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service/dto"
)

// Journal appends every routed event to the journal topic, where the external
// event store consumes it.
type Journal struct {
	dispatcher EventDispatcher
	topic      string
}

// Interface guard
var _ service.EventJournal = (*Journal)(nil)

func NewJournal(d EventDispatcher, topic string) *Journal {
	return &Journal{dispatcher: d, topic: topic}
}

// AppendEvent returns the id of the journal message.
func (j *Journal) AppendEvent(ctx context.Context, ev *model.Event) (string, error) {
	return j.dispatcher.Publish(ctx, j.topic, ev.Meta(model.MetaCorrelation), dto.FromDomain(ev))
}
