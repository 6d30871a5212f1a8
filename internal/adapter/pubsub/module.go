package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
	infrapubsub "github.com/virtexvirtuoso/Virtuoso-sub009/infra/pubsub"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/service"
)

var Module = fx.Module("pubsub-adapter",
	fx.Provide(
		func(p infrapubsub.Provider) message.Publisher { return p.Publisher() },
		func(p infrapubsub.Provider) message.Subscriber { return p.Subscriber() },
		NewEventDispatcher,
		fx.Annotate(
			func(d EventDispatcher, cfg *config.Config) *Journal {
				return NewJournal(d, cfg.PubSub.JournalTopic)
			},
			fx.As(new(service.EventJournal)),
		),
	),

	// [DEAD_LETTER_FORWARDING] operators read dead letters from the broker
	fx.Invoke(func(q *deadletter.Queue, d EventDispatcher, cfg *config.Config) {
		if cfg.DeadLetter.Forward {
			q.SetSink(NewDeadLetterSink(d, cfg.PubSub.DeadLetterTopic))
		}
	}),
)
