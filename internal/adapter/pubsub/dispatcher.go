package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// EventDispatcher defines the high-level contract for outgoing messages.
// This allows the adapters to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, topic, correlationID string, payload any) (string, error)
	Publisher() message.Publisher
}

// eventDispatcher is the concrete implementation (private).
type eventDispatcher struct {
	publisher message.Publisher
}

// NewEventDispatcher returns the interface instead of the pointer to the struct.
func NewEventDispatcher(pub message.Publisher) EventDispatcher {
	return &eventDispatcher{
		publisher: pub,
	}
}

// Publish marshals payload to JSON and sends it to topic. It returns the message UUID.
func (d *eventDispatcher) Publish(ctx context.Context, topic, correlationID string, payload any) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("event dispatcher: cannot publish nil payload")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	if correlationID != "" {
		middleware.SetCorrelationID(correlationID, msg)
	}

	if err := d.publisher.Publish(topic, msg); err != nil {
		return "", fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", topic, err)
	}
	return msg.UUID, nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
