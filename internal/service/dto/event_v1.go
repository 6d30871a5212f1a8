package dto

import (
	"errors"
	"fmt"
	"time"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/deadletter"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
)

var ErrMissingType = errors.New("dto: event type is required")

// [WIRE_V1] JSON envelope exchanged with producers, the journal and the dead-letter topic.
type EventV1 struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	Kind       string            `json:"kind,omitempty"`
	Source     string            `json:"source,omitempty"`
	Priority   string            `json:"priority,omitempty"`
	OccurredAt string            `json:"occurred_at,omitempty"`
	Data       map[string]any    `json:"data,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RetryCount int               `json:"retry_count,omitempty"`
	MaxRetries *int              `json:"max_retries,omitempty"`
}

// EventBatchV1 carries several events in one message.
type EventBatchV1 struct {
	Events []EventV1 `json:"events"`
}

// DeadLetterV1 is the record forwarded for every dead-lettered event.
type DeadLetterV1 struct {
	Event  EventV1 `json:"event"`
	Reason string  `json:"reason"`
	Error  string  `json:"error,omitempty"`
	Origin string  `json:"origin"`
	DeadAt string  `json:"dead_at"`
}

// ToDomain validates the envelope and builds a domain event. An absent
// max_retries takes defaultMaxRetries; an absent priority takes the kind default.
func (d *EventV1) ToDomain(defaultMaxRetries int) (*model.Event, error) {
	if d.Type == "" {
		return nil, ErrMissingType
	}

	kind, err := model.ParseKind(d.Kind)
	if err != nil {
		return nil, fmt.Errorf("dto: %w", err)
	}

	prio := kind.DefaultPriority()
	if d.Priority != "" {
		if prio, err = model.ParsePriority(d.Priority); err != nil {
			return nil, fmt.Errorf("dto: %w", err)
		}
	}

	opts := []model.EventOption{
		model.WithPriority(prio),
		model.WithMaxRetries(defaultMaxRetries),
	}
	if d.MaxRetries != nil {
		opts = append(opts, model.WithMaxRetries(*d.MaxRetries))
	}
	if ts := safeParseRFC3339(d.OccurredAt); !ts.IsZero() {
		opts = append(opts, model.WithTimestamp(ts))
	}
	for k, v := range d.Metadata {
		opts = append(opts, model.WithMetadata(k, v))
	}

	ev := model.NewEvent(d.Type, kind, d.Source, d.Data, opts...)
	if d.ID != "" {
		ev.ID = d.ID
	}
	ev.RetryCount = d.RetryCount
	return ev, nil
}

// FromDomain renders ev for the wire.
func FromDomain(ev *model.Event) EventV1 {
	maxRetries := ev.MaxRetries
	return EventV1{
		ID:         ev.ID,
		Type:       ev.Type,
		Kind:       ev.Kind.String(),
		Source:     ev.Source,
		Priority:   ev.Priority.String(),
		OccurredAt: ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Data:       ev.Data,
		Metadata:   ev.Metadata,
		RetryCount: ev.RetryCount,
		MaxRetries: &maxRetries,
	}
}

// FromDeadLetter renders a dead-letter entry for the wire.
func FromDeadLetter(e deadletter.Entry) DeadLetterV1 {
	return DeadLetterV1{
		Event:  FromDomain(e.Event),
		Reason: string(e.Reason),
		Error:  e.Error,
		Origin: e.Origin,
		DeadAt: e.DeadAt.UTC().Format(time.RFC3339Nano),
	}
}

func safeParseRFC3339(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
