package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Strategy decides when accumulated events leave their batch.
type Strategy uint8

const (
	// StrategyImmediate bypasses batching and dispatches in the caller.
	StrategyImmediate Strategy = iota
	// StrategyBatchTime flushes once the batch reaches the maximum age.
	StrategyBatchTime
	// StrategyBatchSize flushes once the batch reaches the maximum size.
	StrategyBatchSize
	// StrategyBatchHybrid flushes on whichever threshold is hit first.
	StrategyBatchHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyImmediate:
		return "immediate"
	case StrategyBatchTime:
		return "batch_time"
	case StrategyBatchSize:
		return "batch_size"
	case StrategyBatchHybrid:
		return "batch_hybrid"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ParseStrategy maps a strategy name back to its value.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return StrategyImmediate, nil
	case "batch_time", "time":
		return StrategyBatchTime, nil
	case "batch_size", "size":
		return StrategyBatchSize, nil
	case "batch_hybrid", "hybrid", "":
		return StrategyBatchHybrid, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

// BatchKey identifies the accumulator an event joins.
// Unrelated symbols never share a key, so one backlog cannot delay another.
type BatchKey struct {
	Strategy   Strategy
	Symbol     string
	Exchange   string
	TypePrefix string
}

// KeyFor derives the batch key of ev under strategy s.
func KeyFor(s Strategy, ev *Event) BatchKey {
	return BatchKey{
		Strategy:   s,
		Symbol:     ev.Symbol(),
		Exchange:   ev.Exchange(),
		TypePrefix: ev.TypePrefix(),
	}
}

func (k BatchKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Strategy, k.Symbol, k.Exchange, k.TypePrefix)
}

// Batch accumulates events that share a key until a flush condition fires.
// It is owned by a single goroutine from Init until it is handed to a lane queue.
type Batch struct {
	ID        string
	Key       BatchKey
	Events    []*Event
	Priority  Priority
	CreatedAt time.Time
}

// TypeGroup is a run of events sharing an exact type.
type TypeGroup struct {
	Type   string
	Events []*Event
}

// Init prepares a reset batch for a key.
func (b *Batch) Init(key BatchKey, now time.Time) {
	b.ID = uuid.NewString()
	b.Key = key
	b.CreatedAt = now
	b.Priority = 0
	b.Events = b.Events[:0]
}

// Add appends ev. The batch priority tracks the most urgent member.
func (b *Batch) Add(ev *Event) {
	b.Events = append(b.Events, ev)
	if ev.Priority > b.Priority {
		b.Priority = ev.Priority
	}
}

func (b *Batch) Len() int { return len(b.Events) }

// Age is the time elapsed since Init.
func (b *Batch) Age(now time.Time) time.Duration {
	return now.Sub(b.CreatedAt)
}

// GroupByType splits the batch into exact-type groups in first-seen order.
func (b *Batch) GroupByType() []TypeGroup {
	groups := make([]TypeGroup, 0, 1)
	index := make(map[string]int, 1)
	for _, ev := range b.Events {
		i, ok := index[ev.Type]
		if !ok {
			i = len(groups)
			index[ev.Type] = i
			groups = append(groups, TypeGroup{Type: ev.Type})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}
	return groups
}

// Reset clears the batch for pooling. The event slice capacity is kept.
func (b *Batch) Reset() {
	clear(b.Events)
	*b = Batch{Events: b.Events[:0]}
}

// IsZero reports whether b is in the pooled, cleared state.
func (b *Batch) IsZero() bool {
	return b.ID == "" && len(b.Events) == 0 && b.Priority == 0
}
