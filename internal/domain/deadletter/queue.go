// Package deadletter keeps events that exhausted their retries or could not be queued.
// Entries stay queryable after the bus and processor shut down.
package deadletter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/topic"
)

const DefaultCapacity = 10000

// Reason classifies why an event was dead-lettered.
type Reason string

const (
	ReasonMaxRetries Reason = "max_retries_exceeded"
	ReasonQueueFull  Reason = "queue_full"
	ReasonShutdown   Reason = "shutdown"
)

// Entry is one dead-lettered event with its failure context.
type Entry struct {
	Event  *model.Event `json:"event"`
	Reason Reason       `json:"reason"`
	Error  string       `json:"error,omitempty"`
	Origin string       `json:"origin"`
	DeadAt time.Time    `json:"dead_at"`
}

// Sink forwards entries outside the process, e.g. to a poison topic.
type Sink interface {
	Forward(ctx context.Context, entry Entry) error
}

// Option customizes a Queue.
type Option func(*Queue)

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithSink forwards every added entry. Forwarding failures are logged only.
func WithSink(s Sink) Option {
	return func(q *Queue) { q.sink = s }
}

// Queue is a bounded ring of entries. When full, the oldest entry is evicted.
type Queue struct {
	logger *slog.Logger
	clock  clock.Clock
	sink   Sink

	mu      sync.RWMutex
	entries []Entry
	head    int
	size    int

	total   atomic.Uint64
	evicted atomic.Uint64
}

// New builds a queue. Non-positive capacity falls back to DefaultCapacity.
func New(capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		logger:  slog.Default(),
		clock:   clock.New(),
		entries: make([]Entry, capacity),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetSink attaches a forwarding sink after construction.
func (q *Queue) SetSink(s Sink) {
	q.mu.Lock()
	q.sink = s
	q.mu.Unlock()
}

// Add stores a detached copy of ev, so pooled events can be recycled by the caller.
func (q *Queue) Add(ev *model.Event, reason Reason, origin string, cause error) {
	if ev == nil {
		return
	}
	entry := Entry{
		Event:  ev.Clone(),
		Reason: reason,
		Origin: origin,
		DeadAt: q.clock.Now(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	q.mu.Lock()
	if q.size == len(q.entries) {
		q.entries[q.head] = entry
		q.head = (q.head + 1) % len(q.entries)
		q.evicted.Add(1)
	} else {
		q.entries[(q.head+q.size)%len(q.entries)] = entry
		q.size++
	}
	sink := q.sink
	q.mu.Unlock()

	q.total.Add(1)
	q.logger.Warn("EVENT_DEAD_LETTERED",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"reason", string(reason),
		"origin", origin,
		"retry_count", ev.RetryCount,
		"err", entry.Error,
	)

	if sink != nil {
		if err := sink.Forward(context.Background(), entry); err != nil {
			q.logger.Error("DEAD_LETTER_FORWARD_FAILED", "err", err, "event_id", ev.ID)
		}
	}
}

// List returns every retained entry, oldest first.
func (q *Queue) List() []Entry {
	return q.Query(Filter{})
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Since  time.Time
	Until  time.Time
	Type   string // exact type or wildcard pattern
	Reason Reason
	Limit  int
}

func (f Filter) match(e Entry) bool {
	if !f.Since.IsZero() && e.DeadAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.DeadAt.After(f.Until) {
		return false
	}
	if f.Reason != "" && e.Reason != f.Reason {
		return false
	}
	if f.Type != "" && !topic.Match(f.Type, e.Event.Type) {
		return false
	}
	return true
}

// Query returns matching entries, oldest first.
func (q *Queue) Query(f Filter) []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Entry, 0, q.size)
	for i := range q.size {
		e := q.entries[(q.head+i)%len(q.entries)]
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Drain removes and returns every entry, oldest first, e.g. for replay.
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, q.size)
	for i := range q.size {
		idx := (q.head + i) % len(q.entries)
		out = append(out, q.entries[idx])
		q.entries[idx] = Entry{}
	}
	q.head, q.size = 0, 0
	return out
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Stats is a point-in-time view for metrics.
type Stats struct {
	Len      int    `json:"len"`
	Capacity int    `json:"capacity"`
	Total    uint64 `json:"total"`
	Evicted  uint64 `json:"evicted"`
}

func (q *Queue) Stats() Stats {
	return Stats{
		Len:      q.Len(),
		Capacity: len(q.entries),
		Total:    q.total.Load(),
		Evicted:  q.evicted.Load(),
	}
}
