package bus

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/breaker"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"
	"github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/topic"
)

// Handler consumes one event. Handlers must tolerate redelivery.
type Handler func(ctx context.Context, ev *model.Event) error

// Filter reports whether a subscription wants ev.
type Filter func(ev *model.Event) bool

type subscription struct {
	id       string
	name     string
	pattern  string
	wildcard bool
	priority int
	seq      uint64
	filter   Filter
	handler  Handler

	breakerCfg *breaker.Config
	breaker    *breaker.Breaker

	// [ATOMIC_FIELD] several lane workers may run the same handler at once
	calls      atomic.Uint64
	errors     atomic.Uint64
	totalNanos atomic.Int64
}

func (s *subscription) record(d time.Duration, err error) {
	s.calls.Add(1)
	s.totalNanos.Add(int64(d))
	if err != nil {
		s.errors.Add(1)
	}
}

// HandlerStats is the per-subscription view exposed through Metrics.
type HandlerStats struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Pattern     string            `json:"pattern"`
	Priority    int               `json:"priority"`
	Calls       uint64            `json:"calls"`
	Errors      uint64            `json:"errors"`
	AvgExecTime time.Duration     `json:"avg_exec_time"`
	Breaker     *breaker.Snapshot `json:"breaker,omitempty"`
}

func (s *subscription) stats() HandlerStats {
	hs := HandlerStats{
		ID:       s.id,
		Name:     s.name,
		Pattern:  s.pattern,
		Priority: s.priority,
		Calls:    s.calls.Load(),
		Errors:   s.errors.Load(),
	}
	if hs.Calls > 0 {
		hs.AvgExecTime = time.Duration(s.totalNanos.Load() / int64(hs.Calls))
	}
	if s.breaker != nil {
		snap := s.breaker.Snapshot()
		hs.Breaker = &snap
	}
	return hs
}

// byPriority sorts descending by priority, then by registration order.
func byPriority(a, b *subscription) int {
	if a.priority != b.priority {
		return b.priority - a.priority
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// registry stores subscriptions in copy-on-write slices: writers rebuild,
// readers take the current slice under a read lock and iterate without it.
type registry struct {
	mu       sync.RWMutex
	seq      uint64
	exact    map[string][]*subscription
	wildcard []*subscription
	byID     map[string]*subscription
}

func newRegistry() *registry {
	return &registry{
		exact: make(map[string][]*subscription),
		byID:  make(map[string]*subscription),
	}
}

func (r *registry) add(s *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	s.seq = r.seq
	r.byID[s.id] = s

	if s.wildcard {
		r.wildcard = insertSorted(r.wildcard, s)
		return
	}
	r.exact[s.pattern] = insertSorted(r.exact[s.pattern], s)
}

func insertSorted(list []*subscription, s *subscription) []*subscription {
	next := make([]*subscription, 0, len(list)+1)
	next = append(next, list...)
	next = append(next, s)
	slices.SortStableFunc(next, byPriority)
	return next
}

func (r *registry) remove(id string) (*subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)

	drop := func(list []*subscription) []*subscription {
		return slices.DeleteFunc(slices.Clone(list), func(x *subscription) bool { return x.id == id })
	}
	if s.wildcard {
		r.wildcard = drop(r.wildcard)
		return s, true
	}
	if rest := drop(r.exact[s.pattern]); len(rest) > 0 {
		r.exact[s.pattern] = rest
	} else {
		delete(r.exact, s.pattern)
	}
	return s, true
}

// match merges exact and wildcard subscribers of eventType in priority order.
func (r *registry) match(eventType string) []*subscription {
	r.mu.RLock()
	exact := r.exact[eventType]
	wildcard := r.wildcard
	r.mu.RUnlock()

	var matched []*subscription
	for _, s := range wildcard {
		if topic.Match(s.pattern, eventType) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return exact
	}
	if len(exact) == 0 {
		return matched
	}

	out := make([]*subscription, 0, len(exact)+len(matched))
	i, j := 0, 0
	for i < len(exact) && j < len(matched) {
		if byPriority(exact[i], matched[j]) <= 0 {
			out = append(out, exact[i])
			i++
		} else {
			out = append(out, matched[j])
			j++
		}
	}
	out = append(out, exact[i:]...)
	return append(out, matched[j:]...)
}

func (r *registry) all() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*subscription, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *subscription) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}
