// Package pool recycles Event and Batch allocations under sustained load.
package pool

import "sync/atomic"

// Pool is a bounded free list. Get never blocks: an empty list allocates.
// Put resets the object before storing it, so Get always hands out a blank value.
type Pool[T any] struct {
	free  chan *T
	newFn func() *T
	reset func(*T)

	hits      atomic.Uint64
	misses    atomic.Uint64
	returned  atomic.Uint64
	discarded atomic.Uint64
}

// New builds a pool holding at most capacity idle objects.
func New[T any](capacity int, newFn func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		free:  make(chan *T, max(capacity, 0)),
		newFn: newFn,
		reset: reset,
	}
}

// Prewarm allocates up to n idle objects ahead of a burst.
func (p *Pool[T]) Prewarm(n int) {
	for range n {
		select {
		case p.free <- p.newFn():
		default:
			return
		}
	}
}

func (p *Pool[T]) Get() *T {
	select {
	case v := <-p.free:
		p.hits.Add(1)
		return v
	default:
		p.misses.Add(1)
		return p.newFn()
	}
}

// Put resets v and keeps it if there is room. Nil is ignored.
func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	p.reset(v)
	select {
	case p.free <- v:
		p.returned.Add(1)
	default:
		p.discarded.Add(1)
	}
}

// Stats is a point-in-time view for metrics.
type Stats struct {
	Capacity  int     `json:"capacity"`
	Available int     `json:"available"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Returned  uint64  `json:"returned"`
	Discarded uint64  `json:"discarded"`
	HitRate   float64 `json:"hit_rate"`
}

func (p *Pool[T]) Stats() Stats {
	s := Stats{
		Capacity:  cap(p.free),
		Available: len(p.free),
		Hits:      p.hits.Load(),
		Misses:    p.misses.Load(),
		Returned:  p.returned.Load(),
		Discarded: p.discarded.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
