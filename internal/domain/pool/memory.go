package pool

import "github.com/virtexvirtuoso/Virtuoso-sub009/internal/domain/model"

const defaultBatchCapacity = 64

// MemoryPool bundles the Event and Batch pools used by the processor.
type MemoryPool struct {
	events  *Pool[model.Event]
	batches *Pool[model.Batch]
}

// NewMemoryPool builds both pools with the given idle capacities.
func NewMemoryPool(eventCapacity, batchCapacity int) *MemoryPool {
	return &MemoryPool{
		events: New(eventCapacity,
			func() *model.Event {
				return &model.Event{Data: make(map[string]any), Metadata: make(map[string]string)}
			},
			(*model.Event).Reset,
		),
		batches: New(batchCapacity,
			func() *model.Batch {
				return &model.Batch{Events: make([]*model.Event, 0, defaultBatchCapacity)}
			},
			(*model.Batch).Reset,
		),
	}
}

// AcquireEvent returns a blank event.
func (m *MemoryPool) AcquireEvent() *model.Event { return m.events.Get() }

// ReleaseEvent hands ev back. The caller must not touch ev afterwards.
func (m *MemoryPool) ReleaseEvent(ev *model.Event) { m.events.Put(ev) }

// AcquireBatch returns a blank batch; call Init before use.
func (m *MemoryPool) AcquireBatch() *model.Batch { return m.batches.Get() }

// ReleaseBatch hands b back without touching the events it referenced.
func (m *MemoryPool) ReleaseBatch(b *model.Batch) { m.batches.Put(b) }

// Prewarm fills both pools ahead of expected load.
func (m *MemoryPool) Prewarm(events, batches int) {
	m.events.Prewarm(events)
	m.batches.Prewarm(batches)
}

// MemoryStats pairs the stats of both pools.
type MemoryStats struct {
	Events  Stats `json:"events"`
	Batches Stats `json:"batches"`
}

func (m *MemoryPool) Stats() MemoryStats {
	return MemoryStats{Events: m.events.Stats(), Batches: m.batches.Stats()}
}
