// Package ingestqueue implements the Agent's bounded, drop-oldest local
// event buffer. A single producer (the ingest datagram server) and a single
// consumer (the control loop) share it through one mutex.
package ingestqueue

import (
	"sync"

	"github.com/contrived-com/arecibo/internal/events"
)

// Counters tracks the lifetime and windowed drop/throughput figures the
// Agent reports on every heartbeat. Reset* is called only from the control
// loop; the queue-size fields are mutated under the queue's own lock since
// they change on every push.
type Counters struct {
	mu sync.Mutex

	EventsReceivedTotal int64
	EventsSentTotal     int64
	EventsDroppedTotal  int64

	DroppedByQueueSizeWindow int64
	DroppedByPolicyWindow    int64
	MaxQueueDepthWindow      int64
}

// ResetWindow clears the per-heartbeat-window counters. Called
// unconditionally at every heartbeat attempt, regardless of its outcome.
func (c *Counters) ResetWindow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DroppedByQueueSizeWindow = 0
	c.DroppedByPolicyWindow = 0
	c.MaxQueueDepthWindow = 0
}

// AddDroppedByPolicy attributes n dropped events to policy disablement, for
// use by the control loop's flush path (policy.enabled == false, or a
// batch dropped for lacking a session id).
func (c *Counters) AddDroppedByPolicy(n int64) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EventsDroppedTotal += n
	c.DroppedByPolicyWindow += n
}

// AddSent attributes n events to a successful flush.
func (c *Counters) AddSent(n int64) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EventsSentTotal += n
}

// Snapshot is an immutable copy of Counters, safe to read without a lock.
type Snapshot struct {
	EventsReceivedTotal      int64
	EventsSentTotal          int64
	EventsDroppedTotal       int64
	DroppedByQueueSizeWindow int64
	DroppedByPolicyWindow    int64
	MaxQueueDepthWindow      int64
}

func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		EventsReceivedTotal:      c.EventsReceivedTotal,
		EventsSentTotal:          c.EventsSentTotal,
		EventsDroppedTotal:       c.EventsDroppedTotal,
		DroppedByQueueSizeWindow: c.DroppedByQueueSizeWindow,
		DroppedByPolicyWindow:    c.DroppedByPolicyWindow,
		MaxQueueDepthWindow:      c.MaxQueueDepthWindow,
	}
}

func (c *Counters) recordPush(dropped bool, depth int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EventsReceivedTotal++
	if dropped {
		c.EventsDroppedTotal++
		c.DroppedByQueueSizeWindow++
	}
	if depth > c.MaxQueueDepthWindow {
		c.MaxQueueDepthWindow = depth
	}
}

// Queue is a bounded FIFO of events.Event with drop-oldest-on-overflow
// semantics. The zero value is not usable; construct with New.
type Queue struct {
	mu       sync.Mutex
	items    []events.Event
	capacity int
	counters *Counters
}

// New constructs a Queue with the given capacity (floor 1) and the
// Counters instance it should update on every push.
func New(capacity int, counters *Counters) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:    make([]events.Event, 0, capacity),
		capacity: capacity,
		counters: counters,
	}
}

// Push appends ev, evicting the oldest element first if the queue is
// already at capacity. Always increments EventsReceivedTotal and updates
// the high-water mark.
func (q *Queue) Push(ev events.Event) {
	q.mu.Lock()
	dropped := false
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, ev)
	depth := int64(len(q.items))
	q.observeLocked()
	if dropped {
		droppedTotal.WithLabelValues("queue_size").Inc()
	}
	if q.counters != nil {
		q.counters.recordPush(dropped, depth)
	}
	q.mu.Unlock()
}

// RecordPolicyDrop attributes n events (already removed from the queue via
// Drain or PopBatch) to policy disablement, for both the lifetime counters
// and the Prometheus drop counter.
func (q *Queue) RecordPolicyDrop(n int) {
	if n <= 0 {
		return
	}
	droppedTotal.WithLabelValues("policy").Add(float64(n))
	if q.counters != nil {
		q.counters.AddDroppedByPolicy(int64(n))
	}
}

// PopBatch removes and returns up to limit oldest items. May return an
// empty (non-nil) slice.
func (q *Queue) PopBatch(limit int) []events.Event {
	if limit <= 0 {
		return []events.Event{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	n := limit
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]events.Event, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	q.observeLocked()
	return batch
}

// Size returns the current number of queued events.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued event, used by the flush path
// when policy.enabled is false.
func (q *Queue) Drain() []events.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.items
	q.items = make([]events.Event, 0, q.capacity)
	q.observeLocked()
	return drained
}
