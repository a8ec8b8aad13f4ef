package admin

import (
	"sync"

	"github.com/contrived-com/arecibo/internal/collector"
)

// DirectiveQueue holds operator-queued directives awaiting delivery on an
// agent instance's next heartbeat, guarded by its own mutex per the
// concurrency model's separation of the admin write path from the
// agent-facing read path.
type DirectiveQueue struct {
	mu      sync.RWMutex
	pending map[string][]collector.Directive
}

// NewDirectiveQueue constructs an empty DirectiveQueue.
func NewDirectiveQueue() *DirectiveQueue {
	return &DirectiveQueue{pending: make(map[string][]collector.Directive)}
}

// Push enqueues one directive for the given agent instance.
func (q *DirectiveQueue) Push(serviceName, environment, instanceID string, d collector.Directive) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := sessionKey(serviceName, environment, instanceID)
	q.pending[key] = append(q.pending[key], d)
}

// Pop drains and returns every directive queued for the given agent
// instance, implementing collector.DirectiveSource. Returns nil if none
// are pending.
func (q *DirectiveQueue) Pop(serviceName, environment, instanceID string) []collector.Directive {
	key := sessionKey(serviceName, environment, instanceID)

	q.mu.Lock()
	defer q.mu.Unlock()
	directives, ok := q.pending[key]
	if !ok {
		return nil
	}
	delete(q.pending, key)
	return directives
}
