package agent

import "github.com/contrived-com/arecibo/internal/ingestqueue"

// PolicyState is the Agent's local copy of the policy last fetched from
// the Collector. Before the first successful fetch a Runtime holds
// defaultPolicyState, not the zero value.
type PolicyState struct {
	SessionID            string
	PolicyVersion        string
	Enabled              bool
	HeartbeatIntervalSec int
	MaxBatchSize         int
	TTLSec               int
}

// defaultPolicyState is what a freshly constructed Agent assumes before
// its first successful policy fetch: sampling enabled, a conservative
// cadence, empty session id. An empty session id is itself enough to make
// the flush path drop each popped batch with policy attribution (see
// Runtime.flush), so "enabled but no session yet" cannot leak events before
// policy is actually known.
func defaultPolicyState() PolicyState {
	return PolicyState{
		Enabled:              true,
		HeartbeatIntervalSec: 30,
		MaxBatchSize:         1000,
		TTLSec:               60,
	}
}

// RuntimeState is the full set of fields the control loop owns exclusively.
// Nothing outside the control-loop goroutine mutates these; no lock is
// required (see the concurrency model: the Agent's only other goroutine,
// the ingest receive worker, touches only the IngestQueue).
type RuntimeState struct {
	GoDark            bool
	SelectedCollector string
	Policy            PolicyState
	Counters          *ingestqueue.Counters
}
