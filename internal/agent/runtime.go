// Package agent implements the Agent sidecar runtime: bootstrap/collector
// selection, the cooperative control loop, and the heartbeat/policy-
// refresh/flush handlers, grounded directly on the reference Python
// runtime's TransponderRuntime.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	goruntime "runtime"
	"time"

	"github.com/contrived-com/arecibo/config"
	"github.com/contrived-com/arecibo/internal/collectorclient"
	"github.com/contrived-com/arecibo/internal/directive"
	"github.com/contrived-com/arecibo/internal/events"
	"github.com/contrived-com/arecibo/internal/ingestqueue"
	"github.com/contrived-com/arecibo/internal/ingestsocket"
)

const tickInterval = 200 * time.Millisecond

// Runtime is one running Agent. Construct with New, then call Run once.
type Runtime struct {
	cfg    *config.Agent
	logger *log.Logger

	queue        *ingestqueue.Queue
	counters     *ingestqueue.Counters
	ingestServer *ingestsocket.Server

	startedAt time.Time
	state     RuntimeState
}

// New constructs a Runtime. The ingest queue and its counters are created
// here so the ingestsocket.Server that Run starts (if enabled) pushes into
// the same queue that Queue() exposes.
func New(cfg *config.Agent, logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.New(log.Writer(), "[agent-runtime] ", log.LstdFlags)
	}
	counters := &ingestqueue.Counters{}
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		queue:    ingestqueue.New(cfg.MaxEventQueueDepth, counters),
		counters: counters,
		state: RuntimeState{
			Policy:   defaultPolicyState(),
			Counters: counters,
		},
	}
}

// Queue exposes the ingest queue so a caller (or the ingest socket server
// constructed in Run) can push directly into it, e.g. from an in-process
// producer in tests.
func (r *Runtime) Queue() *ingestqueue.Queue { return r.queue }

// Run executes bootstrap, starts the ingest socket if enabled, then drives
// the control loop until ctx is cancelled. It returns after the ingest
// socket (if any) has been stopped.
func (r *Runtime) Run(ctx context.Context) error {
	r.startedAt = time.Now()
	r.bootstrap(ctx)

	if r.cfg.IngestSocketEnabled {
		r.ingestServer = ingestsocket.New(r.cfg.IngestSocketPath, r.cfg.IngestSocketBufferBytes, r.queue, r.logger)
		if err := r.ingestServer.Start(); err != nil {
			return fmt.Errorf("agent: start ingest socket: %w", err)
		}
		r.logger.Printf("local ingest socket listening at %s", r.cfg.IngestSocketPath)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	now := time.Now()
	nextHeartbeatAt := now
	nextFlushAt := now.Add(time.Duration(r.cfg.EventsFlushIntervalSec) * time.Second)
	nextPolicyRefreshAt := now.Add(r.policyRefreshInterval())

	for {
		select {
		case <-ctx.Done():
			if r.ingestServer != nil {
				r.ingestServer.Stop()
			}
			return nil
		case now := <-ticker.C:
			if !now.Before(nextHeartbeatAt) {
				r.sendHeartbeat(ctx)
				interval := maxInt(r.cfg.HeartbeatMinIntervalSec, r.state.Policy.HeartbeatIntervalSec)
				nextHeartbeatAt = now.Add(time.Duration(interval) * time.Second)
			}
			if !now.Before(nextPolicyRefreshAt) {
				r.refreshPolicy(ctx)
				nextPolicyRefreshAt = now.Add(r.policyRefreshInterval())
			}
			if !now.Before(nextFlushAt) {
				r.flush(ctx)
				nextFlushAt = now.Add(time.Duration(r.cfg.EventsFlushIntervalSec) * time.Second)
			}
		}
	}
}

func (r *Runtime) policyRefreshInterval() time.Duration {
	sec := maxInt(r.cfg.HeartbeatMinIntervalSec, r.state.Policy.TTLSec-r.cfg.PolicyRefreshJitterSec)
	return time.Duration(sec) * time.Second
}

// bootstrap probes candidates in order, selects the first healthy one,
// then announces and refreshes policy once. No candidates, or no healthy
// candidate, leaves the Agent local-only: it keeps accepting ingest but
// never sends. Candidates are probed only here; nothing re-probes them
// later, so client() keeps returning nil for the life of the process.
func (r *Runtime) bootstrap(ctx context.Context) {
	if len(r.cfg.CollectorCandidates) == 0 {
		r.logger.Printf("no collector candidates configured; agent remains local-only")
		return
	}
	if r.cfg.APIKey == "" {
		r.logger.Printf("ARECIBO_AGENT_API_KEY missing; outbound API calls likely rejected")
	}

	probeTimeout := time.Duration(r.cfg.ProbeTimeout) * time.Second
	for _, candidate := range r.cfg.CollectorCandidates {
		client := collectorclient.New(candidate, r.cfg.APIKey, probeTimeout)
		status, body := client.Health(ctx)
		if status != 200 || body == nil {
			continue
		}
		ok, _ := body["ok"].(bool)
		if !ok {
			continue
		}
		r.state.SelectedCollector = candidate
		r.logger.Printf("selected collector=%s", candidate)
		break
	}

	if r.state.SelectedCollector == "" {
		r.logger.Printf("collector probe failed; agent remains local-only")
		return
	}

	r.announce(ctx)
	r.refreshPolicy(ctx)
}

// client returns an operational-timeout client bound to the currently
// selected collector, or nil if none is selected. It does not check
// GoDark; callers do.
func (r *Runtime) client() *collectorclient.Client {
	if r.state.SelectedCollector == "" {
		return nil
	}
	timeout := time.Duration(r.cfg.HTTPTimeout) * time.Second
	return collectorclient.New(r.state.SelectedCollector, r.cfg.APIKey, timeout)
}

func (r *Runtime) identity() map[string]interface{} {
	return map[string]interface{}{
		"serviceName": r.cfg.ServiceName,
		"environment": r.cfg.Environment,
		"repository":  r.cfg.Repository,
		"commitSha":   r.cfg.CommitSHA,
		"instanceId":  r.cfg.InstanceID,
		"startupTs":   events.NowTs(),
		"hostname":    r.cfg.Hostname,
	}
}

func (r *Runtime) announce(ctx context.Context) {
	client := r.client()
	if client == nil || r.state.GoDark {
		return
	}
	payload := map[string]interface{}{
		"schemaVersion": "1.0.0",
		"eventType":     "announce",
		"eventId":       newEventID("announce"),
		"sentAt":        events.NowTs(),
		"identity":      r.identity(),
		"runtime": map[string]interface{}{
			"agentPid":     pid(),
			"agentVersion": "0.1.0",
			"goVersion":    goVersion(),
		},
	}
	status, body := client.Announce(ctx, payload)
	if status == 202 && body != nil {
		directive.Apply(directive.ParseEnvelope(body), r, r.cfg.HeartbeatMinIntervalSec, r.logger)
		r.logger.Printf("announce accepted")
		return
	}
	r.logger.Printf("announce failed status=%d", status)
}

func (r *Runtime) refreshPolicy(ctx context.Context) {
	client := r.client()
	if client == nil || r.state.GoDark {
		return
	}
	status, body := client.Policy(ctx, r.cfg.ServiceName, r.cfg.Environment)
	if status == 200 && body != nil {
		policy, _ := body["policy"].(map[string]interface{})
		if sid, ok := body["agentSessionId"].(string); ok {
			r.state.Policy.SessionID = sid
		}
		if ttl, ok := body["ttlSec"].(float64); ok {
			r.state.Policy.TTLSec = int(ttl)
		}
		if policy != nil {
			if v, ok := policy["policyVersion"].(string); ok {
				r.state.Policy.PolicyVersion = v
			}
			if v, ok := policy["enabled"].(bool); ok {
				r.state.Policy.Enabled = v
			}
			if v, ok := policy["heartbeatIntervalSec"].(float64); ok {
				r.state.Policy.HeartbeatIntervalSec = int(v)
			}
			if v, ok := policy["maxBatchSize"].(float64); ok {
				r.state.Policy.MaxBatchSize = int(v)
			}
		}
		r.logger.Printf("policy loaded version=%s heartbeat=%ds session=%s",
			r.state.Policy.PolicyVersion, r.state.Policy.HeartbeatIntervalSec, r.state.Policy.SessionID)
		return
	}
	if status == 404 {
		r.logger.Printf("policy not found for %s/%s", r.cfg.ServiceName, r.cfg.Environment)
		return
	}
	r.logger.Printf("policy fetch failed status=%d", status)
}

func (r *Runtime) sendHeartbeat(ctx context.Context) {
	client := r.client()
	if client == nil || r.state.GoDark {
		return
	}
	uptime := int(time.Since(r.startedAt).Seconds())
	snap := r.counters.Snapshot()
	payload := map[string]interface{}{
		"schemaVersion": "1.0.0",
		"eventType":     "heartbeat",
		"eventId":       newEventID("heartbeat"),
		"sentAt":        events.NowTs(),
		"identity":      r.identity(),
		"status": map[string]interface{}{
			"agentUptimeSec":                             uptime,
			"maxEventQueueDepthSinceLastHeartbeat":        snap.MaxQueueDepthWindow,
			"eventsReceivedTotal":                         snap.EventsReceivedTotal,
			"eventsSentTotal":                             snap.EventsSentTotal,
			"eventsDroppedTotal":                          snap.EventsDroppedTotal,
			"eventsDroppedByQueueSizeSinceLastHeartbeat":   snap.DroppedByQueueSizeWindow,
			"eventsDroppedByPolicySinceLastHeartbeat":      snap.DroppedByPolicyWindow,
			"agentRssBytes":                                0,
			"goDark":                                       r.state.GoDark,
			"policyVersion":                                r.state.Policy.PolicyVersion,
		},
	}
	status, body := client.Heartbeat(ctx, payload)
	r.counters.ResetWindow()
	if status == 202 && body != nil {
		directive.Apply(directive.ParseEnvelope(body), r, r.cfg.HeartbeatMinIntervalSec, r.logger)
		return
	}
	r.logger.Printf("heartbeat failed status=%d", status)
}

// flush implements the seven-step batch-send procedure: go-dark short
// circuit, policy-disabled full drain, bounded pop, empty no-op,
// missing-session drop, send, and requeue-on-failure.
func (r *Runtime) flush(ctx context.Context) {
	if r.state.GoDark {
		return
	}
	if !r.state.Policy.Enabled {
		drained := r.queue.Drain()
		if len(drained) > 0 {
			r.queue.RecordPolicyDrop(len(drained))
		}
		return
	}

	client := r.client()
	if client == nil {
		return
	}

	limit := maxInt(1, minInt(r.state.Policy.MaxBatchSize, r.cfg.MaxBatchSize))
	batch := r.queue.PopBatch(limit)
	if len(batch) == 0 {
		return
	}
	if r.state.Policy.SessionID == "" {
		r.logger.Printf("no session id; dropping %d events", len(batch))
		r.queue.RecordPolicyDrop(len(batch))
		return
	}

	payload := map[string]interface{}{
		"schemaVersion":  "1.0.0",
		"batchId":        newEventID("batch"),
		"agentSessionId": r.state.Policy.SessionID,
		"sentAt":         events.NowTs(),
		"events":         batch,
	}
	status, body := client.EventsBatch(ctx, payload)
	if status == 202 {
		r.counters.AddSent(int64(len(batch)))
		if body != nil {
			directive.Apply(directive.ParseEnvelope(body), r, r.cfg.HeartbeatMinIntervalSec, r.logger)
		}
		return
	}
	r.logger.Printf("events batch failed status=%d count=%d", status, len(batch))
	for _, ev := range batch {
		r.queue.Push(ev)
	}
}

// directive.Applier implementation.

func (r *Runtime) SetGoDark(dark bool) { r.state.GoDark = dark }

func (r *Runtime) RefreshPolicy() { r.refreshPolicy(context.Background()) }

func (r *Runtime) SetHeartbeatIntervalSec(sec int) { r.state.Policy.HeartbeatIntervalSec = sec }

func (r *Runtime) FlushStats() {
	snap := r.counters.Snapshot()
	r.logger.Printf("FLUSH_STATS requested received=%d sent=%d dropped=%d queue=%d",
		snap.EventsReceivedTotal, snap.EventsSentTotal, snap.EventsDroppedTotal, r.queue.Size())
}

func pid() int { return os.Getpid() }

func goVersion() string { return goruntime.Version() }

func newEventID(prefix string) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
