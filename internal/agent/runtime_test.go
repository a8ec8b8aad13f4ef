package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contrived-com/arecibo/config"
	"github.com/contrived-com/arecibo/internal/events"
)

func testConfig(collectorURL string) *config.Agent {
	return &config.Agent{
		APIKey:                  "test-key",
		CollectorCandidates:     []string{collectorURL},
		ProbeTimeout:            1,
		HTTPTimeout:             1,
		ServiceName:             "demo-service",
		Environment:             "local",
		InstanceID:              "inst-1",
		HeartbeatIntervalSec:    30,
		HeartbeatMinIntervalSec: 5,
		PolicyRefreshJitterSec:  2,
		EventsFlushIntervalSec:  5,
		MaxEventQueueDepth:      1000,
		MaxBatchSize:            100,
	}
}

func fakeCollector(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "version": "test"})
	})
	mux.HandleFunc("/announce", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(202)
		json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"status": "ok", "requestId": "r1"}})
	})
	mux.HandleFunc("/policy", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"schemaVersion":  "1.0.0",
			"agentSessionId": "sess-1",
			"fetchedAt":      events.NowTs(),
			"ttlSec":         60,
			"policy": map[string]interface{}{
				"policyVersion": "1.0.0", "enabled": true, "heartbeatIntervalSec": float64(30), "maxBatchSize": float64(100),
			},
		})
	})
	mux.HandleFunc("/events:batch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(202)
		json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"status": "ok", "requestId": "r2"}})
	})
	return httptest.NewServer(mux)
}

func TestBootstrapSelectsHealthyCollectorAndLoadsPolicy(t *testing.T) {
	srv := fakeCollector(t)
	defer srv.Close()

	rt := New(testConfig(srv.URL), nil)
	rt.bootstrap(context.Background())

	if rt.state.SelectedCollector != srv.URL {
		t.Fatalf("expected collector selected, got %q", rt.state.SelectedCollector)
	}
	if rt.state.Policy.SessionID != "sess-1" {
		t.Fatalf("expected session id loaded from policy fetch, got %q", rt.state.Policy.SessionID)
	}
}

func TestBootstrapLeavesLocalOnlyWhenNoHealthyCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	rt := New(testConfig(srv.URL), nil)
	rt.bootstrap(context.Background())

	if rt.state.SelectedCollector != "" {
		t.Fatalf("expected no collector selected, got %q", rt.state.SelectedCollector)
	}
	if rt.client() != nil {
		t.Fatalf("expected nil client when no collector selected")
	}
}

func TestFlushDropsEventsWithoutSessionID(t *testing.T) {
	srv := fakeCollector(t)
	defer srv.Close()

	rt := New(testConfig(srv.URL), nil)
	rt.state.SelectedCollector = srv.URL
	rt.queue.Push(events.Event{Ts: events.NowTs(), Type: "t", Severity: "info", Payload: map[string]interface{}{}})

	rt.flush(context.Background())

	snap := rt.counters.Snapshot()
	if snap.DroppedByPolicyWindow != 1 {
		t.Fatalf("expected 1 policy drop for missing session id, got %d", snap.DroppedByPolicyWindow)
	}
}

func TestFlushSendsBatchAndRecordsSent(t *testing.T) {
	srv := fakeCollector(t)
	defer srv.Close()

	rt := New(testConfig(srv.URL), nil)
	rt.state.SelectedCollector = srv.URL
	rt.state.Policy.SessionID = "sess-1"
	rt.queue.Push(events.Event{Ts: events.NowTs(), Type: "t", Severity: "info", Payload: map[string]interface{}{}})

	rt.flush(context.Background())

	snap := rt.counters.Snapshot()
	if snap.EventsSentTotal != 1 {
		t.Fatalf("expected 1 event sent, got %d", snap.EventsSentTotal)
	}
	if rt.queue.Size() != 0 {
		t.Fatalf("expected queue drained, got size %d", rt.queue.Size())
	}
}

func TestFlushGoDarkIsNoOp(t *testing.T) {
	rt := New(testConfig("http://unused"), nil)
	rt.state.GoDark = true
	rt.queue.Push(events.Event{Ts: events.NowTs(), Type: "t", Severity: "info", Payload: map[string]interface{}{}})

	rt.flush(context.Background())

	if rt.queue.Size() != 1 {
		t.Fatalf("expected go-dark flush to leave queue untouched, got size %d", rt.queue.Size())
	}
}
