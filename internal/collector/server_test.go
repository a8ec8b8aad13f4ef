package collector

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contrived-com/arecibo/config"
	"github.com/contrived-com/arecibo/internal/policystore"
	"github.com/contrived-com/arecibo/internal/schema"
)

func testServer(t *testing.T, cfg *config.Collector) (*Server, *policystore.Store) {
	t.Helper()
	validator, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("compiling schemas: %v", err)
	}
	policies := policystore.New(60, policystore.DefaultPolicies())
	return New(cfg, validator, policies, nil, nil, nil), policies
}

func baseConfig() *config.Collector {
	return &config.Collector{
		APIKeys:  map[string]struct{}{"test-key": {}},
		HTTPPort: 8080,
	}
}

func nowTs() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv, _ := testServer(t, baseConfig())
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestProtectedRouteRejectsMissingAPIKey(t *testing.T) {
	srv, _ := testServer(t, baseConfig())
	req := httptest.NewRequest("POST", "/announce", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAnnounceAccepted(t *testing.T) {
	srv, _ := testServer(t, baseConfig())
	body, _ := json.Marshal(map[string]interface{}{
		"schemaVersion": "1.0.0",
		"eventType":     "announce",
		"eventId":       "evt-1",
		"sentAt":        nowTs(),
		"identity": map[string]interface{}{
			"serviceName": "demo-service",
			"environment": "local",
			"instanceId":  "inst-1",
			"startupTs":   nowTs(),
		},
	})
	req := httptest.NewRequest("POST", "/announce", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPolicyNotFoundThenFound(t *testing.T) {
	srv, _ := testServer(t, baseConfig())

	req := httptest.NewRequest("GET", "/policy?serviceName=nonexistent&environment=prod", nil)
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != 404 {
		t.Fatalf("expected 404 policy_not_found, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/policy?serviceName=demo-service&environment=local", nil)
	req.Header.Set("X-API-Key", "test-key")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEventsBatchTooLarge(t *testing.T) {
	srv, _ := testServer(t, baseConfig())

	events := make([]map[string]interface{}, 1001)
	for i := range events {
		events[i] = map[string]interface{}{
			"ts": nowTs(), "type": "t", "severity": "info", "payload": map[string]interface{}{},
		}
	}
	body, _ := json.Marshal(map[string]interface{}{
		"schemaVersion":  "1.0.0",
		"batchId":        "batch-1",
		"agentSessionId": "sess-1",
		"sentAt":         nowTs(),
		"events":         events,
	})
	req := httptest.NewRequest("POST", "/events:batch", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 413 {
		t.Fatalf("expected 413 batch_too_large, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEventsBatchValidationError(t *testing.T) {
	srv, _ := testServer(t, baseConfig())

	body, _ := json.Marshal(map[string]interface{}{"schemaVersion": "1.0.0"})
	req := httptest.NewRequest("POST", "/events:batch", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 400 {
		t.Fatalf("expected 400 validation_error, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHeartbeatForcedGoDarkInjectsDirective(t *testing.T) {
	cfg := baseConfig()
	cfg.ForceGoDark = true
	srv, _ := testServer(t, cfg)

	body, _ := json.Marshal(map[string]interface{}{
		"schemaVersion": "1.0.0",
		"eventType":     "heartbeat",
		"eventId":       "evt-2",
		"sentAt":        nowTs(),
		"identity": map[string]interface{}{
			"serviceName": "demo-service",
			"environment": "local",
			"instanceId":  "inst-1",
			"startupTs":   nowTs(),
		},
		"status": map[string]interface{}{
			"agentUptimeSec": 10, "maxEventQueueDepthSinceLastHeartbeat": 0,
			"eventsReceivedTotal": 0, "eventsSentTotal": 0, "eventsDroppedTotal": 0,
			"eventsDroppedByQueueSizeSinceLastHeartbeat": 0, "eventsDroppedByPolicySinceLastHeartbeat": 0,
			"goDark": false,
		},
	})
	req := httptest.NewRequest("POST", "/heartbeat", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var decoded Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if decoded.Result.Status != "directive" {
		t.Fatalf("expected status directive, got %s", decoded.Result.Status)
	}
	if len(decoded.Result.Directives) != 1 || decoded.Result.Directives[0].Type != "GO_DARK" {
		t.Fatalf("expected a single GO_DARK directive, got %+v", decoded.Result.Directives)
	}
}

func TestPendingAdminDirectiveDeliveredOnHeartbeat(t *testing.T) {
	srv, _ := testServer(t, baseConfig())

	sessions := &fakeSessionTracker{}
	directives := &fakeDirectiveSource{
		queued: map[string][]Directive{
			"demo-service|local|inst-1": {{Type: "SET_HEARTBEAT_INTERVAL", Value: float64(15)}},
		},
	}
	srv.WithAdmin(sessions, directives)

	body, _ := json.Marshal(map[string]interface{}{
		"schemaVersion": "1.0.0",
		"eventType":     "heartbeat",
		"eventId":       "evt-3",
		"sentAt":        nowTs(),
		"identity": map[string]interface{}{
			"serviceName": "demo-service",
			"environment": "local",
			"instanceId":  "inst-1",
			"startupTs":   nowTs(),
		},
		"status": map[string]interface{}{
			"agentUptimeSec": 10, "maxEventQueueDepthSinceLastHeartbeat": 0,
			"eventsReceivedTotal": 0, "eventsSentTotal": 0, "eventsDroppedTotal": 0,
			"eventsDroppedByQueueSizeSinceLastHeartbeat": 0, "eventsDroppedByPolicySinceLastHeartbeat": 0,
			"goDark": false,
		},
	})
	req := httptest.NewRequest("POST", "/heartbeat", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var decoded Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(decoded.Result.Directives) != 1 || decoded.Result.Directives[0].Type != "SET_HEARTBEAT_INTERVAL" {
		t.Fatalf("expected the queued directive to be delivered, got %+v", decoded.Result.Directives)
	}
	if !sessions.touched {
		t.Fatalf("expected session tracker to observe the heartbeat")
	}
}

type fakeSessionTracker struct{ touched bool }

func (f *fakeSessionTracker) Touch(serviceName, environment, instanceID string, status map[string]interface{}, goDark bool) {
	f.touched = true
}

type fakeDirectiveSource struct{ queued map[string][]Directive }

func (f *fakeDirectiveSource) Pop(serviceName, environment, instanceID string) []Directive {
	key := serviceName + "|" + environment + "|" + instanceID
	d := f.queued[key]
	delete(f.queued, key)
	return d
}
