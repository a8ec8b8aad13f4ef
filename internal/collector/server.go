// Package collector implements the control-plane HTTP server: API-key
// authenticated endpoints for agent announce/policy/heartbeat/events:batch,
// schema-validated in both directions, with server-driven GO_DARK
// directive injection. Grounded on the reference FastAPI app's route
// shape and error taxonomy.
package collector

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/contrived-com/arecibo/config"
	"github.com/contrived-com/arecibo/internal/eventbus"
	"github.com/contrived-com/arecibo/internal/policystore"
	"github.com/contrived-com/arecibo/internal/schema"
)

const maxBatchEvents = 1000

// AuditSink receives a fire-and-forget copy of every accepted write
// (announce/heartbeat/events:batch), matching the write-only audit log.
type AuditSink interface {
	Record(kind string, requestID string, payload map[string]interface{})
}

// SessionTracker receives a snapshot of agent-reported status on every
// announce/heartbeat so the admin dashboard can render live session state.
type SessionTracker interface {
	Touch(serviceName, environment, instanceID string, status map[string]interface{}, goDark bool)
}

// DirectiveSource hands back any operator-queued directives for a given
// agent instance, consumed on the instance's next heartbeat. Batch
// payloads carry no instance identity, so batch responses never deliver
// them.
type DirectiveSource interface {
	Pop(serviceName, environment, instanceID string) []Directive
}

// Server is the Collector's HTTP surface. Construct with New and mount
// with Router.
type Server struct {
	cfg        *config.Collector
	validator  schema.Validator
	policies   *policystore.Store
	bus        *eventbus.Publisher
	audit      AuditSink
	sessions   SessionTracker
	directives DirectiveSource
	logger     *log.Logger
	version    string
}

// New constructs a Server. bus, audit, sessions and directives may all be
// nil; each is additive and never load-bearing for the Agent-visible
// contract on its own.
func New(cfg *config.Collector, validator schema.Validator, policies *policystore.Store, bus *eventbus.Publisher, audit AuditSink, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[collector] ", log.LstdFlags)
	}
	return &Server{
		cfg:       cfg,
		validator: validator,
		policies:  policies,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		version:   "0.1.0",
	}
}

// WithAdmin attaches the admin dashboard's session tracker and pending
// directive source. Call before Router.
func (s *Server) WithAdmin(sessions SessionTracker, directives DirectiveSource) *Server {
	s.sessions = sessions
	s.directives = directives
	return s
}

// MountRoutes registers every Collector endpoint on r, wrapped with
// request-id assignment. Callers that need to mount additional route
// groups (e.g. the admin dashboard) alongside the Collector's own should
// use this instead of Router and apply CORS themselves once, over the
// combined router.
func (s *Server) MountRoutes(r *mux.Router) {
	r.Use(s.requestIDMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/announce", s.handleAnnounce).Methods(http.MethodPost)
	authed.HandleFunc("/policy", s.handlePolicy).Methods(http.MethodGet)
	authed.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	authed.HandleFunc("/events:batch", s.handleEventsBatch).Methods(http.MethodPost)
}

// Router builds a standalone mux.Router exposing only the Collector's own
// endpoints, wrapped with permissive CORS for the admin dashboard origin.
// Use MountRoutes directly when combining with other route groups.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	s.MountRoutes(r)
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	}).Handler(r)
}

type requestIDKey struct{}

// requestIDMiddleware assigns a fresh request id to every request and
// echoes it back via X-Request-Id, matching app.py's request_context
// middleware.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := contextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware enforces X-API-Key membership in the configured key set.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r.Context())
		key := r.Header.Get("X-API-Key")
		if key == "" {
			s.writeJSON(w, http.StatusUnauthorized, rejectedEnvelope(requestID, "unauthorized", "Missing X-API-Key."))
			return
		}
		if _, ok := s.cfg.APIKeys[key]; !ok {
			s.writeJSON(w, http.StatusUnauthorized, rejectedEnvelope(requestID, "unauthorized", "Invalid X-API-Key."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "version": s.version})
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	payload, ok := s.decodeAndValidate(w, r, schema.Announce, requestID)
	if !ok {
		return
	}

	identity, _ := payload["identity"].(map[string]interface{})
	s.logger.Printf("announce_received requestId=%s serviceName=%v environment=%v instanceId=%v",
		requestID, identity["serviceName"], identity["environment"], identity["instanceId"])

	s.recordAudit("announce", requestID, payload)
	s.touchSession(identity, nil, false)
	s.writeJSON(w, http.StatusAccepted, okEnvelope(requestID))
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	serviceName := r.URL.Query().Get("serviceName")
	environment := r.URL.Query().Get("environment")

	policy, ok := s.policies.Lookup(serviceName, environment)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, rejectedEnvelope(requestID, "policy_not_found",
			"No policy configured for service '"+serviceName+"' in environment '"+environment+"'."))
		return
	}
	if policy.ServiceName != serviceName || policy.Environment != environment {
		s.writeJSON(w, http.StatusForbidden, rejectedEnvelope(requestID, "policy_mismatch",
			"Policy serviceName/environment mismatch."))
		return
	}

	response := s.policies.BuildResponse(serviceName, environment, policy)
	if errs := s.validateOutgoing(schema.PolicyResponse, response); len(errs) > 0 {
		s.logger.Printf("internal schema violation building policy_response: %v", errs)
		s.writeJSON(w, http.StatusInternalServerError, retryableEnvelope(requestID, "internal_error", "Unhandled server error."))
		return
	}

	s.logger.Printf("policy_fetched requestId=%s serviceName=%s environment=%s agentSessionId=%s",
		requestID, serviceName, environment, response.AgentSessionID)
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	payload, ok := s.decodeAndValidate(w, r, schema.Heartbeat, requestID)
	if !ok {
		return
	}

	identity, _ := payload["identity"].(map[string]interface{})
	statusPayload, _ := payload["status"].(map[string]interface{})
	s.logger.Printf("heartbeat_received requestId=%s serviceName=%v environment=%v agentUptimeSec=%v eventsReceivedTotal=%v eventsSentTotal=%v",
		requestID, identity["serviceName"], identity["environment"],
		statusPayload["agentUptimeSec"], statusPayload["eventsReceivedTotal"], statusPayload["eventsSentTotal"])

	s.recordAudit("heartbeat", requestID, payload)
	goDark := s.goDarkDirectivesIfEnabled("heartbeat")
	pending := s.popPendingDirectives(identity)
	s.touchSession(identity, statusPayload, len(goDark) > 0)
	s.writeJSON(w, http.StatusAccepted, directiveEnvelope(requestID, append(goDark, pending...)))
}

func (s *Server) handleEventsBatch(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeJSON(w, http.StatusBadRequest, rejectedEnvelope(requestID, "validation_error", "Malformed JSON body."))
		return
	}
	if evs, ok := raw["events"].([]interface{}); ok && len(evs) > maxBatchEvents {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, rejectedEnvelope(requestID, "batch_too_large", "events exceeds maxItems 1000"))
		return
	}

	if errs, err := s.validator.Validate(schema.EventsBatch, raw); err != nil || len(errs) > 0 {
		s.writeJSON(w, http.StatusBadRequest, rejectedEnvelope(requestID, "validation_error", joinErrors(errs)))
		return
	}

	events, _ := raw["events"].([]interface{})
	s.logger.Printf("events_batch_received requestId=%s agentSessionId=%v batchId=%v eventCount=%d",
		requestID, raw["agentSessionId"], raw["batchId"], len(events))

	s.recordAudit("events_batch", requestID, raw)
	if s.bus != nil {
		agentSessionID, _ := raw["agentSessionId"].(string)
		serviceName, environment, ok := s.policies.ResolveSession(agentSessionID)
		if !ok {
			serviceName, environment = "unknown", "unknown"
		}
		s.bus.PublishBatch(serviceName, environment, raw)
	}

	directives := s.goDarkDirectivesIfEnabled("events")
	s.writeJSON(w, http.StatusAccepted, directiveEnvelope(requestID, directives))
}

// decodeAndValidate decodes the request body into a generic JSON object
// and validates it against schemaName, writing a 400 validation_error
// response and returning ok=false on any failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, schemaName, requestID string) (map[string]interface{}, bool) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, rejectedEnvelope(requestID, "validation_error", "Malformed JSON body."))
		return nil, false
	}
	errs, err := s.validator.Validate(schemaName, payload)
	if err != nil || len(errs) > 0 {
		s.writeJSON(w, http.StatusBadRequest, rejectedEnvelope(requestID, "validation_error", joinErrors(errs)))
		return nil, false
	}
	return payload, true
}

// validateOutgoing self-validates a response this Collector is about to
// send, matching app.py's _validated_response_or_500. payload is first
// round-tripped through encoding/json so the validator sees the same
// generic JSON value the client will decode.
func (s *Server) validateOutgoing(schemaName string, payload interface{}) []string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return []string{err.Error()}
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return []string{err.Error()}
	}
	errs, err := s.validator.Validate(schemaName, decoded)
	if err != nil {
		return []string{err.Error()}
	}
	return errs
}

// touchSession forwards an identity+status snapshot to the admin dashboard's
// session tracker, if one is attached. A no-op when sessions is nil or the
// identity block is missing required fields.
func (s *Server) touchSession(identity, status map[string]interface{}, goDark bool) {
	if s.sessions == nil || identity == nil {
		return
	}
	serviceName, _ := identity["serviceName"].(string)
	environment, _ := identity["environment"].(string)
	instanceID, _ := identity["instanceId"].(string)
	if serviceName == "" || environment == "" || instanceID == "" {
		return
	}
	s.sessions.Touch(serviceName, environment, instanceID, status, goDark)
}

// popPendingDirectives drains any operator-queued directives for the
// heartbeating instance. A no-op when directives is nil.
func (s *Server) popPendingDirectives(identity map[string]interface{}) []Directive {
	if s.directives == nil || identity == nil {
		return nil
	}
	serviceName, _ := identity["serviceName"].(string)
	environment, _ := identity["environment"].(string)
	instanceID, _ := identity["instanceId"].(string)
	if serviceName == "" || environment == "" || instanceID == "" {
		return nil
	}
	return s.directives.Pop(serviceName, environment, instanceID)
}

func (s *Server) recordAudit(kind, requestID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Record(kind, requestID, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	if env, ok := body.(Envelope); ok {
		if errs := s.validateOutgoing(schema.Result, env); len(errs) > 0 {
			s.logger.Printf("internal schema violation building result: %v", errs)
			status = http.StatusInternalServerError
			body = retryableEnvelope(env.Result.RequestID, "internal_error", "Unhandled server error.")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Printf("failed writing response body: %v", err)
	}
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}
