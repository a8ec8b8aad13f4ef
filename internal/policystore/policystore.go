// Package policystore resolves an Agent's (serviceName, environment) pair
// to the policy it should run under, and derives the stable session id
// that correlates a policy fetch with the batches sent under it.
package policystore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Policy is the control-plane configuration for one (serviceName,
// environment) pair.
type Policy struct {
	PolicyVersion        string                 `json:"policyVersion"`
	ServiceName           string                `json:"serviceName"`
	Environment           string                `json:"environment"`
	Enabled                bool                  `json:"enabled"`
	DefaultSampleRate      float64               `json:"defaultSampleRate"`
	HeartbeatIntervalSec   int                   `json:"heartbeatIntervalSec"`
	MaxEventQueueDepth     int                   `json:"maxEventQueueDepth"`
	MaxBatchSize           int                   `json:"maxBatchSize"`
	EventOverrides         map[string]interface{} `json:"eventOverrides"`
	RedactionRules         []interface{}          `json:"redactionRules"`
}

// Response is the bare (non-enveloped) body returned by GET /policy.
type Response struct {
	SchemaVersion  string `json:"schemaVersion"`
	AgentSessionID string `json:"agentSessionId"`
	FetchedAt      string `json:"fetchedAt"`
	TTLSec         int    `json:"ttlSec"`
	Policy         Policy `json:"policy"`
}

// Store is an in-memory, read-only-after-construction policy table keyed
// by "<service>:<env>", with wildcard ("<service>:*") fallback.
type Store struct {
	ttlSec   int
	policies map[string]Policy

	mu       sync.RWMutex
	sessions map[string][2]string // agentSessionId -> [service, env]
}

// New constructs a Store. ttlSec is floored at 5, matching the Collector's
// ARECIBO_POLICY_TTL_SEC floor.
func New(ttlSec int, policies map[string]Policy) *Store {
	if ttlSec < 5 {
		ttlSec = 5
	}
	return &Store{ttlSec: ttlSec, policies: policies, sessions: make(map[string][2]string)}
}

// DefaultPolicies seeds the baseline demo-service policy the reference
// deployment ships out of the box.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"demo-service:local": {
			PolicyVersion:        "1.0.0",
			ServiceName:          "demo-service",
			Environment:          "local",
			Enabled:              true,
			DefaultSampleRate:    1.0,
			HeartbeatIntervalSec: 30,
			MaxEventQueueDepth:   10000,
			MaxBatchSize:         1000,
			EventOverrides:       map[string]interface{}{},
			RedactionRules:       []interface{}{},
		},
	}
}

// Lookup resolves service/env to a Policy, trying the exact key first and
// then the "<service>:*" wildcard. The bool reports whether either
// resolved.
func (s *Store) Lookup(service, env string) (Policy, bool) {
	if p, ok := s.policies[fmt.Sprintf("%s:%s", service, env)]; ok {
		return p, true
	}
	p, ok := s.policies[fmt.Sprintf("%s:*", service)]
	return p, ok
}

// SessionID derives the stable, name-based session id for (service, env).
// Two calls with identical inputs always return the same string.
func SessionID(service, env string) string {
	raw := fmt.Sprintf("arecibo:%s:%s", service, env)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(raw)).String()
}

// BuildResponse constructs the GET /policy response body for a policy that
// has already been matched to service/env by the caller, and records the
// session id's origin so a later events:batch naming a bare agentSessionId
// can be traced back to it (see ResolveSession).
func (s *Store) BuildResponse(service, env string, p Policy) Response {
	sessionID := SessionID(service, env)

	s.mu.Lock()
	s.sessions[sessionID] = [2]string{service, env}
	s.mu.Unlock()

	return Response{
		SchemaVersion:  "1.0.0",
		AgentSessionID: sessionID,
		FetchedAt:      time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		TTLSec:         s.ttlSec,
		Policy:         p,
	}
}

// ResolveSession looks up the (service, env) pair that produced
// agentSessionId via a prior BuildResponse call. The bool reports whether
// that session id has been observed yet.
func (s *Store) ResolveSession(agentSessionID string) (service, env string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.sessions[agentSessionID]
	if !ok {
		return "", "", false
	}
	return pair[0], pair[1], true
}
