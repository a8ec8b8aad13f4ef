package admin

import (
	"sync"
	"time"
)

// SessionState is the admin dashboard's last-known view of one Agent
// instance, built up from observed announce/heartbeat traffic rather than
// any state the Agent is asked to report specially.
type SessionState struct {
	ServiceName string                 `json:"serviceName"`
	Environment string                 `json:"environment"`
	InstanceID  string                 `json:"instanceId"`
	LastSeen    time.Time              `json:"lastSeen"`
	GoDark      bool                   `json:"goDark"`
	Status      map[string]interface{} `json:"status,omitempty"`
}

// SessionStore is the dashboard's live session table, guarded by its own
// mutex independent of the policy store and the pending directive queue so
// a slow dashboard read never blocks an agent-facing request.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState
}

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*SessionState)}
}

func sessionKey(serviceName, environment, instanceID string) string {
	return serviceName + "|" + environment + "|" + instanceID
}

// Touch records the latest status snapshot for one agent instance,
// implementing collector.SessionTracker.
func (s *SessionStore) Touch(serviceName, environment, instanceID string, status map[string]interface{}, goDark bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(serviceName, environment, instanceID)] = &SessionState{
		ServiceName: serviceName,
		Environment: environment,
		InstanceID:  instanceID,
		LastSeen:    time.Now(),
		GoDark:      goDark,
		Status:      status,
	}
}

// Snapshot returns every known session, sorted by nothing in particular;
// callers sort for display if they need to.
func (s *SessionStore) Snapshot() []*SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SessionState, 0, len(s.sessions))
	for _, state := range s.sessions {
		copied := *state
		out = append(out, &copied)
	}
	return out
}
