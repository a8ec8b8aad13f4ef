// Package admin implements the operator-facing dashboard surface: login,
// a live snapshot of every known Agent session, one-shot directive
// injection, and a WebSocket push channel for both — grounded on the
// reference dashboard's cookie-session auth shape, adapted to a real JWT.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/contrived-com/arecibo/internal/auth"
	"github.com/contrived-com/arecibo/internal/collector"
	"github.com/contrived-com/arecibo/internal/websocket"
)

const sessionCookieName = "arecibo_admin_token"

// Service implements collector.SessionTracker and collector.DirectiveSource
// and mounts the /api/v1/admin/* route group.
type Service struct {
	jwt        *auth.JWTManager
	users      *auth.InMemoryUserStore
	sessions   *SessionStore
	directives *DirectiveQueue
	hub        *websocket.Hub
	secureCookies bool
}

// NewService constructs a Service. hub may be nil, in which case state
// changes are tracked but never pushed over a live socket.
func NewService(jwt *auth.JWTManager, users *auth.InMemoryUserStore, hub *websocket.Hub, secureCookies bool) *Service {
	return &Service{
		jwt:           jwt,
		users:         users,
		sessions:      NewSessionStore(),
		directives:    NewDirectiveQueue(),
		hub:           hub,
		secureCookies: secureCookies,
	}
}

// Sessions exposes the underlying session store. Touching it directly
// skips the live dashboard push that Service.Touch performs.
func (s *Service) Sessions() *SessionStore { return s.sessions }

// Directives exposes the underlying pending directive queue.
func (s *Service) Directives() *DirectiveQueue { return s.directives }

// Touch implements collector.SessionTracker, forwarding to the session
// store and pushing a live update to any connected dashboard sockets.
func (s *Service) Touch(serviceName, environment, instanceID string, status map[string]interface{}, goDark bool) {
	s.sessions.Touch(serviceName, environment, instanceID, status, goDark)
	s.broadcastState()
}

// Pop implements collector.DirectiveSource.
func (s *Service) Pop(serviceName, environment, instanceID string) []collector.Directive {
	return s.directives.Pop(serviceName, environment, instanceID)
}

// RegisterRoutes mounts every admin route on router.
func (s *Service) RegisterRoutes(router *mux.Router) {
	admin := router.PathPrefix("/api/v1/admin").Subrouter()
	admin.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := admin.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	authed.HandleFunc("/directives", s.handleDirective).Methods(http.MethodPost)
}

// WSHandler returns the WebSocket upgrade handler for /api/v1/admin/ws,
// sharing this Service's JWTManager for token validation.
func (s *Service) WSHandler() *websocket.Handler {
	return websocket.NewHandler(s.hub, s.jwt)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.ValidateCredentials(req.Username, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]string{
			"id":       user.ID,
			"username": user.Username,
			"role":     user.Role,
		},
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.sessions.Snapshot()})
}

type directiveRequest struct {
	ServiceName string      `json:"serviceName"`
	Environment string      `json:"environment"`
	InstanceID  string      `json:"instanceId"`
	Type        string      `json:"type"`
	Value       interface{} `json:"value,omitempty"`
	TTLSec      *int        `json:"ttlSec,omitempty"`
}

func (s *Service) handleDirective(w http.ResponseWriter, r *http.Request) {
	var req directiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ServiceName == "" || req.Environment == "" || req.InstanceID == "" || req.Type == "" {
		respondError(w, http.StatusBadRequest, "serviceName, environment, instanceId and type are required")
		return
	}

	s.directives.Push(req.ServiceName, req.Environment, req.InstanceID, collector.Directive{
		Type:   req.Type,
		Value:  req.Value,
		TTLSec: req.TTLSec,
	})
	s.broadcastDirectiveQueued(req)
	respondJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

// authMiddleware accepts the JWT either as the admin session cookie or a
// bearer Authorization header, for API clients that don't carry cookies.
func (s *Service) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie(sessionCookieName); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if _, err := s.jwt.ValidateAccessToken(token); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (s *Service) broadcastState() {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToChannel("sessions", map[string]interface{}{"sessions": s.sessions.Snapshot()})
}

func (s *Service) broadcastDirectiveQueued(req directiveRequest) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToChannel("directives", map[string]interface{}{
		"serviceName": req.ServiceName,
		"environment": req.Environment,
		"instanceId":  req.InstanceID,
		"type":        req.Type,
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
