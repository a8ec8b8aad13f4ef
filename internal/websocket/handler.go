package websocket

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/contrived-com/arecibo/internal/auth"
	"github.com/contrived-com/arecibo/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		// TODO: Restrict in production
		return true
	},
}

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub *Hub
	jwt *auth.JWTManager
}

// NewHandler creates a new WebSocket handler. jwt validates the access
// token carried either as a ?token= query parameter or, when that is
// absent, the cookie set at admin login.
func NewHandler(hub *Hub, jwt *auth.JWTManager) *Handler {
	return &Handler{hub: hub, jwt: jwt}
}

// ServeHTTP handles the HTTP request and upgrades to WebSocket
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie("arecibo_admin_token"); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		http.Error(w, "Token required", http.StatusUnauthorized)
		return
	}

	userID := h.validateToken(token)
	if userID == "" {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket Handler] Failed to upgrade connection: %v", err)
		return
	}

	// Create new client
	client := NewClient(h.hub, conn, userID)

	// Register client with hub
	h.hub.register <- client

	// Start client goroutines
	client.Run()

	log.Printf("[WebSocket Handler] Client %s connected (user: %s)", client.id, metrics.HashClientID(userID))
}

// HandleBroadcast handles internal broadcast requests posted over HTTP
func (h *Handler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg struct {
		Channel string                 `json:"channel"`
		Data    map[string]interface{} `json:"data"`
	}

	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if msg.Channel == "" {
		http.Error(w, "Channel is required", http.StatusBadRequest)
		return
	}

	// Broadcast to channel
	h.hub.BroadcastToChannel(msg.Channel, msg.Data)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// validateToken validates the admin access token and returns the subject
// user ID, or "" if the token is missing or invalid.
func (h *Handler) validateToken(token string) string {
	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		return ""
	}
	return claims.UserID
}
