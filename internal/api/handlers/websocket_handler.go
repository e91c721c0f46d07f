package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/isdelr/telemed-portal/internal/auth"
	"github.com/isdelr/telemed-portal/internal/services"
	ws "github.com/isdelr/telemed-portal/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades viewers of a post to a live comment feed.
type WebSocketHandler struct {
	hub      *ws.Hub
	posts    services.PostServiceProvider
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Cross-origin upgrades are accepted
// only from allowedOrigins.
func NewWebSocketHandler(hub *ws.Hub, posts services.PostServiceProvider, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:   hub,
		posts: posts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin] || origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

// Serve handles the WebSocket connection request for /posts/{id}/ws.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	postID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if _, err := h.posts.GetPost(r.Context(), auth.CurrentUser(r.Context()), postID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, postID)
	if !h.hub.Join(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go func() {
		client.ReadPump(handleIncomingWSMessage)
		// Closes Done, which ends the write pump.
		h.hub.Leave(client)
	}()
}

// handleIncomingWSMessage processes messages received from a websocket client. Viewers
// only receive comments; the only thing they can send is a ping.
func handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Msg("Error decoding websocket message")
		client.Reply(ws.NewErrorMessage("invalid message"))
		return
	}

	switch msg.Action {
	case ws.ActionPing:
		client.Reply(ws.NewPongMessage())
	default:
		log.Debug().Str("action", msg.Action).Msg("Unknown websocket action received")
		client.Reply(ws.NewErrorMessage("Unknown action: " + msg.Action))
	}
}
