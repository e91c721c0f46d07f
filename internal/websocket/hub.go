package websocket

import (
	"context"
	"encoding/json"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/rs/zerolog/log"
)

type postMessage struct {
	postID  int64
	message []byte
}

// Hub maintains the set of active clients and fans out new comments to the viewers of a post.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	publish chan postMessage
	done    chan struct{}

	// A map of post IDs to the set of clients viewing it.
	subscriptions map[int64]map[*Client]bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		publish:       make(chan postMessage, 64),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[int64]map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			h.addSubscription(client, client.PostID)
			log.Debug().Int("total_clients", len(h.clients)).Int64("post_id", client.PostID).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Debug().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case msg := <-h.publish:
			for client := range h.subscriptions[msg.postID] {
				select {
				case client.Send <- msg.message:
				default:
					// Slow reader.
					h.drop(client)
				}
			}
		}
	}
}

// PublishComment sends a new comment to everyone viewing its post. It never blocks; the
// comment is skipped when the hub is backed up.
func (h *Hub) PublishComment(comment models.Comment) {
	data, err := json.Marshal(Message{Action: ActionCommentCreated, Payload: comment})
	if err != nil {
		log.Error().Err(err).Int64("comment_id", comment.ID).Msg("Failed to encode comment for broadcast")
		return
	}
	select {
	case h.publish <- postMessage{postID: comment.PostID, message: data}:
	default:
		log.Warn().Int64("post_id", comment.PostID).Msg("Hub busy, comment not broadcast")
	}
}

// Join registers client. It reports false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.done)
	h.removeSubscription(client)
}

func (h *Hub) addSubscription(client *Client, postID int64) {
	if h.subscriptions[postID] == nil {
		h.subscriptions[postID] = make(map[*Client]bool)
	}
	h.subscriptions[postID][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	subs, ok := h.subscriptions[client.PostID]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscriptions, client.PostID)
	}
}
