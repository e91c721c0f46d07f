package websocket

import "encoding/json"

const (
	ActionCommentCreated = "comment.created"
	ActionPing           = "ping"
	ActionPong           = "pong"
	ActionError          = "error"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// NewErrorMessage encodes an error reply for a client.
func NewErrorMessage(text string) []byte {
	data, _ := json.Marshal(Message{Action: ActionError, Payload: map[string]string{"error": text}})
	return data
}

// NewPongMessage encodes the reply to a client ping.
func NewPongMessage() []byte {
	data, _ := json.Marshal(Message{Action: ActionPong})
	return data
}
