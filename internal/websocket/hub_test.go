package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHubPublishesToPostViewersOnly(t *testing.T) {
	hub := startHub(t)
	viewer := NewClient(hub, nil, 1)
	other := NewClient(hub, nil, 2)
	require.True(t, hub.Join(viewer))
	require.True(t, hub.Join(other))

	hub.PublishComment(models.Comment{ID: 7, PostID: 1, Text: "Nice"})

	msg := receive(t, viewer)
	assert.Equal(t, ActionCommentCreated, msg.Action)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Nice", payload["text"])

	select {
	case <-other.Send:
		t.Fatal("viewer of another post received the comment")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubLeaveClosesDone(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, nil, 1)
	require.True(t, hub.Join(c))
	hub.Leave(c)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done channel not closed")
	}

	// Replies after leaving are dropped instead of queued.
	c.Reply([]byte(`{"action":"pong"}`))
	assert.Empty(t, c.Send)
}

func TestReplyRacingLeave(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub, nil, 1)
	require.True(t, hub.Join(c))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Reply(NewPongMessage())
			if len(c.Send) == cap(c.Send) {
				<-c.Send
			}
		}
	}()
	hub.Leave(c)
	wg.Wait()

	<-c.Done()
}

func TestHubStoppedRejectsJoin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.False(t, hub.Join(NewClient(hub, nil, 1)))
	hub.Leave(NewClient(hub, nil, 1))
}
