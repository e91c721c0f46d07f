package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyMailer fails the first failures calls with err.
type flakyMailer struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (m *flakyMailer) Send(ctx context.Context, _ Message) error {
	n := m.calls.Add(1)
	if n <= m.failures {
		return m.err
	}
	return ctx.Err()
}

type recordedEvents struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordedEvents) CreateEvent(_ context.Context, eventType, level, message string, subjectID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, models.Event{Type: eventType, Level: level, Message: message, SubjectID: subjectID})
	return nil
}

func (r *recordedEvents) GetRecentEvents(context.Context, int) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...), nil
}

var fastRetry = QueueOptions{Workers: 1, MaxAttempts: 3, RetryInterval: time.Millisecond, Timeout: time.Second}

func stopQueue(t *testing.T, q Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
}

func TestQueueRetriesUntilDelivered(t *testing.T) {
	mailer := &flakyMailer{failures: 2, err: errors.New("connection reset")}
	events := &recordedEvents{}
	q := NewQueue(mailer, events, fastRetry)
	q.Start(context.Background())

	require.True(t, q.Enqueue(Message{Event: EventContactSubmitted}))
	stopQueue(t, q)

	assert.EqualValues(t, 3, mailer.calls.Load())
	assert.Empty(t, events.events)
}

func TestQueueRecordsFailureAfterMaxAttempts(t *testing.T) {
	mailer := &flakyMailer{failures: 100, err: errors.New("connection reset")}
	events := &recordedEvents{}
	q := NewQueue(mailer, events, fastRetry)
	q.Start(context.Background())

	require.True(t, q.Enqueue(Message{Event: EventCommentCreated}))
	stopQueue(t, q)

	assert.EqualValues(t, 3, mailer.calls.Load())
	require.Len(t, events.events, 1)
	assert.Equal(t, "notify.fail", events.events[0].Type)
	assert.Contains(t, events.events[0].Message, "3 attempt(s)")
}

func TestQueueDoesNotRetryPermanentErrors(t *testing.T) {
	mailer := &flakyMailer{failures: 100, err: &StatusError{StatusCode: 400, Body: "bad request"}}
	q := NewQueue(mailer, nil, fastRetry)
	q.Start(context.Background())

	require.True(t, q.Enqueue(Message{Event: EventCommentCreated}))
	stopQueue(t, q)

	assert.EqualValues(t, 1, mailer.calls.Load())
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(&flakyMailer{}, nil, QueueOptions{QueueSize: 1})

	assert.True(t, q.Enqueue(Message{Event: EventContactSubmitted}))
	assert.False(t, q.Enqueue(Message{Event: EventContactSubmitted}))

	stopQueue(t, q)
	assert.False(t, q.Enqueue(Message{Event: EventContactSubmitted}))
}

func TestDispatcherQueuesRenderedMail(t *testing.T) {
	var captured []Message
	d := NewDispatcher("owner@example.com", enqueueFunc(func(msg Message) bool {
		captured = append(captured, msg)
		return true
	}))

	d.ContactSubmitted(context.Background(), models.Contact{Name: "Taro", Email: "taro@example.com", Message: "Hi"})
	d.CommentCreated(context.Background(), models.Post{Title: "Hello"}, models.Comment{Text: "Nice"})

	require.Len(t, captured, 2)
	assert.Equal(t, EventContactSubmitted, captured[0].Event)
	assert.Equal(t, "owner@example.com", captured[0].To)
	assert.Equal(t, EventCommentCreated, captured[1].Event)
}

type enqueueFunc func(Message) bool

func (f enqueueFunc) Enqueue(msg Message) bool { return f(msg) }
