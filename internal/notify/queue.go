package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/isdelr/telemed-portal/internal/metrics"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
)

// QueueOptions tunes delivery workers and retries.
type QueueOptions struct {
	Workers       int
	QueueSize     int
	MaxAttempts   int
	Timeout       time.Duration
	RetryInterval time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.Workers < 1 {
		o.Workers = 2
	}
	if o.QueueSize < 1 {
		o.QueueSize = 100
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	return o
}

// Runner is a notification transport with a lifecycle.
type Runner interface {
	Enqueue(msg Message) bool
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// deliverer sends one message with retries and records the outcome.
type deliverer struct {
	mailer Mailer
	events services.EventServiceProvider
	opts   QueueOptions
}

func (d *deliverer) deliver(ctx context.Context, msg Message) error {
	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
		err := d.mailer.Send(attemptCtx, msg)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.RetryInterval
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(operation, retry, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("event", msg.Event).Dur("retry_in", wait).Msg("Notification attempt failed")
	})
	if err == nil {
		metrics.NotificationsTotal.WithLabelValues(msg.Event, "sent").Inc()
		return nil
	}

	nerr := &NotificationError{Event: msg.Event, Attempts: attempts, Err: err}
	d.fail(nerr)
	return nerr
}

// fail logs and records a notification that will not be delivered.
func (d *deliverer) fail(nerr *NotificationError) {
	metrics.NotificationsTotal.WithLabelValues(nerr.Event, "failed").Inc()
	log.Error().Err(nerr).Str("event", nerr.Event).Int("attempts", nerr.Attempts).Msg("Notification not delivered")
	if d.events == nil {
		return
	}
	// The request that triggered the notification may already be gone.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.events.CreateEvent(ctx, "notify.fail", "error", nerr.Error(), nil); err != nil {
		log.Warn().Err(err).Msg("Failed to record notification failure")
	}
}

// Queue delivers messages from an in-process buffered channel.
type Queue struct {
	deliverer
	jobs chan Message

	mu      sync.RWMutex
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewQueue creates a new Queue. events may be nil.
func NewQueue(mailer Mailer, events services.EventServiceProvider, opts QueueOptions) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		deliverer: deliverer{mailer: mailer, events: events, opts: opts},
		jobs:      make(chan Message, opts.QueueSize),
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	log.Info().Int("workers", q.opts.Workers).Msg("Notification queue started")
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for msg := range q.jobs {
		if err := q.deliver(ctx, msg); err != nil {
			log.Debug().Int("worker", id).Str("event", msg.Event).Msg("Worker gave up on message")
		}
	}
}

// Enqueue hands msg to the workers without blocking. It reports false when the message
// was dropped.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.drop(msg, errors.New("queue is stopped"))
		return false
	}
	select {
	case q.jobs <- msg:
		return true
	default:
		q.drop(msg, fmt.Errorf("queue is full (%d)", cap(q.jobs)))
		return false
	}
}

func (q *Queue) drop(msg Message, reason error) {
	metrics.NotificationsTotal.WithLabelValues(msg.Event, "dropped").Inc()
	log.Error().Err(reason).Str("event", msg.Event).Msg("Notification dropped")
}

// Stop stops accepting messages and waits for queued ones to drain. Deliveries still
// running when ctx ends are cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	cancel := q.cancel
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cancel != nil {
		cancel()
	}
	<-done
	return err
}
