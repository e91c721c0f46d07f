package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/isdelr/telemed-portal/internal/metrics"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaQueue publishes messages to a topic and delivers them from a consumer loop, so
// pending notifications survive a restart.
type KafkaQueue struct {
	deliverer
	writer *kafka.Writer
	reader *kafka.Reader

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// KafkaOptions locates the notification topic.
type KafkaOptions struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewKafkaQueue creates a new KafkaQueue. events may be nil.
func NewKafkaQueue(mailer Mailer, events services.EventServiceProvider, kopts KafkaOptions, opts QueueOptions) *KafkaQueue {
	if kopts.GroupID == "" {
		kopts.GroupID = "telemed-notify"
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(kopts.Brokers...),
		Topic:        kopts.Topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			for _, m := range messages {
				metrics.NotificationsTotal.WithLabelValues(string(m.Key), "dropped").Inc()
			}
			log.Error().Err(err).Int("count", len(messages)).Msg("Failed to publish notifications")
		},
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kopts.Brokers,
		GroupID:  kopts.GroupID,
		Topic:    kopts.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaQueue{
		deliverer: deliverer{mailer: mailer, events: events, opts: opts.withDefaults()},
		writer:    writer,
		reader:    reader,
	}
}

// Enqueue publishes msg. The writer is asynchronous so the caller never waits on the broker.
func (q *KafkaQueue) Enqueue(msg Message) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", msg.Event).Msg("Failed to encode notification")
		return false
	}
	if err := q.writer.WriteMessages(context.Background(), kafka.Message{Key: []byte(msg.Event), Value: payload}); err != nil {
		metrics.NotificationsTotal.WithLabelValues(msg.Event, "dropped").Inc()
		log.Error().Err(err).Str("event", msg.Event).Msg("Notification dropped")
		return false
	}
	return true
}

// Start launches the consumer loop.
func (q *KafkaQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.consume(ctx)
	log.Info().Str("topic", q.reader.Config().Topic).Msg("Kafka notification consumer started")
}

func (q *KafkaQueue) consume(ctx context.Context) {
	defer q.wg.Done()
	for {
		m, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			log.Error().Err(err).Msg("Failed to fetch notification")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			log.Error().Err(err).Int64("offset", m.Offset).Msg("Skipping malformed notification")
		} else {
			// Failures are recorded by deliver; the offset is committed either way.
			_ = q.deliver(ctx, msg)
		}

		if err := q.reader.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Int64("offset", m.Offset).Msg("Failed to commit notification offset")
		}
	}
}

// Stop flushes pending publishes and stops the consumer.
func (q *KafkaQueue) Stop(ctx context.Context) error {
	werr := q.writer.Close()
	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return errors.Join(werr, q.reader.Close())
}
