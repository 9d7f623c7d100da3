package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards changes to a topic from a background loop so callers never block
// on the broker. Changes are dropped when the queue is full; consumers only need the latest
// signal per user.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Change
	done   chan struct{}
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &KafkaPublisher{
		writer:  writer,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan Change, 256),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, change Change) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	select {
	case p.queue <- change:
	default:
		p.logger.Debug("change queue full, dropping", zap.String("user_id", change.UserID))
	}
	return nil
}

// Close drains queued changes and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return p.writer.Close()
}

func (p *KafkaPublisher) loop() {
	defer close(p.done)
	for change := range p.queue {
		payload, err := json.Marshal(change)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(change.UserID),
			Value: payload,
			Time:  change.At,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte("calendar.changed")},
				{Key: "source", Value: []byte(change.Source)},
			},
		})
		cancel()
		if err != nil {
			p.logger.Warn("change publish failed", zap.String("user_id", change.UserID), zap.Error(err))
		}
	}
}
