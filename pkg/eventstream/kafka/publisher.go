// Package kafka implements an eventstream publisher backed by Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	segkafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ashenvale/recall/pkg/eventstream"
)

// DefaultTopic is the topic memory events publish to when none is configured.
const DefaultTopic = "recall.memory"

// Publisher publishes memory events to a Kafka topic. Messages are keyed by
// user id so one user's events stay ordered within a partition.
type Publisher struct {
	writer *segkafka.Writer
	logger *zap.Logger
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is a comma-separated list of broker addresses.
	Brokers string

	// Topic is the destination topic. Defaults to DefaultTopic if empty.
	Topic string
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if c.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &segkafka.Writer{
		Addr:         segkafka.TCP(strings.Split(c.Brokers, ",")...),
		Topic:        topic,
		Balancer:     &segkafka.Hash{},
		WriteTimeout: 10 * time.Second,
		// Event publishing is best effort; don't block the caller on a
		// slow broker.
		Async: true,
	}

	logger.Info("kafka event publisher initialized",
		zap.String("brokers", c.Brokers),
		zap.String("topic", topic),
	)

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// Publish writes the event to the topic.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.MemoryEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, segkafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("writing event: %w", err)
	}

	p.logger.Debug("published event",
		zap.String("event_type", event.EventType),
		zap.String("event_id", event.EventID),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
