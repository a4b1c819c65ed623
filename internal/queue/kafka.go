package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultRunTopic carries one RunEvent per pipeline run
const DefaultRunTopic = "weather.runs"

// A run emits a single event, so writes are not held back for batching
const (
	runEventBatchTimeout = 10 * time.Millisecond
	runEventWriteTimeout = 10 * time.Second
)

// Producer publishes run events
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a run event producer for topic
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{}, // Partition by key (run id)
			RequiredAcks:           kafka.RequireOne,
			BatchSize:              1,
			BatchTimeout:           runEventBatchTimeout,
			WriteTimeout:           runEventWriteTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes one keyed event and waits for the broker ack
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish run event %s to %s: %w", key, p.writer.Topic, err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads run events as part of a consumer group
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a new Kafka consumer. Only events published after
// the group first joins are read.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			MaxWait:        time.Second,
			CommitInterval: 0, // commit after the handler succeeded
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Consume reads the next message
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch run event: %w", err)
	}
	return msg, nil
}

// Commit commits the message offset
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit run event at offset %d: %w", msg.Offset, err)
	}
	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// CreateTopic creates a Kafka topic through the cluster controller.
// An existing topic is not an error.
func CreateTopic(brokers []string, topic string, numPartitions int, replicationFactor int) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}
