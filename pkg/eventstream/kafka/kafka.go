// Package kafka publishes graph events to a Kafka topic, keyed by
// conversation id so one conversation's events stay ordered within a
// partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/forkyhq/forky/pkg/eventstream"
)

// Publisher writes graph events to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafkago.Hash{},
		},
	}
}

// Publish serializes the event as JSON and writes it keyed by conversation
// id.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.GraphEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal graph event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.ConversationID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
