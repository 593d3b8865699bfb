// Package queue carries opportunity storage keys from the extractor to the
// match worker over Kafka with at-least-once delivery.
package queue

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/opsarka/samradar/internal/errs"
)

// Config holds the broker and topic settings shared by both ends.
type Config struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Group   string   `mapstructure:"group"`
}

// Publisher emits one message per extracted opportunity.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(cfg Config) *Publisher {
	return &Publisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			MaxAttempts: 3,
		}),
	}
}

// Publish sends the opportunity storage key. The key doubles as the Kafka
// message key so duplicate redeliveries of one opportunity stay ordered.
func (p *Publisher) Publish(ctx context.Context, key string) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: []byte(key),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errs.Transient(fmt.Sprintf("publish %s", key), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message is one consumed opportunity reference. It keeps the raw Kafka
// message so the consumer can commit it individually.
type Message struct {
	Key string
	raw kafka.Message
}

// Consumer reads opportunity keys with manual commits: a message is only
// committed after its opportunity is fully processed or classified as a
// permanent skip.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(cfg Config) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.Group,
			MinBytes:       1e3,
			MaxBytes:       10e6,
			CommitInterval: 0, // manual commit only
		}),
	}
}

func (c *Consumer) Fetch(ctx context.Context) (*Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{Key: string(msg.Value), raw: msg}, nil
}

func (c *Consumer) Commit(ctx context.Context, m *Message) error {
	return c.reader.CommitMessages(ctx, m.raw)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
