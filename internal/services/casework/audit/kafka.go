package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records to a topic keyed by case id, so every entry
// for a case lands on the same partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink builds a sink that waits for all in-sync replicas.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	var addrs []string
	for _, broker := range brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			addrs = append(addrs, broker)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("audit kafka brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("audit kafka topic is required")
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        strings.TrimSpace(topic),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    1,
	}}, nil
}

// Append writes one record and waits for the broker acknowledgement.
func (s *KafkaSink) Append(ctx context.Context, record Record) error {
	if s == nil || s.writer == nil {
		return fmt.Errorf("audit kafka writer is not configured")
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(record.CaseID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "tx-id", Value: []byte(record.TxID)},
			{Key: "hash", Value: []byte(record.Hash)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
