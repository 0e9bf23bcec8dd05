// Package kafka relays cross-context event records through a Kafka topic, for
// deployments where sender and receiver contexts do not share a filesystem.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/offlinepay/relay/internal/interfaces"
)

// DefaultTopic is the topic event records are relayed through.
const DefaultTopic = "payment_events"

// Transport implements interfaces.Transport over a Kafka topic. Records carry
// their expiry in the message payload; Delete is a no-op because broker
// retention already bounds record lifetime, and watchers skip messages whose
// horizon elapsed before they were read.
type Transport struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
}

var _ interfaces.Transport = (*Transport)(nil)

type wireRecord struct {
	Record    interfaces.Record `json:"record"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func NewTransport(brokers []string, topic string) *Transport {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Transport{
		brokers: brokers,
		topic:   topic,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (t *Transport) Put(ctx context.Context, rec interfaces.Record, ttl time.Duration) error {
	data, err := json.Marshal(wireRecord{Record: rec, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return err
	}
	return t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Key),
		Value: data,
	})
}

// Delete is a no-op; retention on the topic bounds how long a record is
// observable, and watchers discard expired records on read.
func (t *Transport) Delete(ctx context.Context, key string) error {
	return nil
}

func (t *Transport) Watch(ctx context.Context) (<-chan interfaces.Record, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     t.brokers,
		Topic:       t.topic,
		Partition:   0,
		StartOffset: kafka.LastOffset,
	})

	ch := make(chan interfaces.Record, 64)
	go func() {
		defer close(ch)
		defer reader.Close()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				continue
			}
			var rec wireRecord
			if err := json.Unmarshal(msg.Value, &rec); err != nil {
				continue
			}
			if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
				continue
			}
			select {
			case ch <- rec.Record:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close flushes and closes the underlying writer.
func (t *Transport) Close() error {
	return t.writer.Close()
}
