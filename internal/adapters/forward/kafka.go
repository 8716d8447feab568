package forward

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},

		BatchSize:    500,
		BatchBytes:   1 << 20,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish writes the batch keyed by channel id so one channel stays on one
// partition, in order.
func (p *KafkaPublisher) Publish(ctx context.Context, batch []domain.Reading) error {
	msgs, err := Messages(batch)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Messages encodes readings as Kafka messages.
func Messages(batch []domain.Reading) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, r := range batch {
		value, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.ChannelID),
			Value: value,
			Time:  r.Timestamp,
		})
	}
	return msgs, nil
}

var _ ports.Publisher = (*KafkaPublisher)(nil)
