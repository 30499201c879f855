package trade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes orders to a topic for an execution consumer.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	var addrs []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka trader requires --kafka-brokers")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("kafka trader requires --kafka-topic")
	}

	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // keyed by wallet, so one wallet stays on one partition
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}, nil
}

func orderMessage(order Order) (kafka.Message, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(order.Wallet),
		Value: data,
		Time:  time.UnixMilli(order.TsMs),
		Headers: []kafka.Header{
			{Key: "idempotency-key", Value: []byte(order.ID)},
			{Key: "side", Value: []byte(order.Side)},
		},
	}, nil
}

func (k *Kafka) PlaceOrder(ctx context.Context, order Order) error {
	msg, err := orderMessage(order)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka %s: %w", order.Side, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
