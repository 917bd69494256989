package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"watcher/internal/config"
	"watcher/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes signals and live updates to a topic, keyed by symbol so
// each symbol's messages stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

// NewKafkaSink creates a synchronous producer for cfg.Topic.
func NewKafkaSink(cfg config.KafkaConfig, logger *slog.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}
	return newKafkaSink(writer, cfg.Topic, logger)
}

func newKafkaSink(writer messageWriter, topic string, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		topic:  topic,
		logger: logger.With("sink", "kafka"),
		now:    time.Now,
	}
}

func (k *KafkaSink) Name() string {
	return "kafka"
}

// Handle publishes Signal and Update messages in the bus envelope format.
func (k *KafkaSink) Handle(ctx context.Context, msg model.Message) error {
	var key string
	switch msg.Type {
	case model.MessageSignal:
		key = msg.Signal.Symbol
	case model.MessageUpdate:
		key = msg.Update.Symbol
	default:
		return nil
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(msg.Type)}},
		Time:    k.now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", k.topic, err)
	}

	k.logger.Debug("KafkaSink: message published", "topic", k.topic, "key", key, "type", msg.Type)
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
