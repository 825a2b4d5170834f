// Package kafka publishes telemetry to a Kafka topic keyed by truck id, so
// every fix of one truck lands on the same partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"trucksim/internal/telemetry"
	"trucksim/internal/transport"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Options struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

type Producer struct {
	w       messageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewProducer(opts Options, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: opts.Timeout,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	}
	return newProducer(w, opts, logger)
}

func newProducer(w messageWriter, opts Options, logger *slog.Logger) *Producer {
	return &Producer{w: w, topic: opts.Topic, timeout: opts.Timeout, logger: logger}
}

// Publish blocks until the leader acknowledges the message or the publish
// timeout elapses.
func (p *Producer) Publish(ctx context.Context, ev telemetry.Event) (transport.Ack, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return transport.Ack{}, fmt.Errorf("marshal event: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(ev.TruckID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventId", Value: []byte(ev.EventID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return transport.Ack{}, fmt.Errorf("write to %s: %w", p.topic, err)
	}

	p.logger.Debug("published to kafka", "topic", p.topic, "key", ev.TruckID, "event_id", ev.EventID)
	return transport.Ack{EventID: ev.EventID, Key: ev.TruckID}, nil
}

func (p *Producer) Close() error {
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

var _ transport.Publisher = (*Producer)(nil)
