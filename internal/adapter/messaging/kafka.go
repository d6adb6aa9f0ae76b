package messaging

import (
	"context"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/bookstore/internal/core/domain"
)

const (
	kafkaBatchTimeout = 10 * time.Millisecond
	kafkaClientID     = "bookstore"
)

// MessageWriter is the traced producer surface the publisher writes through.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event to the topic it names, keyed by order id
// so one order's events stay on one partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(broker string, tp trace.TracerProvider) (*KafkaPublisher, error) {
	// topic is set per message
	baseWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           kafkaBatchTimeout,
		AllowAutoTopicCreation: true,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				attribute.String("messaging.kafka.client_id", kafkaClientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka writer: %w", err)
	}
	return NewKafkaPublisherWithWriter(writer), nil
}

func NewKafkaPublisherWithWriter(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	now := time.Now()
	body, err := encodeEvent(event, now)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: event.Topic(),
		Key:   []byte(event.Key()),
		Value: body,
		Time:  now,
	}
	if err := p.writer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
