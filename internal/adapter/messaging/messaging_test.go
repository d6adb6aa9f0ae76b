package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  map[string][]amqp.Publishing
	declareErr error
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{published: make(map[string][]amqp.Publishing)}
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published[key] = append(f.published[key], msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessage(ctx context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQPublisher_DeclaresQueuesAndPublishes(t *testing.T) {
	ch := newFakeChannel()
	p, err := newRabbitMQPublisher(ch, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Topics, ch.declared)

	event := domain.OrderCreatedEvent{OrderID: "o1", Books: map[string]int{"a": 2}, CreatedAt: time.Now()}
	require.NoError(t, p.Publish(context.Background(), event))

	msgs := ch.published[domain.TopicOrderCreated]
	require.Len(t, msgs, 1)
	assert.Equal(t, "application/json", msgs[0].ContentType)
	assert.Equal(t, "o1", msgs[0].MessageId)
	assert.Equal(t, amqp.Persistent, msgs[0].DeliveryMode)

	var decoded struct {
		Topic   string                   `json:"topic"`
		Key     string                   `json:"key"`
		Payload domain.OrderCreatedEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].Body, &decoded))
	assert.Equal(t, domain.TopicOrderCreated, decoded.Topic)
	assert.Equal(t, 2, decoded.Payload.Books["a"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQPublisher_Errors(t *testing.T) {
	ch := newFakeChannel()
	ch.declareErr = errors.New("access refused")
	_, err := newRabbitMQPublisher(ch, zap.NewNop())
	assert.Error(t, err)

	ch = newFakeChannel()
	p, err := newRabbitMQPublisher(ch, zap.NewNop())
	require.NoError(t, err)
	ch.publishErr = errors.New("channel closed")
	assert.Error(t, p.Publish(context.Background(), domain.OrderFulfilledEvent{OrderID: "o1"}))
}

func TestKafkaPublisher_RoutesByTopicAndKey(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)

	require.NoError(t, p.Publish(context.Background(), domain.OrderFulfilledEvent{OrderID: "o7"}))
	require.NoError(t, p.Publish(context.Background(), domain.InventoryCompensatedEvent{OrderID: "o7", Failed: true}))

	require.Len(t, w.messages, 2)
	assert.Equal(t, domain.TopicOrderFulfilled, w.messages[0].Topic)
	assert.Equal(t, domain.TopicInventoryCompensated, w.messages[1].Topic)
	assert.Equal(t, []byte("o7"), w.messages[1].Key)

	w.err = errors.New("leader not available")
	assert.Error(t, p.Publish(context.Background(), domain.OrderFulfilledEvent{OrderID: "o8"}))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), domain.OrderCreatedEvent{OrderID: "o1"}))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "domain event", entry.Message)
	assert.Equal(t, domain.TopicOrderCreated, entry.ContextMap()["topic"])
	assert.NoError(t, p.Close())
}
