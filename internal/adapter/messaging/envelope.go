package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rl1809/bookstore/internal/core/domain"
)

// Topics lists every topic the service publishes to.
var Topics = []string{
	domain.TopicOrderCreated,
	domain.TopicOrderFulfilled,
	domain.TopicInventoryCompensated,
}

type envelope struct {
	Topic       string       `json:"topic"`
	Key         string       `json:"key"`
	PublishedAt time.Time    `json:"published_at"`
	Payload     domain.Event `json:"payload"`
}

func encodeEvent(event domain.Event, now time.Time) ([]byte, error) {
	body, err := json.Marshal(envelope{
		Topic:       event.Topic(),
		Key:         event.Key(),
		PublishedAt: now.UTC(),
		Payload:     event,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Topic(), err)
	}
	return body, nil
}
