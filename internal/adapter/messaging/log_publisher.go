package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
)

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.logger.Info("domain event",
		zap.String("topic", event.Topic()),
		zap.String("key", event.Key()),
		zap.Any("payload", event),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
