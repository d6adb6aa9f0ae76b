package port

import (
	"context"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}
