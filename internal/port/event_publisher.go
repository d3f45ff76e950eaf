package port

import (
	"context"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.SaleEvent) error
	Close() error
}

// EventSink accepts events without blocking the caller.
type EventSink interface {
	Emit(event domain.SaleEvent)
}
