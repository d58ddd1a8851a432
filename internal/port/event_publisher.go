package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order domain.Order) error
}
