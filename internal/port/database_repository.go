package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// Store hands out request-scoped sessions.
type Store interface {
	// Acquire reserves one connection for the caller; the session must be closed on every path
	Acquire(ctx context.Context) (Session, error)

	// Ping reports whether the backing store is reachable
	Ping(ctx context.Context) error
}

type Session interface {
	CatalogRepository
	OrderRepository

	// Close releases the underlying connection
	Close() error
}

type CatalogRepository interface {
	// FindProductByID returns nil, nil when no product has the given ID
	FindProductByID(ctx context.Context, id string) (*domain.Product, error)

	// FindProductByName returns nil, nil when no product has the given name
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)

	ListProducts(ctx context.Context, limit int) ([]domain.Product, error)

	// CreateProduct fails with domain.ErrProductExists on a duplicate name
	CreateProduct(ctx context.Context, product domain.Product) error

	// UpdateProduct replaces all mutable fields, domain.ErrNotFound if the ID is unknown
	UpdateProduct(ctx context.Context, product domain.Product) error

	// DeleteProduct fails with domain.ErrNotFound if the ID is unknown
	DeleteProduct(ctx context.Context, id string) error

	// AdjustInventory applies the mutation only while inventory still equals mutation.Observed
	// and returns the number of rows actually changed
	AdjustInventory(ctx context.Context, mutation domain.InventoryMutation) (int64, error)
}

type OrderRepository interface {
	// InsertOrder persists the order and returns its assigned ID
	InsertOrder(ctx context.Context, order domain.Order) (string, error)

	// FindOrderByID returns nil, nil when no order has the given ID
	FindOrderByID(ctx context.Context, id string) (*domain.Order, error)
}
