package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ProductService is the plain CRUD surface of the catalog.
type ProductService struct {
	store  port.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewProductService(store port.Store, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{store: store, logger: logger, now: time.Now}
}

func (s *ProductService) CreateProduct(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        draft.Name,
		Description: draft.Description,
		Price:       draft.Price,
		Inventory:   draft.Inventory,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.withSession(ctx, func(session port.Session) error {
		return session.CreateProduct(ctx, product)
	})
	if err != nil {
		return nil, fmt.Errorf("create product %q: %w", draft.Name, err)
	}

	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("name", product.Name))
	return &product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: product ID is required", domain.ErrInvalidInput)
	}
	var product *domain.Product
	err := s.withSession(ctx, func(session port.Session) (err error) {
		product, err = session.FindProductByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("the requested product ID %s was %w", id, domain.ErrNotFound)
	}
	return product, nil
}

func (s *ProductService) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", domain.ErrInvalidInput)
	}
	var product *domain.Product
	err := s.withSession(ctx, func(session port.Session) (err error) {
		product, err = session.FindProductByName(ctx, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("the requested product name %q was %w", name, domain.ErrNotFound)
	}
	return product, nil
}

// ListProducts returns products ordered by name. A limit <= 0 uses the default.
func (s *ProductService) ListProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	var products []domain.Product
	err := s.withSession(ctx, func(session port.Session) (err error) {
		products, err = session.ListProducts(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: product ID is required", domain.ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *domain.Product
	err := s.withSession(ctx, func(session port.Session) error {
		product, err := session.FindProductByID(ctx, id)
		if err != nil {
			return err
		}
		if product == nil {
			return domain.ErrNotFound
		}
		patch.Apply(product)
		product.UpdatedAt = s.now().UTC()
		if err := session.UpdateProduct(ctx, *product); err != nil {
			return err
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}

	s.logger.Info("product updated", zap.String("product_id", id))
	return updated, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: product ID is required", domain.ErrInvalidInput)
	}
	err := s.withSession(ctx, func(session port.Session) error {
		return session.DeleteProduct(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *ProductService) withSession(ctx context.Context, fn func(port.Session) error) error {
	session, err := s.store.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to release session", zap.Error(err))
		}
	}()
	return fn(session)
}
