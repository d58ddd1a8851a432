package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

var errNegativeInventory = errors.New("inventory would become negative")

// MemoryStore keeps the catalog in process. It follows the MySQL adapter's semantics,
// including changed-rows counting in AdjustInventory.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	open     int
}

func NewMemoryStore(products ...domain.Product) *MemoryStore {
	m := &MemoryStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *MemoryStore) Acquire(ctx context.Context) (port.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("acquire session", err)
	}
	m.mu.Lock()
	m.open++
	m.mu.Unlock()
	return &memorySession{store: m}, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return classify("ping", ctx.Err())
}

// OpenSessions reports sessions acquired and not yet closed.
func (m *MemoryStore) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Product returns a copy of the stored product.
func (m *MemoryStore) Product(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	return p, ok
}

// Orders returns every stored order in no particular order.
func (m *MemoryStore) Orders() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, o)
	}
	return orders
}

type memorySession struct {
	store  *MemoryStore
	closed bool
}

func (s *memorySession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.store.mu.Lock()
	s.store.open--
	s.store.mu.Unlock()
	return nil
}

// lock guards against use after Close and takes the store mutex; callers must unlock.
func (s *memorySession) lock(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("%w: session closed", domain.ErrStoreUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return classify("memory store", err)
	}
	s.store.mu.Lock()
	return nil
}

func (s *memorySession) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.store.mu.Unlock()

	p, ok := s.store.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memorySession) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.store.mu.Unlock()

	for _, p := range s.store.products {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memorySession) ListProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.store.mu.Unlock()

	products := make([]domain.Product, 0, len(s.store.products))
	for _, p := range s.store.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *memorySession) CreateProduct(ctx context.Context, p domain.Product) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.store.mu.Unlock()

	if _, ok := s.store.products[p.ID]; ok || s.nameTaken(p.Name, p.ID) {
		return domain.ErrProductExists
	}
	s.store.products[p.ID] = p
	return nil
}

func (s *memorySession) UpdateProduct(ctx context.Context, p domain.Product) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.store.mu.Unlock()

	if _, ok := s.store.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	if s.nameTaken(p.Name, p.ID) {
		return domain.ErrProductExists
	}
	s.store.products[p.ID] = p
	return nil
}

func (s *memorySession) DeleteProduct(ctx context.Context, id string) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.store.mu.Unlock()

	if _, ok := s.store.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.store.products, id)
	return nil
}

func (s *memorySession) AdjustInventory(ctx context.Context, m domain.InventoryMutation) (int64, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.store.mu.Unlock()

	p, ok := s.store.products[m.ProductID]
	if !ok || p.Inventory != m.Observed || m.Delta == 0 {
		return 0, nil
	}
	if m.Next() < 0 {
		return 0, fmt.Errorf("adjust inventory %s: %w", m.ProductID, errNegativeInventory)
	}
	p.Inventory = m.Next()
	s.store.products[m.ProductID] = p
	return 1, nil
}

func (s *memorySession) InsertOrder(ctx context.Context, order domain.Order) (string, error) {
	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.store.mu.Unlock()

	order.ID = uuid.NewString()
	order.OrderDetails = append([]domain.LineItem(nil), order.OrderDetails...)
	s.store.orders[order.ID] = order
	return order.ID, nil
}

func (s *memorySession) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.store.mu.Unlock()

	o, ok := s.store.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *memorySession) nameTaken(name, exceptID string) bool {
	for id, p := range s.store.products {
		if id != exceptID && p.Name == name {
			return true
		}
	}
	return false
}
