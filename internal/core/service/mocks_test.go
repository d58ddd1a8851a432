package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// Mock Store
type mockStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   []domain.Order

	acquired int
	released int

	acquireErr error
	findErr    map[string]error
	adjustErr  map[string]error
	insertErr  error
	closeErr   error

	// beforeAdjust runs outside the lock, between the read and the conditional write
	beforeAdjust func(productID string)
}

func newMockStore(products ...domain.Product) *mockStore {
	m := &mockStore{
		products:  make(map[string]domain.Product),
		findErr:   make(map[string]error),
		adjustErr: make(map[string]error),
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockStore) Acquire(ctx context.Context) (port.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.acquired++
	return &mockSession{store: m}, nil
}

func (m *mockStore) Ping(ctx context.Context) error { return nil }

func (m *mockStore) inventory(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Inventory
}

func (m *mockStore) setInventory(id string, inventory int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	p.Inventory = inventory
	m.products[id] = p
}

func (m *mockStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *mockStore) openSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired - m.released
}

type mockSession struct {
	store  *mockStore
	closed bool
}

func (s *mockSession) Close() error {
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.released++
	return s.store.closeErr
}

func (s *mockSession) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if err := s.store.findErr[id]; err != nil {
		return nil, err
	}
	p, ok := s.store.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *mockSession) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for _, p := range s.store.products {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *mockSession) ListProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var out []domain.Product
	for _, p := range s.store.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *mockSession) CreateProduct(ctx context.Context, p domain.Product) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.products[p.ID] = p
	return nil
}

func (s *mockSession) UpdateProduct(ctx context.Context, p domain.Product) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.store.products[p.ID] = p
	return nil
}

func (s *mockSession) DeleteProduct(ctx context.Context, id string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.store.products, id)
	return nil
}

func (s *mockSession) AdjustInventory(ctx context.Context, m domain.InventoryMutation) (int64, error) {
	if s.store.beforeAdjust != nil {
		s.store.beforeAdjust(m.ProductID)
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if err := s.store.adjustErr[m.ProductID]; err != nil {
		return 0, err
	}
	p, ok := s.store.products[m.ProductID]
	if !ok || p.Inventory != m.Observed || m.Delta == 0 {
		return 0, nil
	}
	p.Inventory = m.Next()
	s.store.products[m.ProductID] = p
	return 1, nil
}

func (s *mockSession) InsertOrder(ctx context.Context, order domain.Order) (string, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.store.insertErr != nil {
		return "", s.store.insertErr
	}
	order.ID = fmt.Sprintf("order-%d", len(s.store.orders)+1)
	s.store.orders = append(s.store.orders, order)
	return order.ID, nil
}

func (s *mockSession) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for _, o := range s.store.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, nil
}

// Mock IdempotencyCache
type mockCache struct {
	mu     sync.Mutex
	claims map[string]string
	next   int
}

func newMockCache() *mockCache {
	return &mockCache{claims: make(map[string]string)}
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[key]; ok {
		return "", false, nil
	}
	m.next++
	token := fmt.Sprintf("token-%d", m.next)
	m.claims[key] = token
	return token, true, nil
}

func (m *mockCache) ReleaseIdempotency(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[key] == token {
		delete(m.claims, key)
	}
	return nil
}

func (m *mockCache) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claims[key]
	return ok
}

// Mock EventPublisher
type mockPublisher struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (m *mockPublisher) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return m.err
}

// Mock Recorder
type mockRecorder struct {
	mu      sync.Mutex
	lines   map[domain.Outcome]int
	results []string
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{lines: make(map[domain.Outcome]int)}
}

func (m *mockRecorder) LineReconciled(direction string, outcome domain.Outcome, reason domain.UnfulfilledReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[outcome]++
}

func (m *mockRecorder) OrderSubmitted(direction, result string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}
