package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

//go:embed schema.sql
var schemaSQL string

// MySQLAdapter serves the catalog and orders from MySQL. Each Acquire pins one pooled connection.
type MySQLAdapter struct {
	db      *sql.DB
	timeout time.Duration
}

// NewMySQLAdapter bounds every statement by timeout; zero means only the caller's deadline applies.
func NewMySQLAdapter(db *sql.DB, timeout time.Duration) *MySQLAdapter {
	return &MySQLAdapter{db: db, timeout: timeout}
}

func (m *MySQLAdapter) Acquire(ctx context.Context) (port.Session, error) {
	ctx, cancel := bound(ctx, m.timeout)
	defer cancel()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, classify("acquire connection", err)
	}
	return &mysqlSession{conn: conn, timeout: m.timeout}, nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	ctx, cancel := bound(ctx, m.timeout)
	defer cancel()
	return classify("ping", m.db.PingContext(ctx))
}

// EnsureSchema creates the tables if they do not exist yet.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return classify("ensure schema", err)
		}
	}
	return nil
}

type mysqlSession struct {
	conn    *sql.Conn
	timeout time.Duration
}

func (s *mysqlSession) Close() error {
	return s.conn.Close()
}

const productColumns = `id, name, description, price, inventory, created_at, updated_at`

func (s *mysqlSession) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.findProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (s *mysqlSession) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	return s.findProduct(ctx, `SELECT `+productColumns+` FROM products WHERE name = ?`, name)
}

func (s *mysqlSession) findProduct(ctx context.Context, query string, arg string) (*domain.Product, error) {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	var p domain.Product
	err := s.conn.QueryRowContext(ctx, query, arg).
		Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Inventory, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("query product", err)
	}
	return &p, nil
}

func (s *mysqlSession) ListProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name LIMIT ?`, limit)
	if err != nil {
		return nil, classify("list products", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Inventory, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, classify("scan product", err)
		}
		products = append(products, p)
	}
	return products, classify("list products", rows.Err())
}

func (s *mysqlSession) CreateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, inventory, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Price, p.Inventory, p.CreatedAt, p.UpdatedAt,
	)
	return classify("insert product", err)
}

func (s *mysqlSession) UpdateProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	result, err := s.conn.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, inventory = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Price, p.Inventory, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return classify("update product", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *mysqlSession) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	result, err := s.conn.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return classify("delete product", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdjustInventory reports changed rows, so a zero delta also yields 0.
func (s *mysqlSession) AdjustInventory(ctx context.Context, m domain.InventoryMutation) (int64, error) {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	result, err := s.conn.ExecContext(ctx, `
		UPDATE products
		SET inventory = inventory + ?
		WHERE id = ? AND inventory = ?`,
		m.Delta, m.ProductID, m.Observed,
	)
	if err != nil {
		return 0, classify("adjust inventory", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, classify("adjust inventory", err)
	}
	return rows, nil
}

func (s *mysqlSession) InsertOrder(ctx context.Context, order domain.Order) (string, error) {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	details, err := json.Marshal(order.OrderDetails)
	if err != nil {
		return "", fmt.Errorf("encode order details: %w", err)
	}

	id := uuid.NewString()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO orders (id, is_outgoing, order_details, datetime)
		VALUES (?, ?, ?, ?)`,
		id, order.IsOutgoing, details, order.DateTime,
	)
	if err != nil {
		return "", classify("insert order", err)
	}
	return id, nil
}

func (s *mysqlSession) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()

	var (
		order   domain.Order
		details []byte
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, is_outgoing, order_details, datetime
		FROM orders WHERE id = ?`, id,
	).Scan(&order.ID, &order.IsOutgoing, &details, &order.DateTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("query order", err)
	}

	if err := json.Unmarshal(details, &order.OrderDetails); err != nil {
		return nil, fmt.Errorf("decode order details: %w", err)
	}
	return &order, nil
}

func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
