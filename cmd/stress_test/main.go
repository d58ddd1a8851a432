package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/port"
)

const (
	productName   = "stress-test-item"
	initialStock  = 20
	totalRequests = 50
	perRequest    = 1
)

// Fires concurrent outgoing orders at one product. Lost races are demoted to
// unfulfilled rather than retried, so the check is that applied quantities and
// the final inventory always add up, never that every unit sells.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var store port.Store
	if cfg.StoreDriver == config.StoreMemory {
		store = storage.NewMemoryStore()
	} else {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)

		adapter := storage.NewMySQLAdapter(db, cfg.StoreTimeout)
		if err := adapter.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to ensure schema: %v", err)
		}
		store = adapter
	}

	products := service.NewProductService(store, nil)
	orders := service.NewOrderService(store)

	// Clear previous test data
	if existing, err := products.FindProductByName(ctx, productName); err == nil {
		if err := products.DeleteProduct(ctx, existing.ID); err != nil {
			log.Fatalf("failed to clear product: %v", err)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		log.Fatalf("failed to look up product: %v", err)
	}

	product, err := products.CreateProduct(ctx, domain.ProductDraft{
		Name:      productName,
		Price:     1,
		Inventory: initialStock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	// Counters
	var fulfilled, unfulfilled, failed, applied atomic.Int64

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result, err := orders.SubmitOrder(ctx, domain.OrderRequest{
				IsOutgoing: true,
				Lines:      []domain.RequestedLine{{ProductID: product.ID, Quantity: perRequest}},
			})
			switch {
			case errors.Is(err, domain.ErrNoFulfillment):
				unfulfilled.Add(1)
			case err != nil:
				failed.Add(1)
			default:
				fulfilled.Add(1)
				for _, item := range result.Order.OrderDetails {
					applied.Add(item.Quantity)
				}
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := products.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to read final inventory: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Fulfilled:        %d\n", fulfilled.Load())
	fmt.Printf("Unfulfilled:      %d\n", unfulfilled.Load())
	fmt.Printf("Errors:           %d\n", failed.Load())
	fmt.Printf("Final Inventory:  %d\n", final.Inventory)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if final.Inventory < 0 {
		fmt.Printf("FAIL: inventory went negative: %d\n", final.Inventory)
	} else {
		fmt.Println("PASS: inventory never negative")
	}

	if int64(initialStock)-final.Inventory == applied.Load() {
		fmt.Println("PASS: applied quantities match inventory change")
	} else {
		fmt.Printf("FAIL: applied %d but inventory dropped by %d\n", applied.Load(), int64(initialStock)-final.Inventory)
	}

	if fulfilled.Load() > initialStock/perRequest {
		fmt.Printf("FAIL: %d orders fulfilled with only %d in stock\n", fulfilled.Load(), initialStock)
	}
}
