package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/stockroom/internal/core/domain"
)

func product(id string, inventory int64) domain.Product {
	return domain.Product{ID: id, Name: "name-" + id, Price: 1, Inventory: inventory}
}

func outgoing(lines ...domain.RequestedLine) domain.OrderRequest {
	return domain.OrderRequest{IsOutgoing: true, Lines: lines}
}

func incoming(lines ...domain.RequestedLine) domain.OrderRequest {
	return domain.OrderRequest{IsOutgoing: false, Lines: lines}
}

func line(id string, qty int64) domain.RequestedLine {
	return domain.RequestedLine{ProductID: id, Quantity: qty}
}

func TestSubmitOrder_OutgoingFulfilled(t *testing.T) {
	store := newMockStore(product("P1", 5))
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewOrderService(store, WithClock(func() time.Time { return fixed }))

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 3)))
	require.NoError(t, err)

	assert.Equal(t, int64(2), store.inventory("P1"))
	assert.Equal(t, []string{"P1"}, result.Fulfilled)
	assert.Empty(t, result.Partial)
	assert.Empty(t, result.Unfulfilled)
	assert.Equal(t, []domain.LineItem{{ProductID: "P1", Quantity: 3}}, result.Order.OrderDetails)
	assert.True(t, result.Order.IsOutgoing)
	assert.Equal(t, fixed, result.Order.DateTime)
	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, result.OrderID, result.Order.ID)
	assert.Equal(t, 1, store.orderCount())
}

func TestSubmitOrder_OutgoingPartial(t *testing.T) {
	store := newMockStore(product("P1", 5))
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 8)))
	require.NoError(t, err)

	assert.Equal(t, int64(0), store.inventory("P1"))
	assert.Equal(t, []string{"P1"}, result.Partial)
	assert.Empty(t, result.Fulfilled)
	assert.Equal(t, []domain.LineItem{{ProductID: "P1", Quantity: 5}}, result.Order.OrderDetails)
}

func TestSubmitOrder_OutOfStock(t *testing.T) {
	store := newMockStore(product("P1", 0))
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 1)))
	assert.ErrorIs(t, err, domain.ErrNoFulfillment)
	assert.Nil(t, result)

	assert.Equal(t, int64(0), store.inventory("P1"))
	assert.Equal(t, 0, store.orderCount())
}

func TestSubmitOrder_MissingProductIncoming(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store)

	_, err := svc.SubmitOrder(context.Background(), incoming(line("P2", 10)))
	assert.ErrorIs(t, err, domain.ErrNoFulfillment)
	assert.Contains(t, err.Error(), "P2")
	assert.Equal(t, 0, store.orderCount())
}

func TestSubmitOrder_IncomingAlwaysFulfilled(t *testing.T) {
	store := newMockStore(product("P1", 0), product("P2", 7))
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), incoming(line("P1", 4), line("P2", 100)))
	require.NoError(t, err)

	assert.Equal(t, int64(4), store.inventory("P1"))
	assert.Equal(t, int64(107), store.inventory("P2"))
	assert.Equal(t, []string{"P1", "P2"}, result.Fulfilled)
	assert.False(t, result.Order.IsOutgoing)
	assert.Equal(t, []domain.LineItem{{ProductID: "P1", Quantity: 4}, {ProductID: "P2", Quantity: 100}}, result.Order.OrderDetails)
}

func TestSubmitOrder_MixedBatch(t *testing.T) {
	store := newMockStore(product("A", 10), product("B", 2), product("C", 0))
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(
		line("A", 4), line("B", 5), line("C", 1), line("missing", 1),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, result.Fulfilled)
	assert.Equal(t, []string{"B"}, result.Partial)
	assert.Equal(t, []string{"C", "missing"}, result.Unfulfilled)
	assert.Equal(t, domain.ReasonOutOfStock, result.Reasons["C"])
	assert.Equal(t, domain.ReasonNotFound, result.Reasons["missing"])

	// Only confirmed lines are recorded, in request order
	assert.Equal(t, []domain.LineItem{{ProductID: "A", Quantity: 4}, {ProductID: "B", Quantity: 2}}, result.Order.OrderDetails)
	assert.Equal(t, int64(6), store.inventory("A"))
	assert.Equal(t, int64(0), store.inventory("B"))
	assert.Equal(t, int64(0), store.inventory("C"))
}

func TestSubmitOrder_LostRaceDemoted(t *testing.T) {
	store := newMockStore(product("P1", 5), product("P2", 5))
	// A concurrent writer takes P1 down to 1 between read and write
	store.beforeAdjust = func(id string) {
		if id == "P1" {
			store.setInventory("P1", 1)
		}
	}
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 3), line("P2", 1)))
	require.NoError(t, err)

	assert.Equal(t, []string{"P1"}, result.Unfulfilled)
	assert.Equal(t, domain.ReasonNotModified, result.Reasons["P1"])
	assert.Equal(t, []string{"P2"}, result.Fulfilled)
	assert.Equal(t, []domain.LineItem{{ProductID: "P2", Quantity: 1}}, result.Order.OrderDetails)

	// The concurrent writer's value stands
	assert.Equal(t, int64(1), store.inventory("P1"))
}

func TestSubmitOrder_ZeroQuantityNotModified(t *testing.T) {
	store := newMockStore(product("P1", 5))
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 0)))
	assert.ErrorIs(t, err, domain.ErrNoFulfillment)
	assert.Nil(t, result)
	assert.Equal(t, int64(5), store.inventory("P1"))
}

func TestSubmitOrder_IncomingZeroQuantityNotModified(t *testing.T) {
	store := newMockStore(product("P1", 5))
	svc := NewOrderService(store)

	// A zero restock changes no row, so it is not confirmed
	result, err := svc.SubmitOrder(context.Background(), incoming(line("P1", 0)))
	assert.ErrorIs(t, err, domain.ErrNoFulfillment)
	assert.Nil(t, result)
	assert.Equal(t, int64(5), store.inventory("P1"))
	assert.Equal(t, 0, store.orderCount())
}

func TestSubmitOrder_NegativeOutgoingPassesThrough(t *testing.T) {
	store := newMockStore(product("P1", 5))
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", -2)))
	require.NoError(t, err)

	assert.Equal(t, []string{"P1"}, result.Fulfilled)
	assert.Equal(t, int64(7), store.inventory("P1"))
}

func TestSubmitOrder_StoreUnavailableAborts(t *testing.T) {
	store := newMockStore(product("P1", 5), product("P2", 5))
	store.findErr["P2"] = fmt.Errorf("query product: %w: i/o timeout", domain.ErrStoreUnavailable)
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 1), line("P2", 1)))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Nil(t, result)
	assert.Equal(t, 0, store.orderCount())
	assert.Equal(t, 0, store.openSessions())
}

func TestSubmitOrder_AcquireFailure(t *testing.T) {
	store := newMockStore(product("P1", 5))
	store.acquireErr = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	svc := NewOrderService(store)

	_, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 1)))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, int64(5), store.inventory("P1"))
}

func TestSubmitOrder_PerItemErrorFolded(t *testing.T) {
	store := newMockStore(product("P1", 5), product("P2", 5))
	store.adjustErr["P1"] = errors.New("check constraint violated")
	svc := NewOrderService(store)

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 1), line("P2", 1)))
	require.NoError(t, err)

	assert.Equal(t, []string{"P1"}, result.Unfulfilled)
	assert.Equal(t, domain.ReasonStoreError, result.Reasons["P1"])
	assert.Equal(t, []string{"P2"}, result.Fulfilled)
}

func TestSubmitOrder_InvalidInput(t *testing.T) {
	store := newMockStore()
	svc := NewOrderService(store)

	_, err := svc.SubmitOrder(context.Background(), outgoing())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, store.acquired, "no session should be acquired for invalid input")
}

func TestSubmitOrder_InsertFailure(t *testing.T) {
	store := newMockStore(product("P1", 5))
	store.insertErr = errors.New("disk full")
	svc := NewOrderService(store)

	_, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 1)))
	require.Error(t, err)
	assert.Equal(t, 0, store.openSessions())
}

func TestSubmitOrder_ReleasesSession(t *testing.T) {
	store := newMockStore(product("P1", 5), product("P2", 0))
	svc := NewOrderService(store)
	ctx := context.Background()

	svc.SubmitOrder(ctx, outgoing(line("P1", 1)))
	svc.SubmitOrder(ctx, outgoing(line("P2", 1)))
	svc.SubmitOrder(ctx, outgoing(line("missing", 1)))

	assert.Equal(t, 3, store.acquired)
	assert.Equal(t, 0, store.openSessions())
}

func TestSubmitOrder_DuplicateRequest(t *testing.T) {
	store := newMockStore(product("P1", 10))
	cache := newMockCache()
	svc := NewOrderService(store, WithIdempotencyCache(cache))
	ctx := context.Background()

	req := outgoing(line("P1", 1))
	req.IdempotencyKey = "req-1"

	_, err := svc.SubmitOrder(ctx, req)
	require.NoError(t, err)

	_, err = svc.SubmitOrder(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	// Stock should only be decremented once
	assert.Equal(t, int64(9), store.inventory("P1"))
	assert.True(t, cache.held("idempotency:req-1"))
}

func TestSubmitOrder_FailureReleasesIdempotencyKey(t *testing.T) {
	store := newMockStore(product("P1", 0))
	cache := newMockCache()
	svc := NewOrderService(store, WithIdempotencyCache(cache))
	ctx := context.Background()

	req := outgoing(line("P1", 1))
	req.IdempotencyKey = "req-2"

	_, err := svc.SubmitOrder(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNoFulfillment)
	assert.False(t, cache.held("idempotency:req-2"))

	// Restocked, the same key can be resubmitted
	store.setInventory("P1", 3)
	_, err = svc.SubmitOrder(ctx, req)
	assert.NoError(t, err)
}

func TestSubmitOrder_PartialFailureKeepsIdempotencyKey(t *testing.T) {
	store := newMockStore(product("P1", 5), product("P2", 5))
	store.findErr["P2"] = fmt.Errorf("query product: %w: i/o timeout", domain.ErrStoreUnavailable)
	cache := newMockCache()
	svc := NewOrderService(store, WithIdempotencyCache(cache))
	ctx := context.Background()

	req := outgoing(line("P1", 1), line("P2", 1))
	req.IdempotencyKey = "k"

	_, err := svc.SubmitOrder(ctx, req)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, int64(4), store.inventory("P1"))
	assert.True(t, cache.held("idempotency:k"), "P1 was already decremented, the key must stay claimed")

	// The store recovers; a retry with the same key must not decrement P1 again
	delete(store.findErr, "P2")
	_, err = svc.SubmitOrder(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, int64(4), store.inventory("P1"))
	assert.Equal(t, int64(5), store.inventory("P2"))
	assert.Equal(t, 0, store.orderCount())
}

func TestSubmitOrder_InsertFailureKeepsIdempotencyKey(t *testing.T) {
	store := newMockStore(product("P1", 5))
	store.insertErr = errors.New("disk full")
	cache := newMockCache()
	svc := NewOrderService(store, WithIdempotencyCache(cache))

	req := outgoing(line("P1", 2))
	req.IdempotencyKey = "k2"

	_, err := svc.SubmitOrder(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, int64(3), store.inventory("P1"))
	assert.True(t, cache.held("idempotency:k2"))
}

func TestSubmitOrder_StoreUnavailableBeforeMutationReleasesKey(t *testing.T) {
	store := newMockStore(product("P1", 5))
	store.findErr["P1"] = fmt.Errorf("query product: %w: i/o timeout", domain.ErrStoreUnavailable)
	cache := newMockCache()
	svc := NewOrderService(store, WithIdempotencyCache(cache))

	req := outgoing(line("P1", 1))
	req.IdempotencyKey = "k3"

	_, err := svc.SubmitOrder(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, cache.held("idempotency:k3"))
}

func TestSubmitOrder_PublishesEvent(t *testing.T) {
	store := newMockStore(product("P1", 5))
	publisher := &mockPublisher{err: errors.New("broker down")}
	svc := NewOrderService(store, WithEventPublisher(publisher))

	result, err := svc.SubmitOrder(context.Background(), outgoing(line("P1", 1)))
	require.NoError(t, err, "publish failures must not fail the order")

	require.Len(t, publisher.orders, 1)
	assert.Equal(t, result.OrderID, publisher.orders[0].ID)
}

func TestSubmitOrder_RecordsOutcomes(t *testing.T) {
	store := newMockStore(product("A", 10), product("B", 2))
	recorder := newMockRecorder()
	svc := NewOrderService(store, WithRecorder(recorder))
	ctx := context.Background()

	svc.SubmitOrder(ctx, outgoing(line("A", 1), line("B", 5), line("C", 1)))
	svc.SubmitOrder(ctx, outgoing(line("C", 1)))

	assert.Equal(t, 1, recorder.lines[domain.OutcomeFulfilled])
	assert.Equal(t, 1, recorder.lines[domain.OutcomePartial])
	assert.Equal(t, 2, recorder.lines[domain.OutcomeUnfulfilled])
	assert.Equal(t, []string{"success", "no_fulfillment"}, recorder.results)
}

func TestSubmitOrder_RecordsInvalidInput(t *testing.T) {
	store := newMockStore()
	recorder := newMockRecorder()
	svc := NewOrderService(store, WithRecorder(recorder))

	_, err := svc.SubmitOrder(context.Background(), outgoing())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, []string{"invalid_input"}, recorder.results)
	assert.Equal(t, 0, store.acquired)
}

func TestSubmitOrder_PartitionsRequest(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		store := newMockStore()
		var lines []domain.RequestedLine
		n := 1 + rng.IntN(6)
		for j := 0; j < n; j++ {
			id := fmt.Sprintf("P%d", j)
			if rng.IntN(4) > 0 {
				store.products[id] = product(id, int64(rng.IntN(5)))
			}
			lines = append(lines, line(id, int64(1+rng.IntN(6))))
		}
		isOutgoing := rng.IntN(2) == 0
		svc := NewOrderService(store)

		result, err := svc.SubmitOrder(context.Background(), domain.OrderRequest{IsOutgoing: isOutgoing, Lines: lines})
		if errors.Is(err, domain.ErrNoFulfillment) {
			assert.Equal(t, 0, store.orderCount())
			continue
		}
		require.NoError(t, err)

		seen := make(map[string]int)
		for _, bucket := range [][]string{result.Fulfilled, result.Partial, result.Unfulfilled} {
			for _, id := range bucket {
				seen[id]++
			}
		}
		require.Len(t, seen, len(lines))
		for _, l := range lines {
			assert.Equal(t, 1, seen[l.ProductID], "product %s must be in exactly one bucket", l.ProductID)
		}
		assert.Len(t, result.Order.OrderDetails, len(result.Fulfilled)+len(result.Partial))
		if !isOutgoing {
			assert.Empty(t, result.Partial)
		}
	}
}

func TestSubmitOrder_Concurrent(t *testing.T) {
	initialStock := int64(20)
	totalRequests := 50

	store := newMockStore(product("item", initialStock))
	svc := NewOrderService(store)

	var applied atomic.Int64
	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.SubmitOrder(context.Background(), outgoing(line("item", 1)))
			if err == nil {
				successCount.Add(1)
				applied.Add(result.Order.OrderDetails[0].Quantity)
			}
		}()
	}

	wg.Wait()

	final := store.inventory("item")
	assert.GreaterOrEqual(t, final, int64(0))
	assert.LessOrEqual(t, int64(successCount.Load()), initialStock)
	assert.Equal(t, initialStock-final, applied.Load())
	assert.Equal(t, int(successCount.Load()), store.orderCount())
	assert.Equal(t, 0, store.openSessions())
}

func TestGetOrder(t *testing.T) {
	store := newMockStore(product("P1", 5))
	svc := NewOrderService(store)
	ctx := context.Background()

	result, err := svc.SubmitOrder(ctx, outgoing(line("P1", 2)))
	require.NoError(t, err)

	order, err := svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, result.Order.OrderDetails, order.OrderDetails)

	_, err = svc.GetOrder(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetOrder(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetOrder_LogsCloseFailure(t *testing.T) {
	store := newMockStore(product("P1", 5))
	core, logs := observer.New(zap.WarnLevel)
	svc := NewOrderService(store, WithLogger(zap.New(core)))
	ctx := context.Background()

	result, err := svc.SubmitOrder(ctx, outgoing(line("P1", 1)))
	require.NoError(t, err)

	store.closeErr = errors.New("connection reset")
	_, err = svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)

	entries := logs.FilterMessage("failed to release session").All()
	require.Len(t, entries, 1)
	assert.Equal(t, 0, store.openSessions())
}
