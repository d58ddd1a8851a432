package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

const maxBodyBytes = 1 << 20

const idempotencyKeyHeader = "Idempotency-Key"

type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	orders   *service.OrderService
	products *service.ProductService
	health   Pinger
	logger   *zap.Logger
}

func NewHTTPHandler(orders *service.OrderService, products *service.ProductService, health Pinger, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{orders: orders, products: products, health: health, logger: logger}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/orders", h.SubmitOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/products", h.CreateProduct)
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("PATCH /api/products/{id}", h.UpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.DeleteProduct)
}

func (h *HTTPHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	req, err := domain.DecodeOrderRequest(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if key := r.Header.Get(idempotencyKeyHeader); key != "" {
		req.IdempotencyKey = key
	}

	result, err := h.orders.SubmitOrder(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successEnvelope(submissionData(result)))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope(order))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	draft, err := domain.DecodeProductDraft(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	product, err := h.products.CreateProduct(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, successEnvelope(product))
}

// ListProducts lists the catalog, or looks a single product up when ?name= is given.
func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if name := query.Get("name"); name != "" {
		product, err := h.products.FindProductByName(r.Context(), name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successEnvelope(product))
		return
	}

	limit := 0
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidInput))
			return
		}
		limit = n
	}

	products, err := h.products.ListProducts(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope(products))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope(product))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	patch, err := domain.DecodeProductPatch(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope(product))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.products.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope(map[string]string{"productID": id}))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}
	writeJSON(w, status, errorEnvelope(err))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrInvalidInput, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: could not read request body", domain.ErrInvalidInput)
	}
	return body, nil
}
