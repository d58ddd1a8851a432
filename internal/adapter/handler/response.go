package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stockroom/internal/core/domain"
)

const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"
)

type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type errorData struct {
	Message string `json:"message"`
}

type orderSubmission struct {
	OrderID      string       `json:"orderID"`
	OrderDetails domain.Order `json:"orderDetails"`
	Fulfilled    []string     `json:"fulfilled"`
	Partial      []string     `json:"partial"`
	Unfulfilled  []string     `json:"unfulfilled"`
}

func successEnvelope(data any) envelope {
	return envelope{Status: statusSuccess, Data: data}
}

// errorEnvelope exposes domain errors verbatim; anything else is reported as an internal error.
func errorEnvelope(err error) envelope {
	message := "internal error"
	if isDomainError(err) {
		message = err.Error()
	}
	return envelope{Status: statusError, Data: errorData{Message: message}}
}

func submissionData(result *domain.ReconciliationResult) orderSubmission {
	return orderSubmission{
		OrderID:      result.OrderID,
		OrderDetails: result.Order,
		Fulfilled:    result.Fulfilled,
		Partial:      result.Partial,
		Unfulfilled:  result.Unfulfilled,
	}
}

func isDomainError(err error) bool {
	return httpStatus(err) != http.StatusInternalServerError
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRequest), errors.Is(err, domain.ErrProductExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoFulfillment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// toStruct re-encodes v through JSON so gRPC responses carry the same shape as HTTP ones.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
