package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// RequestedLine is one product of an order request.
type RequestedLine struct {
	ProductID string
	Quantity  int64
}

// OrderRequest is an already-decoded order submission. Lines keep the key order of the payload.
type OrderRequest struct {
	IsOutgoing     bool
	Lines          []RequestedLine
	IdempotencyKey string
}

func (r OrderRequest) Validate() error {
	if len(r.Lines) == 0 {
		return invalidf("orderDetails must contain at least one product")
	}
	for _, line := range r.Lines {
		if line.ProductID == "" {
			return invalidf("orderDetails contains an empty product ID")
		}
	}
	return nil
}

// DecodeOrderRequest parses {isOutgoing, orderDetails, requestId?} into a typed request.
// A repeated product ID keeps its first position and its last quantity.
func DecodeOrderRequest(data []byte) (OrderRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return OrderRequest{}, invalidf("request body must be a JSON object")
	}

	var req OrderRequest
	raw, ok := fields["isOutgoing"]
	if !ok || isNull(raw) {
		return OrderRequest{}, invalidf("isOutgoing is required")
	}
	if err := json.Unmarshal(raw, &req.IsOutgoing); err != nil {
		return OrderRequest{}, invalidf("isOutgoing must be a boolean")
	}

	raw, ok = fields["orderDetails"]
	if !ok || isNull(raw) {
		return OrderRequest{}, invalidf("orderDetails is required")
	}
	lines, err := decodeQuantities(raw)
	if err != nil {
		return OrderRequest{}, err
	}
	req.Lines = lines

	if raw, ok := fields["requestId"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.IdempotencyKey); err != nil {
			return OrderRequest{}, invalidf("requestId must be a string")
		}
	}

	if err := req.Validate(); err != nil {
		return OrderRequest{}, err
	}
	return req, nil
}

func decodeQuantities(raw json.RawMessage) ([]RequestedLine, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, invalidf("orderDetails must be an object of productId to quantity")
	}

	var lines []RequestedLine
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, invalidf("orderDetails is malformed")
		}
		id := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return nil, invalidf("orderDetails is malformed")
		}
		num, ok := tok.(json.Number)
		if !ok {
			return nil, invalidf("quantity for %q must be a number", id)
		}
		qty, err := integerQuantity(num)
		if err != nil {
			return nil, invalidf("quantity for %q %s", id, err)
		}

		if i, seen := index[id]; seen {
			lines[i].Quantity = qty
			continue
		}
		index[id] = len(lines)
		lines = append(lines, RequestedLine{ProductID: id, Quantity: qty})
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, invalidf("orderDetails is malformed")
	}
	return lines, nil
}

func integerQuantity(num json.Number) (int64, error) {
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, errors.New("is out of range")
	}
	if f != math.Trunc(f) {
		return 0, errors.New("must be a whole number")
	}
	return int64(f), nil
}

type productFields struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Inventory   *float64 `json:"inventory"`
}

func decodeProductFields(data []byte) (productFields, *int64, error) {
	var f productFields
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return productFields{}, nil, invalidf("%s", describeDecodeError(err))
	}
	if f.Inventory == nil {
		return f, nil, nil
	}
	if *f.Inventory != math.Trunc(*f.Inventory) {
		return productFields{}, nil, invalidf("inventory must be a whole number")
	}
	inv := int64(*f.Inventory)
	return f, &inv, nil
}

// DecodeProductDraft parses a create-product payload.
func DecodeProductDraft(data []byte) (ProductDraft, error) {
	f, inv, err := decodeProductFields(data)
	if err != nil {
		return ProductDraft{}, err
	}
	if f.Name == nil {
		return ProductDraft{}, invalidf("name is required")
	}
	if f.Price == nil {
		return ProductDraft{}, invalidf("price is required")
	}
	draft := ProductDraft{Name: *f.Name, Price: *f.Price}
	if f.Description != nil {
		draft.Description = *f.Description
	}
	if inv != nil {
		draft.Inventory = *inv
	}
	if err := draft.Validate(); err != nil {
		return ProductDraft{}, err
	}
	return draft, nil
}

// DecodeProductPatch parses a partial update payload.
func DecodeProductPatch(data []byte) (ProductPatch, error) {
	f, inv, err := decodeProductFields(data)
	if err != nil {
		return ProductPatch{}, err
	}
	patch := ProductPatch{Name: f.Name, Description: f.Description, Price: f.Price, Inventory: inv}
	if err := patch.Validate(); err != nil {
		return ProductPatch{}, err
	}
	return patch, nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be a %s", typeErr.Field, typeName(typeErr.Field))
	}
	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return strings.TrimPrefix(err.Error(), "json: ")
	}
	return "request body must be a JSON object"
}

func typeName(field string) string {
	switch field {
	case "price", "inventory":
		return "number"
	default:
		return "string"
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
