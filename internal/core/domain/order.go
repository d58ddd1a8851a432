package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// Direction names the flow of an order for logs and metrics.
func Direction(isOutgoing bool) string {
	if isOutgoing {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// LineItem is one applied quantity. On the wire it is a single-entry object {productId: quantity}.
type LineItem struct {
	ProductID string
	Quantity  int64
}

func (l LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]int64{l.ProductID: l.Quantity})
}

func (l *LineItem) UnmarshalJSON(data []byte) error {
	var entry map[string]int64
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	if len(entry) != 1 {
		return fmt.Errorf("line item must have exactly one entry, got %d", len(entry))
	}
	for id, qty := range entry {
		l.ProductID, l.Quantity = id, qty
	}
	return nil
}

// Order is immutable once inserted; it only records quantities that were applied.
type Order struct {
	ID           string     `json:"_id,omitempty"`
	IsOutgoing   bool       `json:"isOutgoing"`
	OrderDetails []LineItem `json:"orderDetails"`
	DateTime     time.Time  `json:"datetime"`
}

// OrderCreatedEvent is published after an order has been persisted.
type OrderCreatedEvent struct {
	Type  string `json:"type"`
	Order Order  `json:"order"`
}

func NewOrderCreatedEvent(order Order) OrderCreatedEvent {
	return OrderCreatedEvent{Type: "OrderCreated", Order: order}
}
