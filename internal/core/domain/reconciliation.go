package domain

type Outcome string

const (
	OutcomeFulfilled   Outcome = "fulfilled"
	OutcomePartial     Outcome = "partial"
	OutcomeUnfulfilled Outcome = "unfulfilled"
)

// UnfulfilledReason explains an unfulfilled line in logs; it never reaches the wire.
type UnfulfilledReason string

const (
	ReasonNotFound   UnfulfilledReason = "not_found"
	ReasonOutOfStock UnfulfilledReason = "out_of_stock"
	// ReasonNotModified covers both a lost race and a mutation that changed nothing;
	// the store's modified count cannot tell them apart.
	ReasonNotModified UnfulfilledReason = "not_modified"
	ReasonStoreError  UnfulfilledReason = "store_error"
)

// InventoryMutation is a conditional update: add Delta only while inventory still equals Observed.
type InventoryMutation struct {
	ProductID string
	Observed  int64
	Delta     int64
}

func (m InventoryMutation) Next() int64 {
	return m.Observed + m.Delta
}

// LinePlan is the decision for one requested line before it is applied.
type LinePlan struct {
	Outcome Outcome
	Applied int64
	Delta   int64
}

// PlanLine decides how much of requested can be applied against inventory.
// Quantities are taken as given: zero or negative requests are not rejected here.
func PlanLine(isOutgoing bool, inventory, requested int64) LinePlan {
	if !isOutgoing {
		return LinePlan{Outcome: OutcomeFulfilled, Applied: requested, Delta: requested}
	}
	switch {
	case inventory == 0:
		return LinePlan{Outcome: OutcomeUnfulfilled}
	case inventory < requested:
		return LinePlan{Outcome: OutcomePartial, Applied: inventory, Delta: -inventory}
	default:
		return LinePlan{Outcome: OutcomeFulfilled, Applied: requested, Delta: -requested}
	}
}

func (p LinePlan) Mutation(productID string, observed int64) InventoryMutation {
	return InventoryMutation{ProductID: productID, Observed: observed, Delta: p.Delta}
}

type ReconciliationResult struct {
	OrderID     string
	Order       Order
	Fulfilled   []string
	Partial     []string
	Unfulfilled []string
	Reasons     map[string]UnfulfilledReason
}

func NewReconciliationResult() *ReconciliationResult {
	return &ReconciliationResult{
		Fulfilled:   []string{},
		Partial:     []string{},
		Unfulfilled: []string{},
		Reasons:     make(map[string]UnfulfilledReason),
	}
}

// Classify puts productID into the bucket for outcome. Use MarkUnfulfilled for unfulfilled lines.
func (r *ReconciliationResult) Classify(productID string, outcome Outcome) {
	switch outcome {
	case OutcomeFulfilled:
		r.Fulfilled = append(r.Fulfilled, productID)
	case OutcomePartial:
		r.Partial = append(r.Partial, productID)
	default:
		r.Unfulfilled = append(r.Unfulfilled, productID)
	}
}

func (r *ReconciliationResult) MarkUnfulfilled(productID string, reason UnfulfilledReason) {
	r.Unfulfilled = append(r.Unfulfilled, productID)
	r.Reasons[productID] = reason
}
