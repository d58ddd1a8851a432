package port

import (
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// Recorder receives reconciliation measurements.
type Recorder interface {
	LineReconciled(direction string, outcome domain.Outcome, reason domain.UnfulfilledReason)
	OrderSubmitted(direction, result string, elapsed time.Duration)
}
