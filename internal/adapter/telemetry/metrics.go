package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// PrometheusRecorder implements port.Recorder.
type PrometheusRecorder struct {
	lines    *prometheus.CounterVec
	orders   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		lines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockroom",
			Name:      "order_lines_total",
			Help:      "Reconciled order lines by direction, outcome and unfulfilled reason.",
		}, []string{"direction", "outcome", "reason"}),
		orders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockroom",
			Name:      "order_submissions_total",
			Help:      "Order submissions by direction and result.",
		}, []string{"direction", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stockroom",
			Name:      "order_submission_duration_seconds",
			Help:      "Time spent reconciling one order submission.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
	}
}

func (r *PrometheusRecorder) LineReconciled(direction string, outcome domain.Outcome, reason domain.UnfulfilledReason) {
	r.lines.WithLabelValues(direction, string(outcome), string(reason)).Inc()
}

func (r *PrometheusRecorder) OrderSubmitted(direction, result string, elapsed time.Duration) {
	r.orders.WithLabelValues(direction, result).Inc()
	r.duration.WithLabelValues(direction).Observe(elapsed.Seconds())
}
