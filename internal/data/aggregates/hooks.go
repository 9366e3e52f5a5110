package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/quillgate/internal/observability"
)

// Hooks receives ledger write signals. Implementations must be safe for
// concurrent use.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
	// AddStaleReviews reports reviews latched stale by one write.
	AddStaleReviews(name string, n int64)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) AddStaleReviews(string, int64)                  {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks feeds ledger signals into the prometheus registry.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return &metricsHooks{metrics: metrics}
}

func (h *metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.metrics.ObserveAggregateOperation(strings.TrimSpace(name), strings.TrimSpace(status), dur)
}

func (h *metricsHooks) IncConflict(name string) {
	h.metrics.IncAggregateConflict(strings.TrimSpace(name))
}

func (h *metricsHooks) IncRetry(name string) {
	h.metrics.IncAggregateRetry(strings.TrimSpace(name))
}

func (h *metricsHooks) AddStaleReviews(_ string, n int64) {
	h.metrics.AddStaleReviews(n)
}
