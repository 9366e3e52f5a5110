package observability

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/quillgate/internal/platform/logger"
)

const metricsNamespace = "qg"

type Metrics struct {
	registry *prometheus.Registry

	aggregateLatency   *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec

	validationOutcomes *prometheus.CounterVec
	validationFindings *prometheus.CounterVec

	loopOutcomes *prometheus.CounterVec
	loopAttempts *prometheus.HistogramVec

	generationLatency *prometheus.HistogramVec

	staleReviews prometheus.Counter
	lockWait     *prometheus.HistogramVec
	redisUp      prometheus.Gauge

	vectorOps *prometheus.HistogramVec

	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics set when METRICS_ENABLED is on.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		instance = NewMetrics(reg)
		if log != nil {
			log.Info("metrics initialized", "namespace", metricsNamespace)
		}
	})
	return instance
}

// NewMetrics registers every collector on reg. Tests pass a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		aggregateLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "aggregate",
			Name:      "operation_duration_seconds",
			Help:      "Aggregate write latency by operation/status.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"operation", "status"}),
		aggregateConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "aggregate",
			Name:      "conflicts_total",
			Help:      "Aggregate writes rejected with a conflict.",
		}, []string{"operation"}),
		aggregateRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "aggregate",
			Name:      "retryable_total",
			Help:      "Aggregate writes failed with a retryable error.",
		}, []string{"operation"}),
		validationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "validator",
			Name:      "results_total",
			Help:      "Validation results by decided action.",
		}, []string{"action"}),
		validationFindings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "validator",
			Name:      "findings_total",
			Help:      "Validation findings by code/severity.",
		}, []string{"code", "severity"}),
		loopOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "loop",
			Name:      "outcomes_total",
			Help:      "Generation loop terminal states by mode/state/reason.",
		}, []string{"mode", "state", "reason"}),
		loopAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "loop",
			Name:      "attempts",
			Help:      "Drafting attempts consumed per loop run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		}, []string{"mode"}),
		generationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "generation",
			Name:      "request_duration_seconds",
			Help:      "Generation provider latency by model/status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"model", "status"}),
		staleReviews: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "stale_reviews_total",
			Help:      "Reviews latched stale by sibling propagation.",
		}),
		lockWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ledger",
			Name:      "chapter_lock_wait_seconds",
			Help:      "Time spent acquiring the per-chapter write lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"backend", "status"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "redis",
			Name:      "up",
			Help:      "1 when the lock backend answered its last ping.",
		}),
		vectorOps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "vector",
			Name:      "operation_duration_seconds",
			Help:      "Vector index latency by provider/operation/status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method/route/status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "api",
			Name:      "inflight_requests",
			Help:      "Requests currently being served.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateLatency.WithLabelValues(labelOr(operation, "unknown"), labelOr(status, "unknown")).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(operation string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(labelOr(operation, "unknown")).Inc()
}

func (m *Metrics) IncAggregateRetry(operation string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(labelOr(operation, "unknown")).Inc()
}

func (m *Metrics) IncValidationResult(action string) {
	if m == nil {
		return
	}
	m.validationOutcomes.WithLabelValues(labelOr(action, "unknown")).Inc()
}

func (m *Metrics) IncValidationFinding(code, severity string) {
	if m == nil {
		return
	}
	m.validationFindings.WithLabelValues(labelOr(code, "unknown"), labelOr(severity, "unknown")).Inc()
}

func (m *Metrics) ObserveLoopOutcome(mode, state, reason string, attempts int) {
	if m == nil {
		return
	}
	m.loopOutcomes.WithLabelValues(labelOr(mode, "unknown"), labelOr(state, "unknown"), labelOr(reason, "none")).Inc()
	m.loopAttempts.WithLabelValues(labelOr(mode, "unknown")).Observe(float64(attempts))
}

func (m *Metrics) ObserveGeneration(model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.generationLatency.WithLabelValues(labelOr(model, "unknown"), labelOr(status, "unknown")).Observe(dur.Seconds())
}

func (m *Metrics) AddStaleReviews(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.staleReviews.Add(float64(n))
}

func (m *Metrics) ObserveLockWait(backend, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(labelOr(backend, "unknown"), labelOr(status, "unknown")).Observe(dur.Seconds())
}

func (m *Metrics) ObserveVectorOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.WithLabelValues(labelOr(provider, "unknown"), labelOr(operation, "unknown"), labelOr(status, "unknown")).Observe(dur.Seconds())
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiLatency.WithLabelValues(labelOr(method, "unknown"), labelOr(route, "unknown"), labelOr(status, "unknown")).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// StartPostgresCollector exports database/sql pool stats for the gorm pool.
func (m *Metrics) StartPostgresCollector(log *logger.Logger, db *gorm.DB, name string) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("db stats collector disabled", "error", err)
		}
		return
	}
	if err := m.registry.Register(collectors.NewDBStatsCollector(sqlDB, labelOr(name, "ledger"))); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) && log != nil {
			log.Warn("db stats collector register failed", "error", err)
		}
	}
}

// StartRedisCollector pings rdb every interval until ctx ends.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := rdb.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				m.redisUp.Set(0)
				if log != nil {
					log.Debug("redis ping failed", "error", err)
				}
			} else {
				m.redisUp.Set(1)
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func labelOr(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
