package observability

import (
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	movementOps       *prometheus.CounterVec
	propagations      *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		movementOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_movement_operations_total",
				Help: "Movement lifecycle operations by outcome.",
			},
			[]string{"operation", "result"},
		),
		propagations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_propagations_total",
				Help: "Balance changes applied, by holder kind and direction.",
			},
			[]string{"holder", "direction"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_price_rate_limited_total",
				Help: "Price lookups rejected by the global rate limit.",
			},
			[]string{"symbol"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrMovementOp counts a movement lifecycle operation.
func (m *Metrics) IncrMovementOp(operation string, err error) {
	result := "ok"
	if err != nil {
		result = domain.Kind(err)
	}
	m.movementOps.WithLabelValues(operation, result).Inc()
}

// IncrPropagation counts a balance change on a pocket or sub-pocket.
func (m *Metrics) IncrPropagation(holder string, income bool) {
	direction := "debit"
	if income {
		direction = "credit"
	}
	m.propagations.WithLabelValues(holder, direction).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRateLimited counts a lookup refused by the global rate limit.
func (m *Metrics) IncrRateLimited(symbol string) {
	m.rateLimited.WithLabelValues(symbol).Inc()
}

// GetPriceSnapshot returns price lookup counters suitable for the
// GET /v1/metrics/prices endpoint.
func (m *Metrics) GetPriceSnapshot() *domain.PriceMetrics {
	hits := getCounterValue(m.cacheHits, "price")
	misses := getCounterValue(m.cacheMisses, "price")

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.PriceMetrics{
		CacheHits:      int64(hits),
		CacheMisses:    int64(misses),
		CacheHitRate:   hitRate,
		RateLimited:    int64(sumCounterVec(m.rateLimited)),
		UpstreamErrors: int64(getCounterValue(m.externalErrors, "price")),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every series of a CounterVec.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
