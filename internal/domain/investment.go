package domain

import "time"

// ============================================================
// Investment valuation
// ============================================================

// PriceEntry is a cached per-share price.
type PriceEntry struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceQuote is the result of InvestmentService.GetCurrentPrice.
type PriceQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Cached    bool      `json:"cached"`
	Source    string    `json:"source,omitempty"`
}

// InvestmentValues is the gain/loss arithmetic for one account at one price.
type InvestmentValues struct {
	TotalValue    float64 `json:"total_value"`
	GainsAbsolute float64 `json:"gains_absolute"`
	GainsPct      float64 `json:"gains_pct"`
}

// ValuationStatus lets consumers distinguish why a valuation is degraded.
type ValuationStatus string

const (
	ValuationOK          ValuationStatus = "ok"
	ValuationNoSymbol    ValuationStatus = "no_symbol"
	ValuationNoData      ValuationStatus = "no_data"
	ValuationRateLimited ValuationStatus = "rate_limited"
	ValuationFailed      ValuationStatus = "failed"
)

// InvestmentValuation is the composed view of an investment account.
type InvestmentValuation struct {
	AccountID      string          `json:"account_id"`
	StockSymbol    string          `json:"stock_symbol"`
	Shares         float64         `json:"shares"`
	MontoInvertido float64         `json:"monto_invertido"`
	CurrentPrice   float64         `json:"current_price"`
	PriceTimestamp time.Time       `json:"price_timestamp"`
	Status         ValuationStatus `json:"status"`
	Message        string          `json:"message,omitempty"`
	InvestmentValues
}

// DegradedValuation is the zero-price view shown when no price is available:
// total value zero and a loss equal to the full invested amount.
func DegradedValuation(a *Account, status ValuationStatus, message string) *InvestmentValuation {
	return &InvestmentValuation{
		AccountID:      a.ID,
		StockSymbol:    a.StockSymbol,
		Shares:         a.Shares,
		MontoInvertido: a.MontoInvertido,
		Status:         status,
		Message:        message,
		InvestmentValues: InvestmentValues{
			TotalValue:    0,
			GainsAbsolute: -a.MontoInvertido,
			GainsPct:      lossPct(a.MontoInvertido),
		},
	}
}

func lossPct(invested float64) float64 {
	if invested > 0 {
		return -100
	}
	return 0
}

// PriceMetrics is returned by GET /v1/metrics/prices.
type PriceMetrics struct {
	CacheHits      int64   `json:"cache_hits"`
	CacheMisses    int64   `json:"cache_misses"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	RateLimited    int64   `json:"rate_limited"`
	UpstreamErrors int64   `json:"upstream_errors"`
}
