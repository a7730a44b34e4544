package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var investmentTracer = otel.Tracer("service/investment")

// InvestmentService resolves share prices and values investment accounts.
//
// Price lookups go local cache -> global rate limit -> upstream source.
type InvestmentService struct {
	source  port.PriceSource
	cache   port.PriceCache
	limits  port.RateLimitStore
	window  time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewInvestmentService creates an investment service. window is the minimum
// spacing between two upstream fetches of the same symbol, across clients.
func NewInvestmentService(
	source port.PriceSource,
	cache port.PriceCache,
	limits port.RateLimitStore,
	window time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *InvestmentService {
	o := buildOptions(opts)
	return &InvestmentService{
		source:  source,
		cache:   cache,
		limits:  limits,
		window:  window,
		metrics: metrics,
		logger:  logger,
		now:     o.now,
	}
}

// GetCurrentPrice returns the price of symbol, from the local cache when
// fresh. The global rate-limit check fails open.
func (s *InvestmentService) GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceQuote, error) {
	ctx, span := investmentTracer.Start(ctx, "InvestmentService.GetCurrentPrice")
	defer span.End()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	span.SetAttributes(attribute.String("price.symbol", symbol))
	if symbol == "" {
		return nil, &domain.ErrValidation{Field: "symbol", Message: "symbol is required"}
	}

	// 1. Local cache
	if entry, ok := s.cache.Get(symbol); ok {
		s.metrics.IncrCacheHit("price")
		span.SetAttributes(attribute.Bool("price.cached", true))
		return &domain.PriceQuote{
			Symbol:    symbol,
			Price:     entry.Price,
			Timestamp: entry.Timestamp,
			Cached:    true,
		}, nil
	}
	s.metrics.IncrCacheMiss("price")

	// 2. Global rate limit
	now := s.now()
	last, found, err := s.limits.LastPriceFetch(ctx, symbol)
	switch {
	case err != nil:
		s.logger.Warn("price rate-limit check failed, proceeding",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	case found:
		if elapsed := now.Sub(last); elapsed < s.window {
			s.metrics.IncrRateLimited(symbol)
			return nil, &domain.ErrRateLimited{Symbol: symbol, RetryAfter: s.window - elapsed}
		}
	}

	// 3. Upstream
	price, err := s.source.GetPrice(ctx, symbol)
	if err != nil {
		s.metrics.IncrExternalError("price")
		s.logger.Warn("price fetch failed",
			zap.String("symbol", symbol),
			zap.String("source", s.source.Name()),
			zap.Error(err),
		)
		if domain.Kind(err) == domain.KindUnknown {
			return nil, &domain.ErrExternalService{Service: s.source.Name(), Err: err}
		}
		return nil, err
	}
	// The upstream call counts against the window whatever it returned.
	if err := s.limits.RecordPriceFetch(ctx, symbol, now); err != nil {
		s.logger.Warn("failed to record price fetch",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}
	if !validPrice(price) {
		s.metrics.IncrExternalError("price")
		return nil, &domain.ErrInvalidPrice{Symbol: symbol, Price: price}
	}

	s.cache.Set(domain.PriceEntry{Symbol: symbol, Price: price, Timestamp: now})

	s.logger.Info("price fetched",
		zap.String("symbol", symbol),
		zap.Float64("price", price),
		zap.String("source", s.source.Name()),
	)
	return &domain.PriceQuote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: now,
		Source:    s.source.Name(),
	}, nil
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

// CalculateInvestmentValues values the account's shares at currentPrice.
// GainsPct is 0 when nothing was invested.
func CalculateInvestmentValues(account *domain.Account, currentPrice float64) domain.InvestmentValues {
	invested := decimal.NewFromFloat(account.MontoInvertido)
	total := decimal.NewFromFloat(account.Shares).Mul(decimal.NewFromFloat(currentPrice))
	gains := total.Sub(invested)

	pct := decimal.Zero
	if invested.IsPositive() {
		pct = gains.Div(invested).Mul(decimal.NewFromInt(100))
	}
	return domain.InvestmentValues{
		TotalValue:    total.InexactFloat64(),
		GainsAbsolute: gains.InexactFloat64(),
		GainsPct:      pct.InexactFloat64(),
	}
}

// UpdateInvestmentAccount prices the account's symbol and values it.
func (s *InvestmentService) UpdateInvestmentAccount(ctx context.Context, account *domain.Account) (*domain.InvestmentValuation, error) {
	ctx, span := investmentTracer.Start(ctx, "InvestmentService.UpdateInvestmentAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", account.ID))

	if strings.TrimSpace(account.StockSymbol) == "" {
		return nil, &domain.ErrValidation{Field: "stock_symbol", Message: "account has no stock symbol"}
	}

	quote, err := s.GetCurrentPrice(ctx, account.StockSymbol)
	if err != nil {
		return nil, err
	}
	return &domain.InvestmentValuation{
		AccountID:        account.ID,
		StockSymbol:      quote.Symbol,
		Shares:           account.Shares,
		MontoInvertido:   account.MontoInvertido,
		CurrentPrice:     quote.Price,
		PriceTimestamp:   quote.Timestamp,
		Status:           domain.ValuationOK,
		InvestmentValues: CalculateInvestmentValues(account, quote.Price),
	}, nil
}

// ValuationStatusFor classifies an UpdateInvestmentAccount failure.
func ValuationStatusFor(err error) domain.ValuationStatus {
	switch domain.Kind(err) {
	case "":
		return domain.ValuationOK
	case domain.KindValidation:
		return domain.ValuationNoSymbol
	case domain.KindNotFound:
		return domain.ValuationNoData
	case domain.KindRateLimited:
		return domain.ValuationRateLimited
	default:
		return domain.ValuationFailed
	}
}

// Valuate never fails: on error it returns the degraded zero-price view with
// a status telling why.
func (s *InvestmentService) Valuate(ctx context.Context, account *domain.Account) *domain.InvestmentValuation {
	v, err := s.UpdateInvestmentAccount(ctx, account)
	if err == nil {
		return v
	}
	s.logger.Debug("investment valuation degraded",
		zap.String("account_id", account.ID),
		zap.Error(err),
	)
	return domain.DegradedValuation(account, ValuationStatusFor(err), err.Error())
}

// PriceMetrics returns a snapshot of price cache and upstream counters.
func (s *InvestmentService) PriceMetrics() *domain.PriceMetrics {
	return s.metrics.GetPriceSnapshot()
}
