package service_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateInvestmentValues(t *testing.T) {
	got := service.CalculateInvestmentValues(&domain.Account{Shares: 10, MontoInvertido: 1000}, 120)
	assert.Equal(t, 1200.0, got.TotalValue)
	assert.Equal(t, 200.0, got.GainsAbsolute)
	assert.Equal(t, 20.0, got.GainsPct)

	free := service.CalculateInvestmentValues(&domain.Account{Shares: 3, MontoInvertido: 0}, 50)
	assert.Equal(t, 150.0, free.TotalValue)
	assert.Equal(t, 0.0, free.GainsPct, "no division by zero")

	loss := service.CalculateInvestmentValues(&domain.Account{Shares: 10, MontoInvertido: 1000}, 75)
	assert.Equal(t, -250.0, loss.GainsAbsolute)
	assert.Equal(t, -25.0, loss.GainsPct)
}

func TestGetCurrentPrice_CacheFreshnessBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.ledger.Investments

	first, err := inv.GetCurrentPrice(ctx, "aapl")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, 1, h.prices.Calls())

	h.clock.Advance(testTTL - time.Millisecond)
	second, err := inv.GetCurrentPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Timestamp, second.Timestamp)
	assert.Equal(t, 1, h.prices.Calls(), "fresh entry needs no upstream call")

	h.prices.price = 130
	h.clock.Advance(2 * time.Millisecond)
	third, err := inv.GetCurrentPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 130.0, third.Price)
	assert.Equal(t, 2, h.prices.Calls())

	snap := inv.PriceMetrics()
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(2), snap.CacheMisses)
}

func TestGetCurrentPrice_GlobalRateLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Another client fetched the symbol 10s ago.
	h.limits.last["MSFT"] = h.clock.Now().Add(-10 * time.Second)

	_, err := h.ledger.Investments.GetCurrentPrice(ctx, "MSFT")
	var rl *domain.ErrRateLimited
	require.True(t, errors.As(err, &rl), "expected ErrRateLimited, got %v", err)
	assert.Equal(t, 50*time.Second, rl.RetryAfter)
	assert.Equal(t, 0, h.prices.Calls())

	h.clock.Advance(50 * time.Second)
	quote, err := h.ledger.Investments.GetCurrentPrice(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 120.0, quote.Price)
	assert.Equal(t, h.clock.Now(), h.limits.last["MSFT"], "fetch is recorded globally")
	assert.Equal(t, int64(1), h.ledger.Investments.PriceMetrics().RateLimited)
}

func TestGetCurrentPrice_RateLimitCheckFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.limits.lookErr = errors.New("supabase unreachable")

	quote, err := h.ledger.Investments.GetCurrentPrice(context.Background(), "VOO")
	require.NoError(t, err)
	assert.Equal(t, 120.0, quote.Price)
	assert.Equal(t, 1, h.prices.Calls())
}

func TestGetCurrentPrice_RejectsUnusablePrices(t *testing.T) {
	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		h := newHarness(t)
		h.prices.price = price

		_, err := h.ledger.Investments.GetCurrentPrice(context.Background(), "BAD")
		assert.Equal(t, domain.KindInvalidPrice, domain.Kind(err), "price %v", price)
		assert.Equal(t, 1, h.limits.records, "the upstream call is recorded even when its price is rejected")

		_, again := h.ledger.Investments.GetCurrentPrice(context.Background(), "BAD")
		assert.Equal(t, domain.KindRateLimited, domain.Kind(again), "price %v", price)
		assert.Equal(t, 1, h.prices.Calls(), "no second upstream call inside the window")

		h.clock.Advance(testWindow)
		_, err = h.ledger.Investments.GetCurrentPrice(context.Background(), "BAD")
		assert.Equal(t, domain.KindInvalidPrice, domain.Kind(err), "invalid prices are not cached")
		assert.Equal(t, 2, h.prices.Calls())
	}
}

func TestGetCurrentPrice_UpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.prices.err = errors.New("connection reset")

	_, err := h.ledger.Investments.GetCurrentPrice(context.Background(), "AAPL")
	assert.Equal(t, domain.KindExternal, domain.Kind(err))
	assert.Equal(t, int64(1), h.ledger.Investments.PriceMetrics().UpstreamErrors)
}

func TestUpdateInvestmentAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ledger.Investments.UpdateInvestmentAccount(ctx, &domain.Account{ID: "a", Type: domain.AccountTypeInvestment})
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
	assert.Equal(t, domain.ValuationNoSymbol, service.ValuationStatusFor(err))

	v, err := h.ledger.Investments.UpdateInvestmentAccount(ctx, &domain.Account{
		ID: "a", Type: domain.AccountTypeInvestment, StockSymbol: "AAPL", Shares: 10, MontoInvertido: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ValuationOK, v.Status)
	assert.Equal(t, 120.0, v.CurrentPrice)
	assert.Equal(t, 1200.0, v.TotalValue)
	assert.Equal(t, 20.0, v.GainsPct)
	assert.Equal(t, h.clock.Now(), v.PriceTimestamp)
}

func TestValuate_DegradesWithStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := &domain.Account{ID: "a", Type: domain.AccountTypeInvestment, StockSymbol: "TSLA", Shares: 4, MontoInvertido: 800}

	h.limits.last["TSLA"] = h.clock.Now()
	limited := h.ledger.Investments.Valuate(ctx, account)
	assert.Equal(t, domain.ValuationRateLimited, limited.Status)
	assert.Equal(t, 0.0, limited.TotalValue)
	assert.Equal(t, -800.0, limited.GainsAbsolute)
	assert.Equal(t, -100.0, limited.GainsPct)

	h.clock.Advance(time.Hour)
	h.prices.err = errors.New("down")
	failed := h.ledger.Investments.Valuate(ctx, account)
	assert.Equal(t, domain.ValuationFailed, failed.Status)
	assert.NotEmpty(t, failed.Message)

	noSymbol := h.ledger.Investments.Valuate(ctx, &domain.Account{ID: "b", Type: domain.AccountTypeInvestment})
	assert.Equal(t, domain.ValuationNoSymbol, noSymbol.Status)
	assert.Equal(t, 0.0, noSymbol.GainsPct)

	h.clock.Advance(time.Hour)
	h.prices.err = &domain.ErrNotFound{Resource: "symbol", ID: "TSLA"}
	noData := h.ledger.Investments.Valuate(ctx, account)
	assert.Equal(t, domain.ValuationNoData, noData.Status)
	assert.Equal(t, 0.0, noData.TotalValue)
}

func TestValuationStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ValuationStatus
	}{
		{"no error", nil, domain.ValuationOK},
		{"missing symbol", &domain.ErrValidation{Field: "symbol", Message: "symbol is required"}, domain.ValuationNoSymbol},
		{"unknown symbol", &domain.ErrNotFound{Resource: "symbol", ID: "ZZZZ"}, domain.ValuationNoData},
		{"rate limited", &domain.ErrRateLimited{Symbol: "AAPL"}, domain.ValuationRateLimited},
		{"upstream down", errors.New("down"), domain.ValuationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.ValuationStatusFor(tt.err))
		})
	}
}
