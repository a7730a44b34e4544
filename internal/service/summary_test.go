package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSummaryLedger builds two USD accounts, one EUR account and an
// investment account holding 10 AAPL shares bought for 1000.
func seedSummaryLedger(t *testing.T, h *harness) (investment *domain.Account) {
	t.Helper()
	ctx := context.Background()

	checking := h.account(t, "Checking", "USD", domain.AccountTypeNormal)
	daily := h.pocket(t, checking.ID, "Daily", domain.PocketTypeNormal)
	h.move(t, domain.MovementIncomeNormal, daily, 1000.5, false)
	h.move(t, domain.MovementExpenseNormal, daily, 0.5, true)

	savings := h.account(t, "Savings", "USD", domain.AccountTypeNormal)
	bills := h.pocket(t, savings.ID, "Bills", domain.PocketTypeFixed)
	rent := h.subPocket(t, bills.ID, "Rent", 1200, 12)
	_, err := h.ledger.Movements.CreateMovement(ctx, testUser, &domain.CreateMovementRequest{
		Type: domain.MovementIncomeFixed, AccountID: savings.ID, PocketID: bills.ID, SubPocketID: rent.ID, Amount: 234,
	})
	require.NoError(t, err)

	euro := h.account(t, "Euro", "EUR", domain.AccountTypeNormal)
	travel := h.pocket(t, euro.ID, "Travel", domain.PocketTypeNormal)
	h.move(t, domain.MovementIncomeNormal, travel, 50, true)

	investment, err = h.ledger.Accounts.CreateAccount(ctx, testUser, &domain.CreateAccountRequest{
		Name: "Broker", Currency: "USD", Type: domain.AccountTypeInvestment, StockSymbol: "AAPL",
	})
	require.NoError(t, err)
	pockets, err := h.ledger.Accounts.ListPockets(ctx, testUser, investment.ID)
	require.NoError(t, err)
	invested := pocketByName(t, pockets, domain.InvestedMoneyPocketName)
	shares := pocketByName(t, pockets, domain.SharesPocketName)
	h.move(t, domain.MovementIncomeNormal, &invested, 1000, false)
	h.move(t, domain.MovementIncomeNormal, &shares, 10, false)

	gone := h.account(t, "Closed", "USD", domain.AccountTypeNormal)
	gonePocket := h.pocket(t, gone.ID, "Old", domain.PocketTypeNormal)
	h.move(t, domain.MovementIncomeNormal, gonePocket, 99, true)
	_, err = h.ledger.Accounts.DeleteAccount(ctx, testUser, gone.ID, domain.DeleteOptions{})
	require.NoError(t, err)

	return investment
}

func totalFor(t *testing.T, s *domain.Summary, currency string) domain.CurrencyTotal {
	t.Helper()
	for _, total := range s.Totals {
		if total.Currency == currency {
			return total
		}
	}
	t.Fatalf("no total for %s", currency)
	return domain.CurrencyTotal{}
}

func TestGetSummary_TotalsPerCurrency(t *testing.T) {
	h := newHarness(t)
	investment := seedSummaryLedger(t, h)

	s, err := h.ledger.Summary.GetSummary(context.Background(), testUser)
	require.NoError(t, err)

	require.Len(t, s.Accounts, 4)
	require.Len(t, s.Totals, 2)
	assert.Equal(t, "EUR", s.Totals[0].Currency, "totals are sorted by currency")

	usd := totalFor(t, s, "USD")
	assert.Equal(t, 2434.5, usd.Total, "1000.5 + 234 + 1200 valued shares")
	assert.Equal(t, 3, usd.Accounts)
	assert.Equal(t, "$2,434.50", usd.Formatted)

	eur := totalFor(t, s, "EUR")
	assert.Equal(t, 0.0, eur.Total, "pending movements do not count")
	assert.Equal(t, 1, eur.Accounts)

	assert.Equal(t, domain.PendingTotals{Count: 2, Income: 50, Expense: 0.5}, s.Pending)
	assert.Equal(t, 1, s.OrphanedCount)

	for _, view := range s.Accounts {
		switch view.Account.ID {
		case investment.ID:
			require.NotNil(t, view.Investment)
			assert.Equal(t, domain.ValuationOK, view.Investment.Status)
			assert.Equal(t, 1200.0, view.Investment.TotalValue)
			assert.Equal(t, 1000.0, view.Account.Balance)
		default:
			assert.Nil(t, view.Investment)
		}
		if view.Account.Name == "Savings" {
			require.NotNil(t, view.FixedExpenses)
			assert.Equal(t, 100.0, view.FixedExpenses.TotalMonthly)
			assert.Equal(t, 234.0, view.Account.Balance)
		}
	}
}

func TestGetSummary_DegradesWhenPricingFails(t *testing.T) {
	h := newHarness(t)
	investment := seedSummaryLedger(t, h)
	h.prices.err = errors.New("quote api down")

	s, err := h.ledger.Summary.GetSummary(context.Background(), testUser)
	require.NoError(t, err, "pricing failures never fail the summary")

	usd := totalFor(t, s, "USD")
	assert.Equal(t, 1234.5, usd.Total)

	for _, view := range s.Accounts {
		if view.Account.ID != investment.ID {
			continue
		}
		require.NotNil(t, view.Investment)
		assert.Equal(t, domain.ValuationFailed, view.Investment.Status)
		assert.Equal(t, 0.0, view.Investment.TotalValue)
	}
}

func TestGetSummary_EmptyLedger(t *testing.T) {
	h := newHarness(t)

	s, err := h.ledger.Summary.GetSummary(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, s.Accounts)
	assert.Empty(t, s.Totals)
	assert.Equal(t, domain.PendingTotals{}, s.Pending)
	assert.Zero(t, s.OrphanedCount)
}
