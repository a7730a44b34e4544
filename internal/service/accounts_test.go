package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pocketByName(t *testing.T, pockets []domain.Pocket, name string) domain.Pocket {
	t.Helper()
	for _, p := range pockets {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("pocket %q not found", name)
	return domain.Pocket{}
}

func TestCreateAccount_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.CreateAccountRequest
	}{
		{"empty name", domain.CreateAccountRequest{Name: "  ", Currency: "USD"}},
		{"unknown currency", domain.CreateAccountRequest{Name: "Cash", Currency: "XYZ"}},
		{"unknown type", domain.CreateAccountRequest{Name: "Cash", Currency: "USD", Type: "crypto"}},
		{"symbol on normal account", domain.CreateAccountRequest{Name: "Cash", Currency: "USD", StockSymbol: "AAPL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := h.ledger.Accounts.CreateAccount(ctx, testUser, &req)
			assert.Equal(t, domain.KindValidation, kindOf(err))
		})
	}

	acc, err := h.ledger.Accounts.CreateAccount(ctx, testUser, &domain.CreateAccountRequest{Name: " Cash ", Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "Cash", acc.Name)
	assert.Equal(t, "USD", acc.Currency)
	assert.Equal(t, domain.AccountTypeNormal, acc.Type)
}

func TestInvestmentAccount_WellKnownPockets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acc, err := h.ledger.Accounts.CreateAccount(ctx, testUser, &domain.CreateAccountRequest{
		Name: "Broker", Currency: "USD", Type: domain.AccountTypeInvestment, StockSymbol: "aapl",
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", acc.StockSymbol)

	pockets, err := h.ledger.Accounts.ListPockets(ctx, testUser, acc.ID)
	require.NoError(t, err)
	require.Len(t, pockets, 2)
	invested := pocketByName(t, pockets, domain.InvestedMoneyPocketName)
	shares := pocketByName(t, pockets, domain.SharesPocketName)

	_, err = h.ledger.Accounts.DeletePocket(ctx, testUser, shares.ID, domain.DeleteOptions{})
	assert.Equal(t, domain.KindValidation, kindOf(err))
	_, err = h.ledger.Accounts.UpdatePocket(ctx, testUser, invested.ID, &domain.PocketUpdate{Name: ptr("Cash")})
	assert.Equal(t, domain.KindValidation, kindOf(err))

	reordered, err := h.ledger.Accounts.UpdatePocket(ctx, testUser, invested.ID, &domain.PocketUpdate{DisplayOrder: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, reordered.DisplayOrder)

	h.move(t, domain.MovementIncomeNormal, &invested, 1000, false)
	h.move(t, domain.MovementIncomeNormal, &shares, 10, false)

	got, err := h.ledger.Accounts.GetAccount(ctx, testUser, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.MontoInvertido)
	assert.Equal(t, 10.0, got.Shares)
	assert.Equal(t, 1000.0, got.Balance, "shares are not money")
}

func TestCreatePocket_Constraints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.account(t, "Checking", "USD", domain.AccountTypeNormal)
	h.pocket(t, acc.ID, "Bills", domain.PocketTypeFixed)
	h.pocket(t, acc.ID, "Groceries", domain.PocketTypeNormal)

	_, err := h.ledger.Accounts.CreatePocket(ctx, testUser, &domain.CreatePocketRequest{
		AccountID: acc.ID, Name: "More bills", Type: domain.PocketTypeFixed,
	})
	assert.Equal(t, domain.KindValidation, kindOf(err), "one fixed pocket per account")

	_, err = h.ledger.Accounts.CreatePocket(ctx, testUser, &domain.CreatePocketRequest{
		AccountID: acc.ID, Name: "groceries",
	})
	assert.Equal(t, domain.KindValidation, kindOf(err))

	_, err = h.ledger.Accounts.CreatePocket(ctx, testUser, &domain.CreatePocketRequest{
		AccountID: "missing", Name: "Fun",
	})
	assert.Equal(t, domain.KindValidation, kindOf(err))

	p, err := h.ledger.Accounts.CreatePocket(ctx, testUser, &domain.CreatePocketRequest{AccountID: acc.ID, Name: "Fun"})
	require.NoError(t, err)
	assert.Equal(t, domain.PocketTypeNormal, p.Type)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, 2, p.DisplayOrder)
}

func TestUpdateAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.account(t, "Checking", "USD", domain.AccountTypeNormal)
	p := h.pocket(t, acc.ID, "A", domain.PocketTypeNormal)
	h.move(t, domain.MovementIncomeNormal, p, 42, false)

	_, err := h.ledger.Accounts.UpdateAccount(ctx, testUser, acc.ID, &domain.AccountUpdate{Name: ptr(" ")})
	assert.Equal(t, domain.KindValidation, kindOf(err))
	_, err = h.ledger.Accounts.UpdateAccount(ctx, testUser, acc.ID, &domain.AccountUpdate{StockSymbol: ptr("AAPL")})
	assert.Equal(t, domain.KindValidation, kindOf(err))
	_, err = h.ledger.Accounts.UpdateAccount(ctx, testUser, "missing", &domain.AccountUpdate{})
	assert.Equal(t, domain.KindNotFound, kindOf(err))

	got, err := h.ledger.Accounts.UpdateAccount(ctx, testUser, acc.ID, &domain.AccountUpdate{
		Name: ptr("Main"), Color: ptr("#00ff00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Main", got.Name)
	assert.Equal(t, "#00ff00", got.Color)
	assert.Equal(t, 42.0, got.Balance)
}

func TestDeletePocket_CascadeRemovesSubPockets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acc := h.account(t, "Checking", "USD", domain.AccountTypeNormal)
	fixed := h.pocket(t, acc.ID, "Bills", domain.PocketTypeFixed)
	rent := h.subPocket(t, fixed.ID, "Rent", 1200, 12)
	h.subPocket(t, fixed.ID, "Water", 240, 12)
	_, err := h.ledger.Movements.CreateMovement(ctx, testUser, &domain.CreateMovementRequest{
		Type: domain.MovementIncomeFixed, AccountID: acc.ID, PocketID: fixed.ID, SubPocketID: rent.ID, Amount: 100,
	})
	require.NoError(t, err)

	result, err := h.ledger.Accounts.DeletePocket(ctx, testUser, fixed.ID, domain.DeleteOptions{DeleteMovements: true})
	require.NoError(t, err)
	assert.Equal(t, &domain.DeleteResult{MovementsDeleted: 1, PocketsDeleted: 1, SubPocketsDeleted: 2}, result)

	_, err = h.store.GetSubPocket(ctx, testUser, rent.ID)
	assert.Equal(t, domain.KindNotFound, kindOf(err))
	orphans, err := h.ledger.Movements.ListOrphanedMovements(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestMigrateFixedPocket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	source := h.account(t, "Old bank", "USD", domain.AccountTypeNormal)
	fixed := h.pocket(t, source.ID, "Bills", domain.PocketTypeFixed)
	rent := h.subPocket(t, fixed.ID, "Rent", 1200, 12)
	for _, amount := range []float64{300, 120} {
		_, err := h.ledger.Movements.CreateMovement(ctx, testUser, &domain.CreateMovementRequest{
			Type: domain.MovementIncomeFixed, AccountID: source.ID, PocketID: fixed.ID, SubPocketID: rent.ID, Amount: amount,
		})
		require.NoError(t, err)
	}

	euro := h.account(t, "Euro bank", "EUR", domain.AccountTypeNormal)
	busy := h.account(t, "Busy bank", "USD", domain.AccountTypeNormal)
	h.pocket(t, busy.ID, "Other bills", domain.PocketTypeFixed)
	target := h.account(t, "New bank", "USD", domain.AccountTypeNormal)
	h.pocket(t, target.ID, "Groceries", domain.PocketTypeNormal)

	tests := []struct {
		name     string
		pocketID string
		targetID string
	}{
		{"different currency", fixed.ID, euro.ID},
		{"target already has a fixed pocket", fixed.ID, busy.ID},
		{"same account", fixed.ID, source.ID},
		{"unknown target", fixed.ID, "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ledger.Accounts.MigrateFixedPocket(ctx, testUser, tt.pocketID, tt.targetID)
			assert.Equal(t, domain.KindValidation, kindOf(err))
		})
	}

	n, err := h.ledger.Accounts.MigrateFixedPocket(ctx, testUser, fixed.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	moved, err := h.store.GetPocket(ctx, testUser, fixed.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, moved.AccountID)
	assert.Equal(t, 420.0, moved.Balance)
	assert.Equal(t, 420.0, h.subPocketBalance(t, rent.ID))

	movements, err := h.ledger.Movements.ListPocketMovements(ctx, testUser, fixed.ID)
	require.NoError(t, err)
	for _, m := range movements {
		assert.Equal(t, target.ID, m.AccountID)
	}

	oldAcc, err := h.ledger.Accounts.GetAccount(ctx, testUser, source.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, oldAcc.Balance)
	newAcc, err := h.ledger.Accounts.GetAccount(ctx, testUser, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 420.0, newAcc.Balance)

	groceries := h.pocket(t, target.ID, "Fun", domain.PocketTypeNormal)
	_, err = h.ledger.Accounts.MigrateFixedPocket(ctx, testUser, groceries.ID, source.ID)
	assert.Equal(t, domain.KindValidation, kindOf(err), "only fixed pockets migrate")
}
