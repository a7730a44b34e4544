package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
)

// ============================================================
// Accounts: CRUD via PostgREST
// ============================================================

func (c *Client) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAccounts")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&order=display_order.asc,created_at.asc", tableAccounts, eq(userID))
	var rows []domain.Account
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAccount")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s&limit=1", tableAccounts, eq(userID), eq(accountID))
	var rows []domain.Account
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	return &rows[0], nil
}

func (c *Client) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAccount")
	defer span.End()

	row := map[string]any{
		"id":              account.ID,
		"user_id":         account.UserID,
		"name":            account.Name,
		"color":           account.Color,
		"currency":        account.Currency,
		"type":            account.Type,
		"monto_invertido": account.MontoInvertido,
		"shares":          account.Shares,
		"display_order":   account.DisplayOrder,
	}
	if account.StockSymbol != "" {
		row["stock_symbol"] = account.StockSymbol
	}

	body, err := c.doPost(ctx, tableAccounts, row, preferRepresentation)
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.Account](body, tableAccounts)
}

func (c *Client) UpdateAccount(ctx context.Context, userID, accountID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateAccount")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tableAccounts, eq(userID), eq(accountID))
	_, err := c.doPatch(ctx, path, updates, preferMinimal)
	return err
}

func (c *Client) DeleteAccount(ctx context.Context, userID, accountID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteAccount")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tableAccounts, eq(userID), eq(accountID))
	_, err := c.doDelete(ctx, path)
	return err
}
