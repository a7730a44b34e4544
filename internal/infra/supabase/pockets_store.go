package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
)

// ============================================================
// Pockets & sub-pockets
// ============================================================

func (c *Client) ListPockets(ctx context.Context, userID string) ([]domain.Pocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPockets")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&order=display_order.asc", tablePockets, eq(userID))
	var rows []domain.Pocket
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListPocketsByAccount(ctx context.Context, userID, accountID string) ([]domain.Pocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPocketsByAccount")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&account_id=%s&order=display_order.asc", tablePockets, eq(userID), eq(accountID))
	var rows []domain.Pocket
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetPocket(ctx context.Context, userID, pocketID string) (*domain.Pocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s&limit=1", tablePockets, eq(userID), eq(pocketID))
	var rows []domain.Pocket
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "pocket", ID: pocketID}
	}
	return &rows[0], nil
}

func (c *Client) CreatePocket(ctx context.Context, pocket *domain.Pocket) (*domain.Pocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreatePocket")
	defer span.End()

	body, err := c.doPost(ctx, tablePockets, map[string]any{
		"id":            pocket.ID,
		"user_id":       pocket.UserID,
		"account_id":    pocket.AccountID,
		"name":          pocket.Name,
		"type":          pocket.Type,
		"balance":       pocket.Balance,
		"currency":      pocket.Currency,
		"display_order": pocket.DisplayOrder,
	}, preferRepresentation)
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.Pocket](body, tablePockets)
}

func (c *Client) UpdatePocket(ctx context.Context, userID, pocketID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdatePocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tablePockets, eq(userID), eq(pocketID))
	_, err := c.doPatch(ctx, path, updates, preferMinimal)
	return err
}

func (c *Client) DeletePocket(ctx context.Context, userID, pocketID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeletePocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tablePockets, eq(userID), eq(pocketID))
	_, err := c.doDelete(ctx, path)
	return err
}

func (c *Client) ListSubPockets(ctx context.Context, userID string) ([]domain.SubPocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSubPockets")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&order=display_order.asc", tableSubPockets, eq(userID))
	var rows []domain.SubPocket
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListSubPocketsByPocket(ctx context.Context, userID, pocketID string) ([]domain.SubPocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSubPocketsByPocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&pocket_id=%s&order=display_order.asc", tableSubPockets, eq(userID), eq(pocketID))
	var rows []domain.SubPocket
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetSubPocket(ctx context.Context, userID, subPocketID string) (*domain.SubPocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSubPocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s&limit=1", tableSubPockets, eq(userID), eq(subPocketID))
	var rows []domain.SubPocket
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "sub_pocket", ID: subPocketID}
	}
	return &rows[0], nil
}

func (c *Client) CreateSubPocket(ctx context.Context, sp *domain.SubPocket) (*domain.SubPocket, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateSubPocket")
	defer span.End()

	row := map[string]any{
		"id":                 sp.ID,
		"user_id":            sp.UserID,
		"pocket_id":          sp.PocketID,
		"name":               sp.Name,
		"value_total":        sp.ValueTotal,
		"periodicity_months": sp.PeriodicityMonths,
		"balance":            sp.Balance,
		"enabled":            sp.Enabled,
		"display_order":      sp.DisplayOrder,
	}
	if sp.GroupID != "" {
		row["group_id"] = sp.GroupID
	}

	body, err := c.doPost(ctx, tableSubPockets, row, preferRepresentation)
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.SubPocket](body, tableSubPockets)
}

func (c *Client) UpdateSubPocket(ctx context.Context, userID, subPocketID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateSubPocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tableSubPockets, eq(userID), eq(subPocketID))
	_, err := c.doPatch(ctx, path, updates, preferMinimal)
	return err
}

func (c *Client) DeleteSubPocket(ctx context.Context, userID, subPocketID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteSubPocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tableSubPockets, eq(userID), eq(subPocketID))
	_, err := c.doDelete(ctx, path)
	return err
}
