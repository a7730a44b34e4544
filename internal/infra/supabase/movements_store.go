package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Movements store: targeted single-row and bulk operations
// ============================================================

// movementRow maps the movements table; empty optional references are NULL.
type movementRow struct {
	ID                      string              `json:"id"`
	UserID                  string              `json:"user_id"`
	Type                    domain.MovementType `json:"type"`
	AccountID               string              `json:"account_id"`
	PocketID                string              `json:"pocket_id"`
	SubPocketID             *string             `json:"sub_pocket_id"`
	Amount                  float64             `json:"amount"`
	Notes                   *string             `json:"notes"`
	DisplayedDate           string              `json:"displayed_date"`
	CreatedAt               string              `json:"created_at"`
	IsPending               bool                `json:"is_pending"`
	IsOrphaned              bool                `json:"is_orphaned"`
	OrphanedAccountName     *string             `json:"orphaned_account_name"`
	OrphanedAccountCurrency *string             `json:"orphaned_account_currency"`
	OrphanedPocketName      *string             `json:"orphaned_pocket_name"`
	OrphanedSubPocketName   *string             `json:"orphaned_sub_pocket_name"`
}

func toMovementRow(m *domain.Movement) movementRow {
	return movementRow{
		ID:                      m.ID,
		UserID:                  m.UserID,
		Type:                    m.Type,
		AccountID:               m.AccountID,
		PocketID:                m.PocketID,
		SubPocketID:             nullable(m.SubPocketID),
		Amount:                  m.Amount,
		Notes:                   nullable(m.Notes),
		DisplayedDate:           m.DisplayedDate.UTC().Format(time.RFC3339Nano),
		CreatedAt:               m.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsPending:               m.IsPending,
		IsOrphaned:              m.IsOrphaned,
		OrphanedAccountName:     nullable(m.OrphanedAccountName),
		OrphanedAccountCurrency: nullable(m.OrphanedAccountCurrency),
		OrphanedPocketName:      nullable(m.OrphanedPocketName),
		OrphanedSubPocketName:   nullable(m.OrphanedSubPocketName),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *Client) listMovements(ctx context.Context, filter string) ([]domain.Movement, error) {
	path := fmt.Sprintf("%s?%s&order=displayed_date.desc,created_at.desc", tableMovements, filter)
	var rows []domain.Movement
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListMovements(ctx context.Context, userID string) ([]domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMovements")
	defer span.End()

	return c.listMovements(ctx, "user_id="+eq(userID))
}

func (c *Client) ListMovementsByAccount(ctx context.Context, userID, accountID string) ([]domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMovementsByAccount")
	defer span.End()

	return c.listMovements(ctx, fmt.Sprintf("user_id=%s&account_id=%s", eq(userID), eq(accountID)))
}

func (c *Client) ListMovementsByPocket(ctx context.Context, userID, pocketID string) ([]domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMovementsByPocket")
	defer span.End()

	return c.listMovements(ctx, fmt.Sprintf("user_id=%s&pocket_id=%s", eq(userID), eq(pocketID)))
}

func (c *Client) ListMovementsBySubPocket(ctx context.Context, userID, subPocketID string) ([]domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMovementsBySubPocket")
	defer span.End()

	return c.listMovements(ctx, fmt.Sprintf("user_id=%s&sub_pocket_id=%s", eq(userID), eq(subPocketID)))
}

func (c *Client) ListMovementsByIDs(ctx context.Context, userID string, ids []string) ([]domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMovementsByIDs")
	defer span.End()
	span.SetAttributes(attribute.Int("movements.count", len(ids)))

	if len(ids) == 0 {
		return []domain.Movement{}, nil
	}
	return c.listMovements(ctx, fmt.Sprintf("user_id=%s&id=%s", eq(userID), in(ids)))
}

func (c *Client) ListOrphanedMovements(ctx context.Context, userID string) ([]domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOrphanedMovements")
	defer span.End()

	return c.listMovements(ctx, fmt.Sprintf("user_id=%s&is_orphaned=is.true", eq(userID)))
}

func (c *Client) GetMovement(ctx context.Context, userID, movementID string) (*domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetMovement")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s&limit=1", tableMovements, eq(userID), eq(movementID))
	var rows []domain.Movement
	if err := c.getRows(ctx, path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "movement", ID: movementID}
	}
	return &rows[0], nil
}

func (c *Client) CreateMovement(ctx context.Context, m *domain.Movement) (*domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMovement")
	defer span.End()

	body, err := c.doPost(ctx, tableMovements, toMovementRow(m), preferRepresentation)
	if err != nil {
		return nil, err
	}
	return decodeFirst[domain.Movement](body, tableMovements)
}

func (c *Client) UpdateMovement(ctx context.Context, userID, movementID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateMovement")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tableMovements, eq(userID), eq(movementID))
	_, err := c.doPatch(ctx, path, updates, preferMinimal)
	return err
}

// UpsertMovements writes full rows, merging on the primary key.
func (c *Client) UpsertMovements(ctx context.Context, movements []domain.Movement) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertMovements")
	defer span.End()
	span.SetAttributes(attribute.Int("movements.count", len(movements)))

	if len(movements) == 0 {
		return nil
	}
	rows := make([]movementRow, len(movements))
	for i := range movements {
		rows[i] = toMovementRow(&movements[i])
	}

	_, err := c.doPost(ctx, tableMovements+"?on_conflict=id", rows, preferUpsert)
	return err
}

func (c *Client) DeleteMovement(ctx context.Context, userID, movementID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteMovement")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&id=%s", tableMovements, eq(userID), eq(movementID))
	_, err := c.doDelete(ctx, path)
	return err
}

func (c *Client) deleteMovementsWhere(ctx context.Context, userID, column, value string) (int, error) {
	path := fmt.Sprintf("%s?user_id=%s&%s=%s", tableMovements, eq(userID), column, eq(value))
	body, err := c.doDelete(ctx, path)
	if err != nil {
		return 0, err
	}
	n, err := countRows(body)
	if err != nil {
		return 0, err
	}

	c.logger.Info("supabase: movements deleted",
		zap.String("by", column),
		zap.String("value", value),
		zap.Int("count", n),
	)
	return n, nil
}

func (c *Client) DeleteMovementsByAccount(ctx context.Context, userID, accountID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteMovementsByAccount")
	defer span.End()

	return c.deleteMovementsWhere(ctx, userID, "account_id", accountID)
}

func (c *Client) DeleteMovementsByPocket(ctx context.Context, userID, pocketID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteMovementsByPocket")
	defer span.End()

	return c.deleteMovementsWhere(ctx, userID, "pocket_id", pocketID)
}

func (c *Client) DeleteMovementsBySubPocket(ctx context.Context, userID, subPocketID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteMovementsBySubPocket")
	defer span.End()

	return c.deleteMovementsWhere(ctx, userID, "sub_pocket_id", subPocketID)
}

func (c *Client) UpdateMovementsAccountForPocket(ctx context.Context, userID, pocketID, newAccountID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateMovementsAccountForPocket")
	defer span.End()

	path := fmt.Sprintf("%s?user_id=%s&pocket_id=%s&select=id", tableMovements, eq(userID), eq(pocketID))
	body, err := c.doPatch(ctx, path, map[string]any{"account_id": newAccountID}, preferRepresentation)
	if err != nil {
		return 0, err
	}
	return countRows(body)
}
