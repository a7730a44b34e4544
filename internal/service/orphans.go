package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Orphaning: movements outlive a deleted account or pocket
// ============================================================

// MarkMovementsAsOrphaned flags every movement referencing the account or
// pocket id as orphaned and snapshots the names about to vanish. It must run
// before the record itself is deleted. Orphaned movements carry no balance
// effect, so nothing is reverted. Returns the number of movements orphaned.
func (s *MovementService) MarkMovementsAsOrphaned(ctx context.Context, userID, id string, kind domain.OrphanKind) (int, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.MarkMovementsAsOrphaned")
	defer span.End()
	span.SetAttributes(
		attribute.String("orphan.kind", string(kind)),
		attribute.String("orphan.id", id),
	)

	var (
		account   *domain.Account
		pockets   []domain.Pocket
		movements []domain.Movement
		err       error
	)

	switch kind {
	case domain.OrphanByAccount:
		if account, err = s.store.GetAccount(ctx, userID, id); err != nil {
			return 0, err
		}
		if pockets, err = s.store.ListPocketsByAccount(ctx, userID, id); err != nil {
			return 0, err
		}
		if movements, err = s.store.ListMovementsByAccount(ctx, userID, id); err != nil {
			return 0, err
		}
	case domain.OrphanByPocket:
		pocket, err := s.store.GetPocket(ctx, userID, id)
		if err != nil {
			return 0, err
		}
		if account, err = s.store.GetAccount(ctx, userID, pocket.AccountID); err != nil {
			return 0, err
		}
		pockets = []domain.Pocket{*pocket}
		if movements, err = s.store.ListMovementsByPocket(ctx, userID, id); err != nil {
			return 0, err
		}
	default:
		return 0, &domain.ErrValidation{Field: "kind", Message: "orphan kind must be account or pocket"}
	}

	pocketNames := make(map[string]string, len(pockets))
	subPocketNames := make(map[string]string)
	for _, p := range pockets {
		pocketNames[p.ID] = p.Name
		if !p.IsFixed() {
			continue
		}
		subPockets, err := s.store.ListSubPocketsByPocket(ctx, userID, p.ID)
		if err != nil {
			return 0, err
		}
		for _, sp := range subPockets {
			subPocketNames[sp.ID] = sp.Name
		}
	}

	orphaned := make([]domain.Movement, 0, len(movements))
	for _, m := range movements {
		if m.IsOrphaned {
			continue
		}
		m.IsOrphaned = true
		m.OrphanedAccountName = account.Name
		m.OrphanedAccountCurrency = account.Currency
		m.OrphanedPocketName = pocketNames[m.PocketID]
		m.OrphanedSubPocketName = subPocketNames[m.SubPocketID]
		orphaned = append(orphaned, m)
	}

	if err := s.store.UpsertMovements(ctx, orphaned); err != nil {
		s.logger.Error("failed to orphan movements",
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.Error(err),
		)
		return 0, err
	}

	s.logger.Info("movements orphaned",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.Int("count", len(orphaned)),
	)
	return len(orphaned), nil
}

// FindMatchingOrphanedMovements returns the orphaned movements whose
// snapshot matches exactly (case-sensitive). An empty pocketName matches
// any pocket.
func (s *MovementService) FindMatchingOrphanedMovements(ctx context.Context, userID, accountName, accountCurrency, pocketName string) ([]domain.Movement, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.FindMatchingOrphanedMovements")
	defer span.End()

	orphans, err := s.store.ListOrphanedMovements(ctx, userID)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.Movement, 0)
	for _, m := range orphans {
		if !m.IsOrphaned {
			continue
		}
		if m.OrphanedAccountName != accountName || m.OrphanedAccountCurrency != accountCurrency {
			continue
		}
		if pocketName != "" && m.OrphanedPocketName != pocketName {
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// RestoreOrphanedMovements rebinds orphaned movements to a live account and
// pocket and clears their orphan flag and snapshot. Restoring into a fixed
// pocket re-binds each movement to the sub-pocket carrying its snapshotted
// name; a movement with no such sub-pocket rejects the whole restore. No
// balance is adjusted: callers follow up with RecalculateBalancesForPocket.
func (s *MovementService) RestoreOrphanedMovements(ctx context.Context, userID string, req *domain.RestoreOrphansRequest) (int, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.RestoreOrphanedMovements")
	defer span.End()
	span.SetAttributes(attribute.Int("movements.count", len(req.MovementIDs)))

	if len(req.MovementIDs) == 0 {
		return 0, &domain.ErrValidation{Field: "movement_ids", Message: "at least one movement is required"}
	}
	if _, err := s.store.GetAccount(ctx, userID, req.NewAccountID); err != nil {
		return 0, asValidation(err, "new_account_id", "account not found")
	}
	pocket, err := s.store.GetPocket(ctx, userID, req.NewPocketID)
	if err != nil {
		return 0, asValidation(err, "new_pocket_id", "pocket not found")
	}
	if pocket.AccountID != req.NewAccountID {
		return 0, &domain.ErrValidation{Field: "new_pocket_id", Message: "pocket does not belong to account"}
	}

	movements, err := s.store.ListMovementsByIDs(ctx, userID, req.MovementIDs)
	if err != nil {
		return 0, err
	}
	found := make(map[string]bool, len(movements))
	for _, m := range movements {
		found[m.ID] = true
	}
	for _, id := range req.MovementIDs {
		if !found[id] {
			return 0, &domain.ErrNotFound{Resource: "movement", ID: id}
		}
	}

	subPockets, err := s.store.ListSubPocketsByPocket(ctx, userID, pocket.ID)
	if err != nil {
		return 0, err
	}

	for i := range movements {
		m := &movements[i]
		if !m.IsOrphaned {
			return 0, &domain.ErrInvalidState{Resource: "movement", ID: m.ID, State: "active", Operation: "restore"}
		}
		subPocketID := ""
		if pocket.IsFixed() {
			subPocketID = matchSubPocket(subPockets, m)
			if subPocketID == "" {
				return 0, &domain.ErrValidation{
					Field:   "new_pocket_id",
					Message: fmt.Sprintf("movement %s: no sub-pocket named %q in pocket", m.ID, m.OrphanedSubPocketName),
				}
			}
		}
		m.AccountID = req.NewAccountID
		m.PocketID = pocket.ID
		m.SubPocketID = subPocketID
		m.IsOrphaned = false
		m.OrphanedAccountName = ""
		m.OrphanedAccountCurrency = ""
		m.OrphanedPocketName = ""
		m.OrphanedSubPocketName = ""
	}

	if err := s.store.UpsertMovements(ctx, movements); err != nil {
		return 0, err
	}

	s.logger.Info("orphaned movements restored",
		zap.String("account_id", req.NewAccountID),
		zap.String("pocket_id", pocket.ID),
		zap.Int("count", len(movements)),
	)
	return len(movements), nil
}

// matchSubPocket returns the sub-pocket a restored movement lands in: its
// old sub-pocket if that still lives in the pocket, otherwise the one
// named like the snapshot.
func matchSubPocket(subPockets []domain.SubPocket, m *domain.Movement) string {
	for _, sp := range subPockets {
		if m.SubPocketID != "" && sp.ID == m.SubPocketID {
			return sp.ID
		}
	}
	if m.OrphanedSubPocketName == "" {
		return ""
	}
	for _, sp := range subPockets {
		if sameName(sp.Name, m.OrphanedSubPocketName) {
			return sp.ID
		}
	}
	return ""
}

// RecalculateBalancesForPocket derives the pocket's balance from scratch
// as Σ income − Σ expense over its applied movements. A fixed pocket is
// recomputed per sub-pocket and then summed.
func (s *MovementService) RecalculateBalancesForPocket(ctx context.Context, userID, pocketID string) (*domain.Pocket, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.RecalculateBalancesForPocket")
	defer span.End()
	span.SetAttributes(attribute.String("pocket.id", pocketID))

	pocket, err := s.store.GetPocket(ctx, userID, pocketID)
	if err != nil {
		return nil, err
	}
	movements, err := s.store.ListMovementsByPocket(ctx, userID, pocketID)
	if err != nil {
		return nil, err
	}

	if pocket.IsFixed() {
		subPockets, err := s.store.ListSubPocketsByPocket(ctx, userID, pocketID)
		if err != nil {
			return nil, err
		}
		bySubPocket := make(map[string][]domain.Movement, len(subPockets))
		for _, m := range movements {
			bySubPocket[m.SubPocketID] = append(bySubPocket[m.SubPocketID], m)
		}
		for _, sp := range subPockets {
			balance := netBalance(bySubPocket[sp.ID])
			if err := s.store.UpdateSubPocket(ctx, userID, sp.ID, map[string]any{"balance": balance}); err != nil {
				return nil, err
			}
		}
		if err := s.engine.SyncFixedPocketBalance(ctx, userID, pocketID); err != nil {
			return nil, err
		}
	} else {
		balance := netBalance(movements)
		if err := s.store.UpdatePocket(ctx, userID, pocketID, map[string]any{"balance": balance}); err != nil {
			return nil, err
		}
	}

	if err := s.engine.SyncInvestmentAccounts(ctx, userID, pocket.AccountID); err != nil {
		return nil, err
	}

	s.logger.Info("pocket balance recalculated", zap.String("pocket_id", pocketID))
	return s.store.GetPocket(ctx, userID, pocketID)
}

// ============================================================
// Cascade and migration helpers
// ============================================================

// DeleteMovementsByAccount hard-deletes every movement of the account.
// Balances are left alone: the account is going away.
func (s *MovementService) DeleteMovementsByAccount(ctx context.Context, userID, accountID string) (int, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.DeleteMovementsByAccount")
	defer span.End()

	n, err := s.store.DeleteMovementsByAccount(ctx, userID, accountID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("account movements deleted", zap.String("account_id", accountID), zap.Int("count", n))
	return n, nil
}

// DeleteMovementsByPocket hard-deletes every movement of the pocket.
func (s *MovementService) DeleteMovementsByPocket(ctx context.Context, userID, pocketID string) (int, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.DeleteMovementsByPocket")
	defer span.End()

	n, err := s.store.DeleteMovementsByPocket(ctx, userID, pocketID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("pocket movements deleted", zap.String("pocket_id", pocketID), zap.Int("count", n))
	return n, nil
}

// UpdateMovementsAccountForPocket re-points every movement of a pocket to
// newAccountID. Pocket, sub-pocket and balances are unchanged.
func (s *MovementService) UpdateMovementsAccountForPocket(ctx context.Context, userID, pocketID, newAccountID string) (int, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.UpdateMovementsAccountForPocket")
	defer span.End()

	n, err := s.store.UpdateMovementsAccountForPocket(ctx, userID, pocketID, newAccountID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("pocket movements migrated",
		zap.String("pocket_id", pocketID),
		zap.String("account_id", newAccountID),
		zap.Int("count", n),
	)
	return n, nil
}
