package service

import (
	"context"
	"math"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var movementTracer = otel.Tracer("service/movements")

// MovementService owns the movement lifecycle: create, edit, delete, the
// pending <-> applied transitions, orphaning and restoration.
type MovementService struct {
	store   port.LedgerStore
	engine  *BalanceEngine
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewMovementService creates a movement service.
func NewMovementService(store port.LedgerStore, engine *BalanceEngine, metrics *observability.Metrics, logger *zap.Logger, opts ...Option) *MovementService {
	o := buildOptions(opts)
	return &MovementService{
		store:   store,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		now:     o.now,
		newID:   o.newID,
	}
}

// ============================================================
// Create
// ============================================================

// CreateMovement validates and persists a movement. Unless it is pending,
// its amount is propagated to the target holder.
func (s *MovementService) CreateMovement(ctx context.Context, userID string, req *domain.CreateMovementRequest) (m *domain.Movement, err error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.CreateMovement")
	defer span.End()
	span.SetAttributes(
		attribute.String("movement.type", string(req.Type)),
		attribute.String("account.id", req.AccountID),
		attribute.Bool("movement.pending", req.IsPending),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("create_movement", time.Since(start))
		s.metrics.IncrMovementOp("create", err)
	}()

	if !req.Type.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "unknown movement type"}
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := s.validateTargets(ctx, userID, req.AccountID, req.PocketID, req.SubPocketID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	displayed := now
	if req.DisplayedDate != nil && !req.DisplayedDate.IsZero() {
		displayed = req.DisplayedDate.UTC()
	}

	created, err := s.store.CreateMovement(ctx, &domain.Movement{
		ID:            s.newID(),
		UserID:        userID,
		Type:          req.Type,
		AccountID:     req.AccountID,
		PocketID:      req.PocketID,
		SubPocketID:   req.SubPocketID,
		Amount:        req.Amount,
		Notes:         req.Notes,
		DisplayedDate: displayed,
		CreatedAt:     now,
		IsPending:     req.IsPending,
	})
	if err != nil {
		s.logger.Error("failed to persist movement", zap.Error(err))
		return nil, err
	}

	s.logger.Info("movement created",
		zap.String("movement_id", created.ID),
		zap.String("type", string(created.Type)),
		zap.Float64("amount", created.Amount),
		zap.Bool("pending", created.IsPending),
	)

	if created.IsPending {
		return created, nil
	}
	if err := s.engine.Apply(ctx, userID, created); err != nil {
		s.discardMovement(ctx, userID, created.ID)
		return nil, err
	}
	if err := s.engine.SyncInvestmentAccounts(ctx, userID, created.AccountID); err != nil {
		s.undoBalance(ctx, userID, created, nil)
		s.discardMovement(ctx, userID, created.ID)
		return nil, err
	}
	return created, nil
}

// discardMovement drops a row whose balance effect could not be applied.
func (s *MovementService) discardMovement(ctx context.Context, userID, movementID string) {
	if err := s.store.DeleteMovement(context.WithoutCancel(ctx), userID, movementID); err != nil {
		s.logger.Error("failed to discard movement", zap.String("movement_id", movementID), zap.Error(err))
	}
}

func validateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return &domain.ErrValidation{Field: "amount", Message: "amount must be a positive number"}
	}
	return nil
}

// validateTargets checks that the account, pocket and optional sub-pocket
// exist and nest inside each other. Unknown references are validation
// errors, not lookups that failed.
func (s *MovementService) validateTargets(ctx context.Context, userID, accountID, pocketID, subPocketID string) error {
	if accountID == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "account is required"}
	}
	if pocketID == "" {
		return &domain.ErrValidation{Field: "pocket_id", Message: "pocket is required"}
	}

	if _, err := s.store.GetAccount(ctx, userID, accountID); err != nil {
		return asValidation(err, "account_id", "account not found")
	}

	pocket, err := s.store.GetPocket(ctx, userID, pocketID)
	if err != nil {
		return asValidation(err, "pocket_id", "pocket not found")
	}
	if pocket.AccountID != accountID {
		return &domain.ErrValidation{Field: "pocket_id", Message: "pocket does not belong to account"}
	}

	if subPocketID == "" {
		if pocket.IsFixed() {
			return &domain.ErrValidation{Field: "sub_pocket_id", Message: "movements on a fixed pocket must target a sub-pocket"}
		}
		return nil
	}
	sp, err := s.store.GetSubPocket(ctx, userID, subPocketID)
	if err != nil {
		return asValidation(err, "sub_pocket_id", "sub-pocket not found")
	}
	if sp.PocketID != pocketID {
		return &domain.ErrValidation{Field: "sub_pocket_id", Message: "sub-pocket does not belong to pocket"}
	}
	return nil
}

// asValidation turns a not-found lookup into a validation error and passes
// every other error through.
func asValidation(err error, field, message string) error {
	if domain.Kind(err) == domain.KindNotFound {
		return &domain.ErrValidation{Field: field, Message: message}
	}
	return err
}

// ============================================================
// Update / Delete
// ============================================================

// UpdateMovement merges upd into the movement. An applied movement's old
// effect is always reverted and the merged movement's effect reapplied,
// even when only the notes changed.
func (s *MovementService) UpdateMovement(ctx context.Context, userID, movementID string, upd *domain.MovementUpdate) (m *domain.Movement, err error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.UpdateMovement")
	defer span.End()
	span.SetAttributes(attribute.String("movement.id", movementID))
	defer func() { s.metrics.IncrMovementOp("update", err) }()

	old, err := s.store.GetMovement(ctx, userID, movementID)
	if err != nil {
		return nil, err
	}
	merged := upd.Merge(*old)

	if !merged.Type.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "unknown movement type"}
	}
	if err := validateAmount(merged.Amount); err != nil {
		return nil, err
	}
	if merged.AccountID != old.AccountID || merged.PocketID != old.PocketID || merged.SubPocketID != old.SubPocketID {
		if old.IsOrphaned {
			return nil, &domain.ErrInvalidState{
				Resource: "movement", ID: movementID, State: "orphaned", Operation: "retarget",
			}
		}
		if err := s.validateTargets(ctx, userID, merged.AccountID, merged.PocketID, merged.SubPocketID); err != nil {
			return nil, err
		}
	}

	if old.IsApplied() {
		if err := s.engine.Revert(ctx, userID, old); err != nil {
			return nil, err
		}
	}
	if merged.IsApplied() {
		if err := s.engine.Apply(ctx, userID, &merged); err != nil {
			s.undoBalance(ctx, userID, nil, old)
			return nil, err
		}
	}
	if old.IsApplied() || merged.IsApplied() {
		if err := s.engine.SyncInvestmentAccounts(ctx, userID, old.AccountID, merged.AccountID); err != nil {
			s.undoBalance(ctx, userID, &merged, old)
			return nil, err
		}
	}

	// The row is written last so a failure above leaves it untouched.
	if err := s.store.UpdateMovement(ctx, userID, movementID, movementUpdates(&merged)); err != nil {
		s.logger.Error("failed to persist movement update",
			zap.String("movement_id", movementID),
			zap.Error(err),
		)
		s.undoBalance(ctx, userID, &merged, old)
		return nil, err
	}

	s.logger.Info("movement updated", zap.String("movement_id", movementID))
	return &merged, nil
}

func movementUpdates(m *domain.Movement) map[string]any {
	updates := map[string]any{
		"type":           m.Type,
		"account_id":     m.AccountID,
		"pocket_id":      m.PocketID,
		"sub_pocket_id":  nil,
		"amount":         m.Amount,
		"notes":          nil,
		"displayed_date": m.DisplayedDate.UTC().Format(time.RFC3339Nano),
	}
	if m.SubPocketID != "" {
		updates["sub_pocket_id"] = m.SubPocketID
	}
	if m.Notes != "" {
		updates["notes"] = m.Notes
	}
	return updates
}

// DeleteMovement reverts the movement's effect and removes it permanently.
func (s *MovementService) DeleteMovement(ctx context.Context, userID, movementID string) (err error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.DeleteMovement")
	defer span.End()
	span.SetAttributes(attribute.String("movement.id", movementID))
	defer func() { s.metrics.IncrMovementOp("delete", err) }()

	m, err := s.store.GetMovement(ctx, userID, movementID)
	if err != nil {
		return err
	}

	if m.IsApplied() {
		if err := s.engine.Revert(ctx, userID, m); err != nil {
			return err
		}
		if err := s.engine.SyncInvestmentAccounts(ctx, userID, m.AccountID); err != nil {
			s.undoBalance(ctx, userID, nil, m)
			return err
		}
	}

	if err := s.store.DeleteMovement(ctx, userID, movementID); err != nil {
		s.undoBalance(ctx, userID, nil, m)
		return err
	}
	s.logger.Info("movement deleted", zap.String("movement_id", movementID))
	return nil
}

// undoBalance reverses effects already propagated by an operation whose
// later step failed: applied is reverted and reverted is re-applied, each
// only if it counts toward a balance. Failures are logged; the caller
// returns its original error.
func (s *MovementService) undoBalance(ctx context.Context, userID string, applied, reverted *domain.Movement) {
	ctx = context.WithoutCancel(ctx)
	var accountIDs []string
	if applied != nil && applied.IsApplied() {
		if err := s.engine.Revert(ctx, userID, applied); err != nil {
			s.logger.Error("failed to undo balance effect", zap.String("movement_id", applied.ID), zap.Error(err))
		}
		accountIDs = append(accountIDs, applied.AccountID)
	}
	if reverted != nil && reverted.IsApplied() {
		if err := s.engine.Apply(ctx, userID, reverted); err != nil {
			s.logger.Error("failed to undo balance effect", zap.String("movement_id", reverted.ID), zap.Error(err))
		}
		accountIDs = append(accountIDs, reverted.AccountID)
	}
	if len(accountIDs) == 0 {
		return
	}
	if err := s.engine.SyncInvestmentAccounts(ctx, userID, accountIDs...); err != nil {
		s.logger.Warn("failed to re-sync investment accounts after undo", zap.Error(err))
	}
}

// ============================================================
// Pending <-> applied
// ============================================================

// ApplyPendingMovement flips a pending movement to applied and propagates it.
func (s *MovementService) ApplyPendingMovement(ctx context.Context, userID, movementID string) (m *domain.Movement, err error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.ApplyPendingMovement")
	defer span.End()
	span.SetAttributes(attribute.String("movement.id", movementID))
	defer func() { s.metrics.IncrMovementOp("apply_pending", err) }()

	m, err = s.store.GetMovement(ctx, userID, movementID)
	if err != nil {
		return nil, err
	}
	if m.IsOrphaned {
		return nil, &domain.ErrInvalidState{Resource: "movement", ID: movementID, State: "orphaned", Operation: "apply"}
	}
	if !m.IsPending {
		return nil, &domain.ErrInvalidState{Resource: "movement", ID: movementID, State: "applied", Operation: "apply"}
	}

	applied := *m
	applied.IsPending = false
	if err := s.engine.Apply(ctx, userID, &applied); err != nil {
		return nil, err
	}
	if err := s.engine.SyncInvestmentAccounts(ctx, userID, applied.AccountID); err != nil {
		s.undoBalance(ctx, userID, &applied, nil)
		return nil, err
	}
	if err := s.store.UpdateMovement(ctx, userID, movementID, map[string]any{"is_pending": false}); err != nil {
		s.logger.Error("failed to persist applied movement",
			zap.String("movement_id", movementID),
			zap.Error(err),
		)
		s.undoBalance(ctx, userID, &applied, nil)
		return nil, err
	}
	m = &applied

	s.logger.Info("pending movement applied", zap.String("movement_id", movementID))
	return m, nil
}

// MarkAsPending reverts an applied movement's effect and flags it pending.
func (s *MovementService) MarkAsPending(ctx context.Context, userID, movementID string) (m *domain.Movement, err error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.MarkAsPending")
	defer span.End()
	span.SetAttributes(attribute.String("movement.id", movementID))
	defer func() { s.metrics.IncrMovementOp("mark_pending", err) }()

	m, err = s.store.GetMovement(ctx, userID, movementID)
	if err != nil {
		return nil, err
	}
	if m.IsOrphaned {
		return nil, &domain.ErrInvalidState{Resource: "movement", ID: movementID, State: "orphaned", Operation: "mark as pending"}
	}
	if m.IsPending {
		return nil, &domain.ErrInvalidState{Resource: "movement", ID: movementID, State: "pending", Operation: "mark as pending"}
	}

	if err := s.engine.Revert(ctx, userID, m); err != nil {
		return nil, err
	}
	if err := s.engine.SyncInvestmentAccounts(ctx, userID, m.AccountID); err != nil {
		s.undoBalance(ctx, userID, nil, m)
		return nil, err
	}
	if err := s.store.UpdateMovement(ctx, userID, movementID, map[string]any{"is_pending": true}); err != nil {
		s.logger.Error("failed to persist pending movement",
			zap.String("movement_id", movementID),
			zap.Error(err),
		)
		s.undoBalance(ctx, userID, nil, m)
		return nil, err
	}
	m.IsPending = true

	s.logger.Info("movement marked as pending", zap.String("movement_id", movementID))
	return m, nil
}

// ============================================================
// Reads
// ============================================================

// GetMovement returns a single movement.
func (s *MovementService) GetMovement(ctx context.Context, userID, movementID string) (*domain.Movement, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.GetMovement")
	defer span.End()

	return s.store.GetMovement(ctx, userID, movementID)
}

// ListActiveMovements returns every movement that is not orphaned, newest first.
func (s *MovementService) ListActiveMovements(ctx context.Context, userID string) ([]domain.Movement, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.ListActiveMovements")
	defer span.End()

	all, err := s.store.ListMovements(ctx, userID)
	if err != nil {
		return nil, err
	}
	return activeOnly(all), nil
}

// ListPocketMovements returns the active movements of a pocket.
func (s *MovementService) ListPocketMovements(ctx context.Context, userID, pocketID string) ([]domain.Movement, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.ListPocketMovements")
	defer span.End()

	all, err := s.store.ListMovementsByPocket(ctx, userID, pocketID)
	if err != nil {
		return nil, err
	}
	return activeOnly(all), nil
}

// ListOrphanedMovements returns the movements whose account or pocket is gone.
func (s *MovementService) ListOrphanedMovements(ctx context.Context, userID string) ([]domain.Movement, error) {
	ctx, span := movementTracer.Start(ctx, "MovementService.ListOrphanedMovements")
	defer span.End()

	return s.store.ListOrphanedMovements(ctx, userID)
}

func activeOnly(movements []domain.Movement) []domain.Movement {
	out := make([]domain.Movement, 0, len(movements))
	for _, m := range movements {
		if !m.IsOrphaned {
			out = append(out, m)
		}
	}
	return out
}
