package service

import (
	"context"
	"math"
	"strings"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var scheduleTracer = otel.Tracer("service/subpockets")

// ============================================================
// Schedule calculator: pure functions
// ============================================================

// MonthlyContribution is ValueTotal / PeriodicityMonths, or 0 for a
// non-positive periodicity.
func MonthlyContribution(sp *domain.SubPocket) float64 {
	if sp.PeriodicityMonths <= 0 {
		return 0
	}
	return decimal.NewFromFloat(sp.ValueTotal).
		Div(decimal.NewFromInt(int64(sp.PeriodicityMonths))).
		InexactFloat64()
}

// ProgressRatio is Balance / ValueTotal, unclamped; 0 for a non-positive
// target.
func ProgressRatio(sp *domain.SubPocket) float64 {
	if sp.ValueTotal <= 0 {
		return 0
	}
	return decimal.NewFromFloat(sp.Balance).
		Div(decimal.NewFromFloat(sp.ValueTotal)).
		InexactFloat64()
}

// NextPaymentDue is what should be contributed this period:
//   - a negative balance is caught up on top of the monthly share
//   - the final partial period never overshoots the target
//   - otherwise the monthly share
func NextPaymentDue(sp *domain.SubPocket) float64 {
	monthly := decimal.NewFromFloat(MonthlyContribution(sp))
	balance := decimal.NewFromFloat(sp.Balance)
	remaining := decimal.NewFromFloat(sp.ValueTotal).Sub(balance)

	switch {
	case balance.IsNegative():
		return monthly.Add(balance.Abs()).InexactFloat64()
	case remaining.LessThan(monthly):
		return remaining.InexactFloat64()
	default:
		return monthly.InexactFloat64()
	}
}

// TotalMonthlyFixedExpenses sums the monthly contribution of the enabled
// sub-pockets. Disabled ones are left out of planning entirely.
func TotalMonthlyFixedExpenses(subPockets []domain.SubPocket) float64 {
	total := decimal.Zero
	for i := range subPockets {
		if !subPockets[i].Enabled {
			continue
		}
		total = total.Add(decimal.NewFromFloat(MonthlyContribution(&subPockets[i])))
	}
	return total.InexactFloat64()
}

// ValidateSubPocketName rejects an empty name or one that collides with
// another sub-pocket of the same pocket after trimming and case-folding.
// excludeID is the sub-pocket being renamed, if any.
func ValidateSubPocketName(name string, siblings []domain.SubPocket, excludeID string) error {
	if strings.TrimSpace(name) == "" {
		return &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	for _, sp := range siblings {
		if sp.ID == excludeID {
			continue
		}
		if sameName(sp.Name, name) {
			return &domain.ErrValidation{Field: "name", Message: "a sub-pocket named " + strings.TrimSpace(sp.Name) + " already exists"}
		}
	}
	return nil
}

// Schedule composes the schedule numbers of a sub-pocket for display.
func Schedule(sp domain.SubPocket) domain.SubPocketSchedule {
	return domain.SubPocketSchedule{
		SubPocket:           sp,
		MonthlyContribution: MonthlyContribution(&sp),
		Progress:            math.Max(0, math.Min(1, ProgressRatio(&sp))),
		NextPaymentDue:      NextPaymentDue(&sp),
		Underfunded:         sp.Balance < 0,
	}
}

// FixedExpenses builds the fixed-expense view of a pocket.
func FixedExpenses(pocket domain.Pocket, subPockets []domain.SubPocket) *domain.FixedExpensesView {
	view := &domain.FixedExpensesView{
		Pocket:       pocket,
		SubPockets:   make([]domain.SubPocketSchedule, 0, len(subPockets)),
		TotalMonthly: TotalMonthlyFixedExpenses(subPockets),
	}
	next := decimal.Zero
	for _, sp := range subPockets {
		sched := Schedule(sp)
		view.SubPockets = append(view.SubPockets, sched)
		if !sp.Enabled {
			continue
		}
		next = next.Add(decimal.NewFromFloat(sched.NextPaymentDue))
		if sched.Underfunded {
			view.UnderfundedCount++
		}
	}
	view.TotalNextPayment = next.InexactFloat64()
	return view
}

// ============================================================
// SubPocketService
// ============================================================

// SubPocketService manages the sub-pockets of fixed pockets.
type SubPocketService struct {
	store  port.LedgerStore
	engine *BalanceEngine
	logger *zap.Logger
	newID  func() string
}

// NewSubPocketService creates a sub-pocket service.
func NewSubPocketService(store port.LedgerStore, engine *BalanceEngine, logger *zap.Logger, opts ...Option) *SubPocketService {
	o := buildOptions(opts)
	return &SubPocketService{store: store, engine: engine, logger: logger, newID: o.newID}
}

func validateSchedule(valueTotal float64, periodicity int) error {
	if math.IsNaN(valueTotal) || math.IsInf(valueTotal, 0) || valueTotal <= 0 {
		return &domain.ErrValidation{Field: "value_total", Message: "value total must be positive"}
	}
	if periodicity < 1 {
		return &domain.ErrValidation{Field: "periodicity_months", Message: "periodicity must be at least one month"}
	}
	return nil
}

// CreateSubPocket adds an enabled sub-pocket with a zero balance.
func (s *SubPocketService) CreateSubPocket(ctx context.Context, userID string, req *domain.CreateSubPocketRequest) (*domain.SubPocket, error) {
	ctx, span := scheduleTracer.Start(ctx, "SubPocketService.CreateSubPocket")
	defer span.End()
	span.SetAttributes(attribute.String("pocket.id", req.PocketID))

	if err := validateSchedule(req.ValueTotal, req.PeriodicityMonths); err != nil {
		return nil, err
	}

	pocket, err := s.store.GetPocket(ctx, userID, req.PocketID)
	if err != nil {
		return nil, asValidation(err, "pocket_id", "pocket not found")
	}
	if !pocket.IsFixed() {
		return nil, &domain.ErrValidation{Field: "pocket_id", Message: "sub-pockets belong to fixed pockets only"}
	}

	siblings, err := s.store.ListSubPocketsByPocket(ctx, userID, pocket.ID)
	if err != nil {
		return nil, err
	}
	if err := ValidateSubPocketName(req.Name, siblings, ""); err != nil {
		return nil, err
	}

	sp, err := s.store.CreateSubPocket(ctx, &domain.SubPocket{
		ID:                s.newID(),
		UserID:            userID,
		PocketID:          pocket.ID,
		Name:              strings.TrimSpace(req.Name),
		ValueTotal:        req.ValueTotal,
		PeriodicityMonths: req.PeriodicityMonths,
		Enabled:           true,
		GroupID:           req.GroupID,
		DisplayOrder:      len(siblings),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sub-pocket created",
		zap.String("sub_pocket_id", sp.ID),
		zap.String("pocket_id", pocket.ID),
	)
	return sp, nil
}

// UpdateSubPocket applies a partial update. Balance is never set directly.
func (s *SubPocketService) UpdateSubPocket(ctx context.Context, userID, subPocketID string, upd *domain.SubPocketUpdate) (*domain.SubPocket, error) {
	ctx, span := scheduleTracer.Start(ctx, "SubPocketService.UpdateSubPocket")
	defer span.End()
	span.SetAttributes(attribute.String("sub_pocket.id", subPocketID))

	sp, err := s.store.GetSubPocket(ctx, userID, subPocketID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if upd.Name != nil {
		siblings, err := s.store.ListSubPocketsByPocket(ctx, userID, sp.PocketID)
		if err != nil {
			return nil, err
		}
		if err := ValidateSubPocketName(*upd.Name, siblings, sp.ID); err != nil {
			return nil, err
		}
		sp.Name = strings.TrimSpace(*upd.Name)
		updates["name"] = sp.Name
	}
	if upd.ValueTotal != nil {
		sp.ValueTotal = *upd.ValueTotal
		updates["value_total"] = sp.ValueTotal
	}
	if upd.PeriodicityMonths != nil {
		sp.PeriodicityMonths = *upd.PeriodicityMonths
		updates["periodicity_months"] = sp.PeriodicityMonths
	}
	if err := validateSchedule(sp.ValueTotal, sp.PeriodicityMonths); err != nil {
		return nil, err
	}
	if upd.Enabled != nil {
		sp.Enabled = *upd.Enabled
		updates["enabled"] = sp.Enabled
	}
	if upd.GroupID != nil {
		sp.GroupID = *upd.GroupID
		if sp.GroupID == "" {
			updates["group_id"] = nil
		} else {
			updates["group_id"] = sp.GroupID
		}
	}

	if len(updates) == 0 {
		return sp, nil
	}
	if err := s.store.UpdateSubPocket(ctx, userID, sp.ID, updates); err != nil {
		return nil, err
	}
	return sp, nil
}

// ToggleSubPocket flips the enabled flag.
func (s *SubPocketService) ToggleSubPocket(ctx context.Context, userID, subPocketID string) (*domain.SubPocket, error) {
	ctx, span := scheduleTracer.Start(ctx, "SubPocketService.ToggleSubPocket")
	defer span.End()

	sp, err := s.store.GetSubPocket(ctx, userID, subPocketID)
	if err != nil {
		return nil, err
	}
	sp.Enabled = !sp.Enabled
	if err := s.store.UpdateSubPocket(ctx, userID, sp.ID, map[string]any{"enabled": sp.Enabled}); err != nil {
		return nil, err
	}
	s.logger.Info("sub-pocket toggled",
		zap.String("sub_pocket_id", sp.ID),
		zap.Bool("enabled", sp.Enabled),
	)
	return sp, nil
}

// DeleteSubPocket removes the sub-pocket and its movements, then re-derives
// the owning pocket's balance. Returns the number of movements deleted.
func (s *SubPocketService) DeleteSubPocket(ctx context.Context, userID, subPocketID string) (int, error) {
	ctx, span := scheduleTracer.Start(ctx, "SubPocketService.DeleteSubPocket")
	defer span.End()

	sp, err := s.store.GetSubPocket(ctx, userID, subPocketID)
	if err != nil {
		return 0, err
	}
	pocket, err := s.store.GetPocket(ctx, userID, sp.PocketID)
	if err != nil {
		return 0, err
	}

	n, err := s.store.DeleteMovementsBySubPocket(ctx, userID, sp.ID)
	if err != nil {
		return 0, err
	}
	if err := s.store.DeleteSubPocket(ctx, userID, sp.ID); err != nil {
		return 0, err
	}
	if err := s.engine.SyncFixedPocketBalance(ctx, userID, pocket.ID); err != nil {
		return 0, err
	}
	if err := s.engine.SyncInvestmentAccounts(ctx, userID, pocket.AccountID); err != nil {
		return 0, err
	}

	s.logger.Info("sub-pocket deleted",
		zap.String("sub_pocket_id", sp.ID),
		zap.Int("movements_deleted", n),
	)
	return n, nil
}

// ListSubPockets returns the schedules of a pocket's sub-pockets.
func (s *SubPocketService) ListSubPockets(ctx context.Context, userID, pocketID string) ([]domain.SubPocketSchedule, error) {
	ctx, span := scheduleTracer.Start(ctx, "SubPocketService.ListSubPockets")
	defer span.End()

	subPockets, err := s.store.ListSubPocketsByPocket(ctx, userID, pocketID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SubPocketSchedule, 0, len(subPockets))
	for _, sp := range subPockets {
		out = append(out, Schedule(sp))
	}
	return out, nil
}

// TotalMonthlyFixedExpenses returns the planned monthly total of a pocket.
func (s *SubPocketService) TotalMonthlyFixedExpenses(ctx context.Context, userID, pocketID string) (float64, error) {
	ctx, span := scheduleTracer.Start(ctx, "SubPocketService.TotalMonthlyFixedExpenses")
	defer span.End()

	subPockets, err := s.store.ListSubPocketsByPocket(ctx, userID, pocketID)
	if err != nil {
		return 0, err
	}
	return TotalMonthlyFixedExpenses(subPockets), nil
}

// NextPaymentDue returns the next contribution due for a sub-pocket.
func (s *SubPocketService) NextPaymentDue(ctx context.Context, userID, subPocketID string) (float64, error) {
	ctx, span := scheduleTracer.Start(ctx, "SubPocketService.NextPaymentDue")
	defer span.End()

	sp, err := s.store.GetSubPocket(ctx, userID, subPocketID)
	if err != nil {
		return 0, err
	}
	return NextPaymentDue(sp), nil
}
