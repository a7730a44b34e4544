package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

// BalanceEngine applies and reverts a movement's monetary effect on the
// pocket or sub-pocket it targets, and keeps investment account aggregates
// in step with their well-known pockets.
//
// Account balances are not touched here: they are derived on read.
type BalanceEngine struct {
	store   port.LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBalanceEngine creates a balance engine over store.
func NewBalanceEngine(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *BalanceEngine {
	return &BalanceEngine{store: store, metrics: metrics, logger: logger}
}

// applyToBalance returns balance moved by amount. There is no floor: a
// negative balance marks an underfunded holder.
func applyToBalance(balance, amount float64, isIncome bool) float64 {
	b := decimal.NewFromFloat(balance)
	a := decimal.NewFromFloat(amount)
	if isIncome {
		return b.Add(a).InexactFloat64()
	}
	return b.Sub(a).InexactFloat64()
}

// Apply adds m's effect to its holder.
func (e *BalanceEngine) Apply(ctx context.Context, userID string, m *domain.Movement) error {
	return e.propagate(ctx, userID, m, m.Type.IsIncome())
}

// Revert removes m's effect from its holder.
func (e *BalanceEngine) Revert(ctx context.Context, userID string, m *domain.Movement) error {
	return e.propagate(ctx, userID, m, !m.Type.IsIncome())
}

func (e *BalanceEngine) propagate(ctx context.Context, userID string, m *domain.Movement, isIncome bool) error {
	ctx, span := ledgerTracer.Start(ctx, "BalanceEngine.propagate")
	defer span.End()
	span.SetAttributes(
		attribute.String("movement.id", m.ID),
		attribute.Bool("income", isIncome),
	)

	if m.SubPocketID != "" {
		sp, err := e.store.GetSubPocket(ctx, userID, m.SubPocketID)
		if err != nil {
			return err
		}
		newBalance := applyToBalance(sp.Balance, m.Amount, isIncome)
		if err := e.store.UpdateSubPocket(ctx, userID, sp.ID, map[string]any{"balance": newBalance}); err != nil {
			return fmt.Errorf("update sub-pocket balance: %w", err)
		}
		e.metrics.IncrPropagation("sub_pocket", isIncome)
		e.logger.Debug("sub-pocket balance updated",
			zap.String("sub_pocket_id", sp.ID),
			zap.Float64("old_balance", sp.Balance),
			zap.Float64("new_balance", newBalance),
		)
		return e.SyncFixedPocketBalance(ctx, userID, sp.PocketID)
	}

	p, err := e.store.GetPocket(ctx, userID, m.PocketID)
	if err != nil {
		return err
	}
	newBalance := applyToBalance(p.Balance, m.Amount, isIncome)
	if err := e.store.UpdatePocket(ctx, userID, p.ID, map[string]any{"balance": newBalance}); err != nil {
		return fmt.Errorf("update pocket balance: %w", err)
	}
	e.metrics.IncrPropagation("pocket", isIncome)
	e.logger.Debug("pocket balance updated",
		zap.String("pocket_id", p.ID),
		zap.Float64("old_balance", p.Balance),
		zap.Float64("new_balance", newBalance),
	)
	return nil
}

// SyncFixedPocketBalance stores Σ sub-pocket balances on the fixed pocket.
func (e *BalanceEngine) SyncFixedPocketBalance(ctx context.Context, userID, pocketID string) error {
	subPockets, err := e.store.ListSubPocketsByPocket(ctx, userID, pocketID)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, sp := range subPockets {
		total = total.Add(decimal.NewFromFloat(sp.Balance))
	}
	return e.store.UpdatePocket(ctx, userID, pocketID, map[string]any{"balance": total.InexactFloat64()})
}

// SyncInvestmentAccounts recomputes MontoInvertido and Shares for every
// investment account among accountIDs. Unknown and non-investment accounts
// are skipped; each account is synced once.
func (e *BalanceEngine) SyncInvestmentAccounts(ctx context.Context, userID string, accountIDs ...string) error {
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		account, err := e.store.GetAccount(ctx, userID, id)
		if err != nil {
			if domain.Kind(err) == domain.KindNotFound {
				continue
			}
			return err
		}
		if !account.IsInvestment() {
			continue
		}
		if err := e.syncInvestmentAccount(ctx, userID, account); err != nil {
			return err
		}
	}
	return nil
}

func (e *BalanceEngine) syncInvestmentAccount(ctx context.Context, userID string, account *domain.Account) error {
	ctx, span := ledgerTracer.Start(ctx, "BalanceEngine.syncInvestmentAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", account.ID))

	invested, shares, err := e.wellKnownBalances(ctx, userID, account.ID)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if invested != nil {
		updates["monto_invertido"] = *invested
	}
	if shares != nil {
		updates["shares"] = *shares
	}
	if len(updates) == 0 {
		e.logger.Warn("investment account has no well-known pockets",
			zap.String("account_id", account.ID),
		)
		return nil
	}

	if err := e.store.UpdateAccount(ctx, userID, account.ID, updates); err != nil {
		return fmt.Errorf("sync investment account: %w", err)
	}
	e.logger.Debug("investment account synced",
		zap.String("account_id", account.ID),
		zap.Any("updates", updates),
	)
	return nil
}

// wellKnownBalances finds the "Invested Money" and "Shares" holders of an
// account among its pockets, then among the sub-pockets of its fixed pockets.
func (e *BalanceEngine) wellKnownBalances(ctx context.Context, userID, accountID string) (invested, shares *float64, err error) {
	pockets, err := e.store.ListPocketsByAccount(ctx, userID, accountID)
	if err != nil {
		return nil, nil, err
	}

	match := func(name string, balance float64) {
		b := balance
		switch {
		case invested == nil && sameName(name, domain.InvestedMoneyPocketName):
			invested = &b
		case shares == nil && sameName(name, domain.SharesPocketName):
			shares = &b
		}
	}

	for _, p := range pockets {
		match(p.Name, p.Balance)
	}
	if invested != nil && shares != nil {
		return invested, shares, nil
	}

	for _, p := range pockets {
		if !p.IsFixed() {
			continue
		}
		subPockets, err := e.store.ListSubPocketsByPocket(ctx, userID, p.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, sp := range subPockets {
			match(sp.Name, sp.Balance)
		}
	}
	return invested, shares, nil
}

// sameName compares names ignoring case and surrounding whitespace.
func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// netBalance is Σ income − Σ expense over the applied movements.
func netBalance(movements []domain.Movement) float64 {
	total := decimal.Zero
	for _, m := range movements {
		if !m.IsApplied() {
			continue
		}
		amount := decimal.NewFromFloat(m.Amount)
		if m.Type.IsIncome() {
			total = total.Add(amount)
		} else {
			total = total.Sub(amount)
		}
	}
	return total.InexactFloat64()
}
