package service

import (
	"context"
	"sort"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var summaryTracer = otel.Tracer("service/summary")

// SummaryService builds the consolidated read model. It never mutates the
// ledger.
type SummaryService struct {
	store          port.LedgerStore
	investments    *InvestmentService
	maxConcurrency int
	logger         *zap.Logger
}

// NewSummaryService creates a summary service. maxConcurrency bounds the
// number of investment valuations in flight.
func NewSummaryService(store port.LedgerStore, investments *InvestmentService, maxConcurrency int, logger *zap.Logger) *SummaryService {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &SummaryService{
		store:          store,
		investments:    investments,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

type ledgerSnapshot struct {
	accounts   []domain.Account
	pockets    []domain.Pocket
	subPockets []domain.SubPocket
	movements  []domain.Movement
}

// GetSummary loads the whole ledger of a user and aggregates it.
func (s *SummaryService) GetSummary(ctx context.Context, userID string) (*domain.Summary, error) {
	ctx, span := summaryTracer.Start(ctx, "SummaryService.GetSummary")
	defer span.End()

	snap, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("accounts.count", len(snap.accounts)),
		attribute.Int("movements.count", len(snap.movements)),
	)

	valuations := s.valuate(ctx, snap.accounts)

	pocketsByAccount := groupPockets(snap.pockets)
	subPocketsByPocket := make(map[string][]domain.SubPocket)
	for _, sp := range snap.subPockets {
		subPocketsByPocket[sp.PocketID] = append(subPocketsByPocket[sp.PocketID], sp)
	}

	summary := &domain.Summary{
		Accounts: make([]domain.AccountView, 0, len(snap.accounts)),
	}
	totals := map[string]decimal.Decimal{}
	counts := map[string]int{}

	for i := range snap.accounts {
		account := snap.accounts[i]
		pockets := pocketsByAccount[account.ID]
		account.Balance = DeriveAccountBalance(&account, pockets)

		view := domain.AccountView{
			Account:    account,
			Pockets:    pockets,
			Investment: valuations[i],
		}
		if view.Pockets == nil {
			view.Pockets = []domain.Pocket{}
		}
		for _, p := range pockets {
			if p.IsFixed() {
				view.FixedExpenses = FixedExpenses(p, subPocketsByPocket[p.ID])
				break
			}
		}
		summary.Accounts = append(summary.Accounts, view)

		contribution := account.Balance
		if view.Investment != nil {
			contribution = view.Investment.TotalValue
		}
		totals[account.Currency] = totals[account.Currency].Add(decimal.NewFromFloat(contribution))
		counts[account.Currency]++
	}

	summary.Totals = make([]domain.CurrencyTotal, 0, len(totals))
	for currency, total := range totals {
		amount := total.InexactFloat64()
		summary.Totals = append(summary.Totals, domain.CurrencyTotal{
			Currency:  currency,
			Total:     amount,
			Formatted: formatMoney(amount, currency),
			Accounts:  counts[currency],
		})
	}
	sort.Slice(summary.Totals, func(i, j int) bool {
		return summary.Totals[i].Currency < summary.Totals[j].Currency
	})

	summary.Pending, summary.OrphanedCount = pendingTotals(snap.movements)
	return summary, nil
}

// load reads the four collections concurrently.
func (s *SummaryService) load(ctx context.Context, userID string) (*ledgerSnapshot, error) {
	snap := &ledgerSnapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.accounts, err = s.store.ListAccounts(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snap.pockets, err = s.store.ListPockets(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snap.subPockets, err = s.store.ListSubPockets(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snap.movements, err = s.store.ListMovements(gctx, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("summary: failed to load ledger", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return snap, nil
}

// valuate prices every investment account, at most maxConcurrency at a
// time. The result is indexed like accounts; non-investment entries are nil.
func (s *SummaryService) valuate(ctx context.Context, accounts []domain.Account) []*domain.InvestmentValuation {
	out := make([]*domain.InvestmentValuation, len(accounts))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for i := range accounts {
		if !accounts[i].IsInvestment() {
			continue
		}
		i := i
		account := &accounts[i]
		g.Go(func() error {
			out[i] = s.investments.Valuate(ctx, account)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// pendingTotals sums the pending, non-orphaned movements and counts the
// orphaned ones.
func pendingTotals(movements []domain.Movement) (domain.PendingTotals, int) {
	var (
		pending  domain.PendingTotals
		income   = decimal.Zero
		expense  = decimal.Zero
		orphaned int
	)
	for _, m := range movements {
		if m.IsOrphaned {
			orphaned++
			continue
		}
		if !m.IsPending {
			continue
		}
		pending.Count++
		if m.Type.IsIncome() {
			income = income.Add(decimal.NewFromFloat(m.Amount))
		} else {
			expense = expense.Add(decimal.NewFromFloat(m.Amount))
		}
	}
	pending.Income = income.InexactFloat64()
	pending.Expense = expense.InexactFloat64()
	return pending, orphaned
}
