package service

import (
	"context"
	"strings"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var accountTracer = otel.Tracer("service/accounts")

// AccountService runs the account and pocket workflows: creation, deletion
// with orphaning or cascade, and fixed pocket migration.
type AccountService struct {
	store     port.LedgerStore
	movements *MovementService
	engine    *BalanceEngine
	logger    *zap.Logger
	newID     func() string
}

// NewAccountService creates an account service.
func NewAccountService(store port.LedgerStore, movements *MovementService, engine *BalanceEngine, logger *zap.Logger, opts ...Option) *AccountService {
	o := buildOptions(opts)
	return &AccountService{
		store:     store,
		movements: movements,
		engine:    engine,
		logger:    logger,
		newID:     o.newID,
	}
}

// ============================================================
// Accounts
// ============================================================

// ListAccounts returns the user's accounts with derived balances.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.ListAccounts")
	defer span.End()

	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	pockets, err := s.store.ListPockets(ctx, userID)
	if err != nil {
		return nil, err
	}

	byAccount := groupPockets(pockets)
	for i := range accounts {
		accounts[i].Balance = DeriveAccountBalance(&accounts[i], byAccount[accounts[i].ID])
	}
	return accounts, nil
}

// GetAccount returns one account with its derived balance.
func (s *AccountService) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.GetAccount")
	defer span.End()

	account, err := s.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	pockets, err := s.store.ListPocketsByAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	account.Balance = DeriveAccountBalance(account, pockets)
	return account, nil
}

// DeriveAccountBalance is Σ pocket balances. The "Shares" pocket of an
// investment account counts units, not money, and is left out.
func DeriveAccountBalance(account *domain.Account, pockets []domain.Pocket) float64 {
	total := decimal.Zero
	for _, p := range pockets {
		if p.AccountID != account.ID {
			continue
		}
		if account.IsInvestment() && sameName(p.Name, domain.SharesPocketName) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(p.Balance))
	}
	return total.InexactFloat64()
}

func groupPockets(pockets []domain.Pocket) map[string][]domain.Pocket {
	out := make(map[string][]domain.Pocket)
	for _, p := range pockets {
		out[p.AccountID] = append(out[p.AccountID], p)
	}
	return out
}

// CreateAccount creates an account. An investment account also gets its
// "Invested Money" and "Shares" pockets.
func (s *AccountService) CreateAccount(ctx context.Context, userID string, req *domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.CreateAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.type", string(req.Type)))

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if money.GetCurrency(currency) == nil {
		return nil, &domain.ErrValidation{Field: "currency", Message: "unknown currency code " + req.Currency}
	}

	accountType := req.Type
	switch accountType {
	case "":
		accountType = domain.AccountTypeNormal
	case domain.AccountTypeNormal, domain.AccountTypeInvestment:
	default:
		return nil, &domain.ErrValidation{Field: "type", Message: "account type must be normal or investment"}
	}
	if accountType == domain.AccountTypeNormal && req.StockSymbol != "" {
		return nil, &domain.ErrValidation{Field: "stock_symbol", Message: "only investment accounts track a stock symbol"}
	}

	existing, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	account, err := s.store.CreateAccount(ctx, &domain.Account{
		ID:           s.newID(),
		UserID:       userID,
		Name:         name,
		Color:        req.Color,
		Currency:     currency,
		Type:         accountType,
		StockSymbol:  strings.ToUpper(strings.TrimSpace(req.StockSymbol)),
		DisplayOrder: len(existing),
	})
	if err != nil {
		return nil, err
	}

	if account.IsInvestment() {
		for i, pocketName := range []string{domain.InvestedMoneyPocketName, domain.SharesPocketName} {
			if _, err := s.store.CreatePocket(ctx, &domain.Pocket{
				ID:           s.newID(),
				UserID:       userID,
				AccountID:    account.ID,
				Name:         pocketName,
				Type:         domain.PocketTypeNormal,
				Currency:     account.Currency,
				DisplayOrder: i,
			}); err != nil {
				return nil, err
			}
		}
	}

	s.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("currency", account.Currency),
		zap.String("type", string(account.Type)),
	)
	return account, nil
}

// UpdateAccount applies a partial update and returns the fresh account.
func (s *AccountService) UpdateAccount(ctx context.Context, userID, accountID string, upd *domain.AccountUpdate) (*domain.Account, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.UpdateAccount")
	defer span.End()

	account, err := s.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
		}
		updates["name"] = name
	}
	if upd.Color != nil {
		updates["color"] = *upd.Color
	}
	if upd.StockSymbol != nil {
		if !account.IsInvestment() {
			return nil, &domain.ErrValidation{Field: "stock_symbol", Message: "only investment accounts track a stock symbol"}
		}
		updates["stock_symbol"] = strings.ToUpper(strings.TrimSpace(*upd.StockSymbol))
	}
	if upd.DisplayOrder != nil {
		updates["display_order"] = *upd.DisplayOrder
	}

	if len(updates) > 0 {
		if err := s.store.UpdateAccount(ctx, userID, accountID, updates); err != nil {
			return nil, err
		}
	}
	return s.GetAccount(ctx, userID, accountID)
}

// DeleteAccount removes an account with its pockets and sub-pockets. Its
// movements are orphaned, or deleted when opts.DeleteMovements is set.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, accountID string, opts domain.DeleteOptions) (*domain.DeleteResult, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.DeleteAccount")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.Bool("delete_movements", opts.DeleteMovements),
	)

	if _, err := s.store.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	pockets, err := s.store.ListPocketsByAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	result := &domain.DeleteResult{}
	if opts.DeleteMovements {
		if result.MovementsDeleted, err = s.movements.DeleteMovementsByAccount(ctx, userID, accountID); err != nil {
			return nil, err
		}
	} else {
		if result.MovementsOrphaned, err = s.movements.MarkMovementsAsOrphaned(ctx, userID, accountID, domain.OrphanByAccount); err != nil {
			return nil, err
		}
	}

	for _, p := range pockets {
		n, err := s.deletePocketRows(ctx, userID, p.ID)
		if err != nil {
			return nil, err
		}
		result.SubPocketsDeleted += n
		result.PocketsDeleted++
	}
	if err := s.store.DeleteAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}

	s.logger.Info("account deleted",
		zap.String("account_id", accountID),
		zap.Int("movements_orphaned", result.MovementsOrphaned),
		zap.Int("movements_deleted", result.MovementsDeleted),
		zap.Int("pockets_deleted", result.PocketsDeleted),
	)
	return result, nil
}

// deletePocketRows removes a pocket and its sub-pockets, nothing else.
func (s *AccountService) deletePocketRows(ctx context.Context, userID, pocketID string) (int, error) {
	subPockets, err := s.store.ListSubPocketsByPocket(ctx, userID, pocketID)
	if err != nil {
		return 0, err
	}
	for _, sp := range subPockets {
		if err := s.store.DeleteSubPocket(ctx, userID, sp.ID); err != nil {
			return 0, err
		}
	}
	if err := s.store.DeletePocket(ctx, userID, pocketID); err != nil {
		return 0, err
	}
	return len(subPockets), nil
}

// ============================================================
// Pockets
// ============================================================

// ListPockets returns the pockets of an account.
func (s *AccountService) ListPockets(ctx context.Context, userID, accountID string) ([]domain.Pocket, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.ListPockets")
	defer span.End()

	if _, err := s.store.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.store.ListPocketsByAccount(ctx, userID, accountID)
}

// CreatePocket adds a pocket to an account. An account holds at most one
// fixed pocket, and pocket names are unique within the account.
func (s *AccountService) CreatePocket(ctx context.Context, userID string, req *domain.CreatePocketRequest) (*domain.Pocket, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.CreatePocket")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", req.AccountID))

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	pocketType := req.Type
	switch pocketType {
	case "":
		pocketType = domain.PocketTypeNormal
	case domain.PocketTypeNormal, domain.PocketTypeFixed:
	default:
		return nil, &domain.ErrValidation{Field: "type", Message: "pocket type must be normal or fixed"}
	}

	account, err := s.store.GetAccount(ctx, userID, req.AccountID)
	if err != nil {
		return nil, asValidation(err, "account_id", "account not found")
	}
	siblings, err := s.store.ListPocketsByAccount(ctx, userID, account.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range siblings {
		if sameName(p.Name, name) {
			return nil, &domain.ErrValidation{Field: "name", Message: "a pocket named " + p.Name + " already exists"}
		}
		if pocketType == domain.PocketTypeFixed && p.IsFixed() {
			return nil, &domain.ErrValidation{Field: "type", Message: "account already has a fixed pocket"}
		}
	}

	pocket, err := s.store.CreatePocket(ctx, &domain.Pocket{
		ID:           s.newID(),
		UserID:       userID,
		AccountID:    account.ID,
		Name:         name,
		Type:         pocketType,
		Currency:     account.Currency,
		DisplayOrder: len(siblings),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pocket created",
		zap.String("pocket_id", pocket.ID),
		zap.String("account_id", account.ID),
		zap.String("type", string(pocket.Type)),
	)
	return pocket, nil
}

// UpdatePocket renames or reorders a pocket. The well-known pockets of an
// investment account keep their names.
func (s *AccountService) UpdatePocket(ctx context.Context, userID, pocketID string, upd *domain.PocketUpdate) (*domain.Pocket, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.UpdatePocket")
	defer span.End()

	pocket, err := s.store.GetPocket(ctx, userID, pocketID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
		}
		wellKnown, err := s.isWellKnownPocket(ctx, userID, pocket)
		if err != nil {
			return nil, err
		}
		if wellKnown && !sameName(name, pocket.Name) {
			return nil, &domain.ErrValidation{Field: "name", Message: "investment pockets cannot be renamed"}
		}
		siblings, err := s.store.ListPocketsByAccount(ctx, userID, pocket.AccountID)
		if err != nil {
			return nil, err
		}
		for _, p := range siblings {
			if p.ID != pocket.ID && sameName(p.Name, name) {
				return nil, &domain.ErrValidation{Field: "name", Message: "a pocket named " + p.Name + " already exists"}
			}
		}
		pocket.Name = name
		updates["name"] = name
	}
	if upd.DisplayOrder != nil {
		pocket.DisplayOrder = *upd.DisplayOrder
		updates["display_order"] = pocket.DisplayOrder
	}

	if len(updates) == 0 {
		return pocket, nil
	}
	if err := s.store.UpdatePocket(ctx, userID, pocket.ID, updates); err != nil {
		return nil, err
	}
	return pocket, nil
}

func (s *AccountService) isWellKnownPocket(ctx context.Context, userID string, pocket *domain.Pocket) (bool, error) {
	if !sameName(pocket.Name, domain.InvestedMoneyPocketName) && !sameName(pocket.Name, domain.SharesPocketName) {
		return false, nil
	}
	account, err := s.store.GetAccount(ctx, userID, pocket.AccountID)
	if err != nil {
		return false, err
	}
	return account.IsInvestment(), nil
}

// DeletePocket removes a pocket and its sub-pockets. Its movements are
// orphaned, or deleted when opts.DeleteMovements is set.
func (s *AccountService) DeletePocket(ctx context.Context, userID, pocketID string, opts domain.DeleteOptions) (*domain.DeleteResult, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.DeletePocket")
	defer span.End()
	span.SetAttributes(
		attribute.String("pocket.id", pocketID),
		attribute.Bool("delete_movements", opts.DeleteMovements),
	)

	pocket, err := s.store.GetPocket(ctx, userID, pocketID)
	if err != nil {
		return nil, err
	}
	wellKnown, err := s.isWellKnownPocket(ctx, userID, pocket)
	if err != nil {
		return nil, err
	}
	if wellKnown {
		return nil, &domain.ErrValidation{Field: "pocket_id", Message: "investment pockets cannot be deleted"}
	}

	result := &domain.DeleteResult{}
	if opts.DeleteMovements {
		if result.MovementsDeleted, err = s.movements.DeleteMovementsByPocket(ctx, userID, pocketID); err != nil {
			return nil, err
		}
	} else {
		if result.MovementsOrphaned, err = s.movements.MarkMovementsAsOrphaned(ctx, userID, pocketID, domain.OrphanByPocket); err != nil {
			return nil, err
		}
	}

	if result.SubPocketsDeleted, err = s.deletePocketRows(ctx, userID, pocketID); err != nil {
		return nil, err
	}
	result.PocketsDeleted = 1

	s.logger.Info("pocket deleted",
		zap.String("pocket_id", pocketID),
		zap.Int("movements_orphaned", result.MovementsOrphaned),
		zap.Int("movements_deleted", result.MovementsDeleted),
	)
	return result, nil
}

// MigrateFixedPocket moves a fixed pocket, with its movements, to another
// account of the same currency that has no fixed pocket yet. Balances do
// not change. Returns the number of movements re-pointed.
func (s *AccountService) MigrateFixedPocket(ctx context.Context, userID, pocketID, targetAccountID string) (int, error) {
	ctx, span := accountTracer.Start(ctx, "AccountService.MigrateFixedPocket")
	defer span.End()
	span.SetAttributes(
		attribute.String("pocket.id", pocketID),
		attribute.String("account.target", targetAccountID),
	)

	pocket, err := s.store.GetPocket(ctx, userID, pocketID)
	if err != nil {
		return 0, err
	}
	if !pocket.IsFixed() {
		return 0, &domain.ErrValidation{Field: "pocket_id", Message: "only fixed pockets can be migrated"}
	}
	if pocket.AccountID == targetAccountID {
		return 0, &domain.ErrValidation{Field: "target_account_id", Message: "pocket already belongs to this account"}
	}

	target, err := s.store.GetAccount(ctx, userID, targetAccountID)
	if err != nil {
		return 0, asValidation(err, "target_account_id", "account not found")
	}
	if target.Currency != pocket.Currency {
		return 0, &domain.ErrValidation{Field: "target_account_id", Message: "target account uses a different currency"}
	}
	targetPockets, err := s.store.ListPocketsByAccount(ctx, userID, target.ID)
	if err != nil {
		return 0, err
	}
	for _, p := range targetPockets {
		if p.IsFixed() {
			return 0, &domain.ErrValidation{Field: "target_account_id", Message: "target account already has a fixed pocket"}
		}
	}

	n, err := s.movements.UpdateMovementsAccountForPocket(ctx, userID, pocket.ID, target.ID)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpdatePocket(ctx, userID, pocket.ID, map[string]any{
		"account_id":    target.ID,
		"display_order": len(targetPockets),
	}); err != nil {
		return 0, err
	}
	if err := s.engine.SyncInvestmentAccounts(ctx, userID, pocket.AccountID, target.ID); err != nil {
		return 0, err
	}

	s.logger.Info("fixed pocket migrated",
		zap.String("pocket_id", pocket.ID),
		zap.String("from_account_id", pocket.AccountID),
		zap.String("to_account_id", target.ID),
		zap.Int("movements", n),
	)
	return n, nil
}

// formatMoney renders amount in currency, falling back to the plain decimal
// for codes go-money does not know.
func formatMoney(amount float64, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return decimal.NewFromFloat(amount).StringFixed(2) + " " + currency
	}
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
