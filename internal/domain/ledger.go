package domain

import "time"

// ============================================================
// Accounts
// ============================================================

// AccountType distinguishes plain cash accounts from investment accounts.
type AccountType string

const (
	AccountTypeNormal     AccountType = "normal"
	AccountTypeInvestment AccountType = "investment"
)

// Well-known pocket names of an investment account. Their balances feed
// Account.MontoInvertido and Account.Shares.
const (
	InvestedMoneyPocketName = "Invested Money"
	SharesPocketName        = "Shares"
)

// Account is a top-level money container in one currency.
// Balance is never stored authoritatively; it is derived from the pockets.
type Account struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id,omitempty"`
	Name           string      `json:"name"`
	Color          string      `json:"color"`
	Currency       string      `json:"currency"`
	Balance        float64     `json:"balance"`
	Type           AccountType `json:"type"`
	StockSymbol    string      `json:"stock_symbol,omitempty"`
	MontoInvertido float64     `json:"monto_invertido"`
	Shares         float64     `json:"shares"`
	DisplayOrder   int         `json:"display_order"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsInvestment reports whether the account tracks a stock position.
func (a *Account) IsInvestment() bool {
	return a.Type == AccountTypeInvestment
}

// CreateAccountRequest is the input of AccountService.CreateAccount.
type CreateAccountRequest struct {
	Name        string      `json:"name"`
	Color       string      `json:"color"`
	Currency    string      `json:"currency"`
	Type        AccountType `json:"type"`
	StockSymbol string      `json:"stock_symbol,omitempty"`
}

// AccountUpdate carries a partial update; nil fields are left untouched.
// Currency and type are fixed at creation.
type AccountUpdate struct {
	Name         *string `json:"name,omitempty"`
	Color        *string `json:"color,omitempty"`
	StockSymbol  *string `json:"stock_symbol,omitempty"`
	DisplayOrder *int    `json:"display_order,omitempty"`
}

// ============================================================
// Pockets
// ============================================================

// PocketType distinguishes spending pockets from fixed-expense pockets.
type PocketType string

const (
	PocketTypeNormal PocketType = "normal"
	PocketTypeFixed  PocketType = "fixed"
)

// Pocket is a named subdivision of an account.
// A fixed pocket's balance is the sum of its sub-pockets' balances.
type Pocket struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id,omitempty"`
	AccountID    string     `json:"account_id"`
	Name         string     `json:"name"`
	Type         PocketType `json:"type"`
	Balance      float64    `json:"balance"`
	Currency     string     `json:"currency"`
	DisplayOrder int        `json:"display_order"`
}

// IsFixed reports whether the pocket aggregates sub-pockets.
func (p *Pocket) IsFixed() bool {
	return p.Type == PocketTypeFixed
}

// CreatePocketRequest is the input of AccountService.CreatePocket.
type CreatePocketRequest struct {
	AccountID string     `json:"account_id"`
	Name      string     `json:"name"`
	Type      PocketType `json:"type"`
}

// PocketUpdate carries a partial update; nil fields are left untouched.
type PocketUpdate struct {
	Name         *string `json:"name,omitempty"`
	DisplayOrder *int    `json:"display_order,omitempty"`
}

// MigratePocketRequest moves a fixed pocket to another account.
type MigratePocketRequest struct {
	TargetAccountID string `json:"target_account_id"`
}

// ============================================================
// Sub-pockets (fixed recurring expenses)
// ============================================================

// SubPocket is a savings goal for a recurring fixed expense.
type SubPocket struct {
	ID                string  `json:"id"`
	UserID            string  `json:"user_id,omitempty"`
	PocketID          string  `json:"pocket_id"`
	Name              string  `json:"name"`
	ValueTotal        float64 `json:"value_total"`
	PeriodicityMonths int     `json:"periodicity_months"`
	Balance           float64 `json:"balance"`
	Enabled           bool    `json:"enabled"`
	GroupID           string  `json:"group_id,omitempty"`
	DisplayOrder      int     `json:"display_order"`
}

// CreateSubPocketRequest is the input of SubPocketService.CreateSubPocket.
type CreateSubPocketRequest struct {
	PocketID          string  `json:"pocket_id"`
	Name              string  `json:"name"`
	ValueTotal        float64 `json:"value_total"`
	PeriodicityMonths int     `json:"periodicity_months"`
	GroupID           string  `json:"group_id,omitempty"`
}

// SubPocketUpdate carries a partial update; nil fields are left untouched.
type SubPocketUpdate struct {
	Name              *string  `json:"name,omitempty"`
	ValueTotal        *float64 `json:"value_total,omitempty"`
	PeriodicityMonths *int     `json:"periodicity_months,omitempty"`
	Enabled           *bool    `json:"enabled,omitempty"`
	GroupID           *string  `json:"group_id,omitempty"`
}

// ============================================================
// Movements
// ============================================================

// MovementType is one of the four income/expense kinds.
type MovementType string

const (
	MovementIncomeNormal  MovementType = "IncomeNormal"
	MovementExpenseNormal MovementType = "ExpenseNormal"
	MovementIncomeFixed   MovementType = "IncomeFixed"
	MovementExpenseFixed  MovementType = "ExpenseFixed"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIncomeNormal, MovementExpenseNormal, MovementIncomeFixed, MovementExpenseFixed:
		return true
	}
	return false
}

// IsIncome reports whether the movement increases its holder's balance.
func (t MovementType) IsIncome() bool {
	return t == MovementIncomeNormal || t == MovementIncomeFixed
}

// Movement is a single recorded income or expense.
type Movement struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id,omitempty"`
	Type          MovementType `json:"type"`
	AccountID     string       `json:"account_id"`
	PocketID      string       `json:"pocket_id"`
	SubPocketID   string       `json:"sub_pocket_id,omitempty"`
	Amount        float64      `json:"amount"`
	Notes         string       `json:"notes,omitempty"`
	DisplayedDate time.Time    `json:"displayed_date"`
	CreatedAt     time.Time    `json:"created_at"`
	IsPending     bool         `json:"is_pending"`
	IsOrphaned    bool         `json:"is_orphaned"`

	// Snapshot of the vanished account/pocket, captured when orphaned.
	OrphanedAccountName     string `json:"orphaned_account_name,omitempty"`
	OrphanedAccountCurrency string `json:"orphaned_account_currency,omitempty"`
	OrphanedPocketName      string `json:"orphaned_pocket_name,omitempty"`
	OrphanedSubPocketName   string `json:"orphaned_sub_pocket_name,omitempty"`
}

// IsApplied reports whether the amount is currently reflected in a balance.
func (m *Movement) IsApplied() bool {
	return !m.IsPending && !m.IsOrphaned
}

// CreateMovementRequest is the input of MovementService.CreateMovement.
type CreateMovementRequest struct {
	Type          MovementType `json:"type"`
	AccountID     string       `json:"account_id"`
	PocketID      string       `json:"pocket_id"`
	SubPocketID   string       `json:"sub_pocket_id,omitempty"`
	Amount        float64      `json:"amount"`
	Notes         string       `json:"notes,omitempty"`
	DisplayedDate *time.Time   `json:"displayed_date,omitempty"`
	IsPending     bool         `json:"is_pending"`
}

// MovementUpdate carries a partial update; nil fields are left untouched.
// An empty SubPocketID pointer value clears the sub-pocket.
type MovementUpdate struct {
	Type          *MovementType `json:"type,omitempty"`
	AccountID     *string       `json:"account_id,omitempty"`
	PocketID      *string       `json:"pocket_id,omitempty"`
	SubPocketID   *string       `json:"sub_pocket_id,omitempty"`
	Amount        *float64      `json:"amount,omitempty"`
	Notes         *string       `json:"notes,omitempty"`
	DisplayedDate *time.Time    `json:"displayed_date,omitempty"`
}

// Merge returns a copy of m with the non-nil fields of u applied.
func (u *MovementUpdate) Merge(m Movement) Movement {
	if u.Type != nil {
		m.Type = *u.Type
	}
	if u.AccountID != nil {
		m.AccountID = *u.AccountID
	}
	if u.PocketID != nil {
		m.PocketID = *u.PocketID
	}
	if u.SubPocketID != nil {
		m.SubPocketID = *u.SubPocketID
	}
	if u.Amount != nil {
		m.Amount = *u.Amount
	}
	if u.Notes != nil {
		m.Notes = *u.Notes
	}
	if u.DisplayedDate != nil {
		m.DisplayedDate = *u.DisplayedDate
	}
	return m
}

// OrphanKind names the kind of record whose deletion orphans movements.
type OrphanKind string

const (
	OrphanByAccount OrphanKind = "account"
	OrphanByPocket  OrphanKind = "pocket"
)

// RestoreOrphansRequest rebinds orphaned movements to live records.
type RestoreOrphansRequest struct {
	MovementIDs  []string `json:"movement_ids"`
	NewAccountID string   `json:"new_account_id"`
	NewPocketID  string   `json:"new_pocket_id"`
}

// DeleteOptions controls what happens to movements when an account or
// pocket is deleted: orphaned (default) or deleted with it.
type DeleteOptions struct {
	DeleteMovements bool `json:"delete_movements"`
}

// DeleteResult reports the side effects of an account/pocket deletion.
type DeleteResult struct {
	MovementsOrphaned int `json:"movements_orphaned"`
	MovementsDeleted  int `json:"movements_deleted"`
	PocketsDeleted    int `json:"pockets_deleted"`
	SubPocketsDeleted int `json:"sub_pockets_deleted"`
}
