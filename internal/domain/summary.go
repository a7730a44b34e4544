package domain

// ============================================================
// Summary views
// ============================================================

// SubPocketSchedule is a sub-pocket with its contribution schedule.
type SubPocketSchedule struct {
	SubPocket
	MonthlyContribution float64 `json:"monthly_contribution"`
	Progress            float64 `json:"progress"` // clamped to [0, 1]
	NextPaymentDue      float64 `json:"next_payment_due"`
	Underfunded         bool    `json:"underfunded"`
}

// FixedExpensesView is a fixed pocket with its sub-pocket schedules.
type FixedExpensesView struct {
	Pocket           Pocket              `json:"pocket"`
	SubPockets       []SubPocketSchedule `json:"sub_pockets"`
	TotalMonthly     float64             `json:"total_monthly"`
	TotalNextPayment float64             `json:"total_next_payment"`
	UnderfundedCount int                 `json:"underfunded_count"`
}

// AccountView is an account with its pockets and derived balance.
type AccountView struct {
	Account       Account              `json:"account"`
	Pockets       []Pocket             `json:"pockets"`
	FixedExpenses *FixedExpensesView   `json:"fixed_expenses,omitempty"`
	Investment    *InvestmentValuation `json:"investment,omitempty"`
}

// CurrencyTotal aggregates account balances in one currency.
type CurrencyTotal struct {
	Currency  string  `json:"currency"`
	Total     float64 `json:"total"`
	Formatted string  `json:"formatted"`
	Accounts  int     `json:"accounts"`
}

// PendingTotals aggregates movements not yet applied.
type PendingTotals struct {
	Count   int     `json:"count"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// Summary is the consolidated read model.
type Summary struct {
	Accounts      []AccountView   `json:"accounts"`
	Totals        []CurrencyTotal `json:"totals"`
	Pending       PendingTotals   `json:"pending"`
	OrphanedCount int             `json:"orphaned_count"`
}
