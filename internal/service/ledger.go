// Package service provides the business logic layer (use cases).
// Ledger wires the balance engine, the movement lifecycle, the sub-pocket
// schedules, the account workflows, investment valuation and the summary
// into one handle, built once per process and passed to the HTTP layer.
package service

import (
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option customises the clock and id generator of the services.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces uuid.NewString.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Ledger groups the services that share a store.
type Ledger struct {
	Engine      *BalanceEngine
	Movements   *MovementService
	SubPockets  *SubPocketService
	Accounts    *AccountService
	Investments *InvestmentService
	Summary     *SummaryService
}

// LedgerDeps are the collaborators of a Ledger.
type LedgerDeps struct {
	Store          port.LedgerStore
	Prices         port.PriceSource
	PriceCache     port.PriceCache
	RateLimits     port.RateLimitStore
	RateLimit      time.Duration
	MaxConcurrency int
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewLedger constructs every service and wires their references.
func NewLedger(deps LedgerDeps, opts ...Option) *Ledger {
	engine := NewBalanceEngine(deps.Store, deps.Metrics, deps.Logger)
	movements := NewMovementService(deps.Store, engine, deps.Metrics, deps.Logger, opts...)
	investments := NewInvestmentService(deps.Prices, deps.PriceCache, deps.RateLimits, deps.RateLimit, deps.Metrics, deps.Logger, opts...)

	return &Ledger{
		Engine:      engine,
		Movements:   movements,
		SubPockets:  NewSubPocketService(deps.Store, engine, deps.Logger, opts...),
		Accounts:    NewAccountService(deps.Store, movements, engine, deps.Logger, opts...),
		Investments: investments,
		Summary:     NewSummaryService(deps.Store, investments, deps.MaxConcurrency, deps.Logger),
	}
}
