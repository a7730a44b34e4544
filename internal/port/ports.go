// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
)

// AccountStore handles account rows. Every call is scoped to userID.
type AccountStore interface {
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdateAccount(ctx context.Context, userID, accountID string, updates map[string]any) error
	DeleteAccount(ctx context.Context, userID, accountID string) error
}

// PocketStore handles pocket rows.
type PocketStore interface {
	ListPockets(ctx context.Context, userID string) ([]domain.Pocket, error)
	ListPocketsByAccount(ctx context.Context, userID, accountID string) ([]domain.Pocket, error)
	GetPocket(ctx context.Context, userID, pocketID string) (*domain.Pocket, error)
	CreatePocket(ctx context.Context, pocket *domain.Pocket) (*domain.Pocket, error)
	UpdatePocket(ctx context.Context, userID, pocketID string, updates map[string]any) error
	DeletePocket(ctx context.Context, userID, pocketID string) error
}

// SubPocketStore handles sub-pocket rows.
type SubPocketStore interface {
	ListSubPockets(ctx context.Context, userID string) ([]domain.SubPocket, error)
	ListSubPocketsByPocket(ctx context.Context, userID, pocketID string) ([]domain.SubPocket, error)
	GetSubPocket(ctx context.Context, userID, subPocketID string) (*domain.SubPocket, error)
	CreateSubPocket(ctx context.Context, sp *domain.SubPocket) (*domain.SubPocket, error)
	UpdateSubPocket(ctx context.Context, userID, subPocketID string, updates map[string]any) error
	DeleteSubPocket(ctx context.Context, userID, subPocketID string) error
}

// MovementStore handles movement rows.
type MovementStore interface {
	ListMovements(ctx context.Context, userID string) ([]domain.Movement, error)
	ListMovementsByAccount(ctx context.Context, userID, accountID string) ([]domain.Movement, error)
	ListMovementsByPocket(ctx context.Context, userID, pocketID string) ([]domain.Movement, error)
	ListMovementsBySubPocket(ctx context.Context, userID, subPocketID string) ([]domain.Movement, error)
	ListMovementsByIDs(ctx context.Context, userID string, ids []string) ([]domain.Movement, error)
	ListOrphanedMovements(ctx context.Context, userID string) ([]domain.Movement, error)
	GetMovement(ctx context.Context, userID, movementID string) (*domain.Movement, error)
	CreateMovement(ctx context.Context, m *domain.Movement) (*domain.Movement, error)
	UpdateMovement(ctx context.Context, userID, movementID string, updates map[string]any) error
	UpsertMovements(ctx context.Context, movements []domain.Movement) error
	DeleteMovement(ctx context.Context, userID, movementID string) error

	// Bulk helpers return the number of rows affected.
	DeleteMovementsByAccount(ctx context.Context, userID, accountID string) (int, error)
	DeleteMovementsByPocket(ctx context.Context, userID, pocketID string) (int, error)
	DeleteMovementsBySubPocket(ctx context.Context, userID, subPocketID string) (int, error)
	UpdateMovementsAccountForPocket(ctx context.Context, userID, pocketID, newAccountID string) (int, error)
}

// LedgerStore is the full persistence surface of the ledger.
// Implemented by the Supabase adapter.
type LedgerStore interface {
	AccountStore
	PocketStore
	SubPocketStore
	MovementStore
}

// PriceSource returns the current per-share price of a ticker.
type PriceSource interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceCache is the client-local price cache.
type PriceCache interface {
	Get(symbol string) (domain.PriceEntry, bool)
	Set(entry domain.PriceEntry)
}

// RateLimitStore records, across all clients, when each symbol was last
// fetched from the upstream price source.
type RateLimitStore interface {
	LastPriceFetch(ctx context.Context, symbol string) (time.Time, bool, error)
	RecordPriceFetch(ctx context.Context, symbol string, at time.Time) error
}

