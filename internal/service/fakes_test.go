package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/cache"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pockets-ledger-go/internal/port"
	"github.com/boddenberg/pockets-ledger-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "user-1"

// --- In-memory ledger store ---

type fakeStore struct {
	mu         sync.Mutex
	accounts   map[string]domain.Account
	pockets    map[string]domain.Pocket
	subPockets map[string]domain.SubPocket
	movements  map[string]domain.Movement

	// Hooks that make single writes fail, to exercise error paths.
	failUpdatePocket   error
	failUpdateMovement error
	failDeleteMovement error
}

var _ port.LedgerStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   map[string]domain.Account{},
		pockets:    map[string]domain.Pocket{},
		subPockets: map[string]domain.SubPocket{},
		movements:  map[string]domain.Movement{},
	}
}

// patch applies a PATCH-style update map to v through its JSON form.
// A nil value clears the field.
func patch[T any](v T, updates map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out, err
	}
	for k, val := range updates {
		if val == nil {
			delete(fields, k)
			continue
		}
		fields[k] = val
	}
	if raw, err = json.Marshal(fields); err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func sortedValues[T any](m map[string]T, keep func(T) bool, id func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

// Accounts

func (s *fakeStore) ListAccounts(_ context.Context, userID string) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.accounts,
		func(a domain.Account) bool { return a.UserID == userID },
		func(a domain.Account) string { return a.ID }), nil
}

func (s *fakeStore) GetAccount(_ context.Context, userID, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return &a, nil
}

func (s *fakeStore) CreateAccount(_ context.Context, a *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = *a
	out := *a
	return &out, nil
}

func (s *fakeStore) UpdateAccount(_ context.Context, userID, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return nil
	}
	a, err := patch(a, updates)
	if err != nil {
		return err
	}
	s.accounts[id] = a
	return nil
}

func (s *fakeStore) DeleteAccount(_ context.Context, _, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

// Pockets

func (s *fakeStore) ListPockets(_ context.Context, userID string) ([]domain.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.pockets,
		func(p domain.Pocket) bool { return p.UserID == userID },
		func(p domain.Pocket) string { return p.ID }), nil
}

func (s *fakeStore) ListPocketsByAccount(_ context.Context, userID, accountID string) ([]domain.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.pockets,
		func(p domain.Pocket) bool { return p.UserID == userID && p.AccountID == accountID },
		func(p domain.Pocket) string { return p.ID }), nil
}

func (s *fakeStore) GetPocket(_ context.Context, userID, id string) (*domain.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pockets[id]
	if !ok || p.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "pocket", ID: id}
	}
	return &p, nil
}

func (s *fakeStore) CreatePocket(_ context.Context, p *domain.Pocket) (*domain.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pockets[p.ID] = *p
	out := *p
	return &out, nil
}

func (s *fakeStore) UpdatePocket(_ context.Context, userID, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdatePocket != nil {
		return s.failUpdatePocket
	}
	p, ok := s.pockets[id]
	if !ok || p.UserID != userID {
		return nil
	}
	p, err := patch(p, updates)
	if err != nil {
		return err
	}
	s.pockets[id] = p
	return nil
}

func (s *fakeStore) DeletePocket(_ context.Context, _, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pockets, id)
	return nil
}

// Sub-pockets

func (s *fakeStore) ListSubPockets(_ context.Context, userID string) ([]domain.SubPocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.subPockets,
		func(sp domain.SubPocket) bool { return sp.UserID == userID },
		func(sp domain.SubPocket) string { return sp.ID }), nil
}

func (s *fakeStore) ListSubPocketsByPocket(_ context.Context, userID, pocketID string) ([]domain.SubPocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.subPockets,
		func(sp domain.SubPocket) bool { return sp.UserID == userID && sp.PocketID == pocketID },
		func(sp domain.SubPocket) string { return sp.ID }), nil
}

func (s *fakeStore) GetSubPocket(_ context.Context, userID, id string) (*domain.SubPocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.subPockets[id]
	if !ok || sp.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "sub_pocket", ID: id}
	}
	return &sp, nil
}

func (s *fakeStore) CreateSubPocket(_ context.Context, sp *domain.SubPocket) (*domain.SubPocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subPockets[sp.ID] = *sp
	out := *sp
	return &out, nil
}

func (s *fakeStore) UpdateSubPocket(_ context.Context, userID, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.subPockets[id]
	if !ok || sp.UserID != userID {
		return nil
	}
	sp, err := patch(sp, updates)
	if err != nil {
		return err
	}
	s.subPockets[id] = sp
	return nil
}

func (s *fakeStore) DeleteSubPocket(_ context.Context, _, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subPockets, id)
	return nil
}

// Movements

func (s *fakeStore) listMovements(keep func(domain.Movement) bool) []domain.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.movements, keep, func(m domain.Movement) string { return m.ID })
}

func (s *fakeStore) ListMovements(_ context.Context, userID string) ([]domain.Movement, error) {
	return s.listMovements(func(m domain.Movement) bool { return m.UserID == userID }), nil
}

func (s *fakeStore) ListMovementsByAccount(_ context.Context, userID, accountID string) ([]domain.Movement, error) {
	return s.listMovements(func(m domain.Movement) bool {
		return m.UserID == userID && m.AccountID == accountID
	}), nil
}

func (s *fakeStore) ListMovementsByPocket(_ context.Context, userID, pocketID string) ([]domain.Movement, error) {
	return s.listMovements(func(m domain.Movement) bool {
		return m.UserID == userID && m.PocketID == pocketID
	}), nil
}

func (s *fakeStore) ListMovementsBySubPocket(_ context.Context, userID, subPocketID string) ([]domain.Movement, error) {
	return s.listMovements(func(m domain.Movement) bool {
		return m.UserID == userID && m.SubPocketID == subPocketID
	}), nil
}

func (s *fakeStore) ListMovementsByIDs(_ context.Context, userID string, ids []string) ([]domain.Movement, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return s.listMovements(func(m domain.Movement) bool {
		return m.UserID == userID && want[m.ID]
	}), nil
}

func (s *fakeStore) ListOrphanedMovements(_ context.Context, userID string) ([]domain.Movement, error) {
	return s.listMovements(func(m domain.Movement) bool {
		return m.UserID == userID && m.IsOrphaned
	}), nil
}

func (s *fakeStore) GetMovement(_ context.Context, userID, id string) (*domain.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movements[id]
	if !ok || m.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "movement", ID: id}
	}
	return &m, nil
}

func (s *fakeStore) CreateMovement(_ context.Context, m *domain.Movement) (*domain.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[m.ID] = *m
	out := *m
	return &out, nil
}

func (s *fakeStore) UpdateMovement(_ context.Context, userID, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateMovement != nil {
		return s.failUpdateMovement
	}
	m, ok := s.movements[id]
	if !ok || m.UserID != userID {
		return nil
	}
	m, err := patch(m, updates)
	if err != nil {
		return err
	}
	s.movements[id] = m
	return nil
}

func (s *fakeStore) UpsertMovements(_ context.Context, movements []domain.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range movements {
		s.movements[m.ID] = m
	}
	return nil
}

func (s *fakeStore) DeleteMovement(_ context.Context, _, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeleteMovement != nil {
		return s.failDeleteMovement
	}
	delete(s.movements, id)
	return nil
}

func (s *fakeStore) deleteMovementsWhere(match func(domain.Movement) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.movements {
		if match(m) {
			delete(s.movements, id)
			n++
		}
	}
	return n
}

func (s *fakeStore) DeleteMovementsByAccount(_ context.Context, userID, accountID string) (int, error) {
	return s.deleteMovementsWhere(func(m domain.Movement) bool {
		return m.UserID == userID && m.AccountID == accountID
	}), nil
}

func (s *fakeStore) DeleteMovementsByPocket(_ context.Context, userID, pocketID string) (int, error) {
	return s.deleteMovementsWhere(func(m domain.Movement) bool {
		return m.UserID == userID && m.PocketID == pocketID
	}), nil
}

func (s *fakeStore) DeleteMovementsBySubPocket(_ context.Context, userID, subPocketID string) (int, error) {
	return s.deleteMovementsWhere(func(m domain.Movement) bool {
		return m.UserID == userID && m.SubPocketID == subPocketID
	}), nil
}

func (s *fakeStore) UpdateMovementsAccountForPocket(_ context.Context, userID, pocketID, newAccountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.movements {
		if m.UserID == userID && m.PocketID == pocketID {
			m.AccountID = newAccountID
			s.movements[id] = m
			n++
		}
	}
	return n, nil
}

// --- Price collaborators ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakePriceSource struct {
	mu    sync.Mutex
	price float64
	err   error
	calls int
}

func (f *fakePriceSource) Name() string { return "fake" }

func (f *fakePriceSource) GetPrice(_ context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.price, f.err
}

func (f *fakePriceSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRateLimits struct {
	mu      sync.Mutex
	last    map[string]time.Time
	lookErr error
	records int
}

func (f *fakeRateLimits) LastPriceFetch(_ context.Context, symbol string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookErr != nil {
		return time.Time{}, false, f.lookErr
	}
	t, ok := f.last[symbol]
	return t, ok, nil
}

func (f *fakeRateLimits) RecordPriceFetch(_ context.Context, symbol string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last[symbol] = at
	f.records++
	return nil
}

// --- Harness ---

const (
	testTTL    = time.Hour
	testWindow = time.Minute
)

type harness struct {
	store   *fakeStore
	clock   *fakeClock
	prices  *fakePriceSource
	limits  *fakeRateLimits
	metrics *observability.Metrics
	ledger  *service.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}

	h := &harness{
		store:   newFakeStore(),
		clock:   clock,
		prices:  &fakePriceSource{price: 120},
		limits:  &fakeRateLimits{last: map[string]time.Time{}},
		metrics: observability.NewMetrics(),
	}
	priceCache := cache.NewPriceCache(testTTL, "", zap.NewNop(), cache.WithClock(clock.Now), cache.WithoutCleanup())
	t.Cleanup(priceCache.Close)

	h.ledger = service.NewLedger(service.LedgerDeps{
		Store:          h.store,
		Prices:         h.prices,
		PriceCache:     priceCache,
		RateLimits:     h.limits,
		RateLimit:      testWindow,
		MaxConcurrency: 2,
		Metrics:        h.metrics,
		Logger:         zap.NewNop(),
	}, service.WithClock(clock.Now), service.WithIDGenerator(newID))
	return h
}

func (h *harness) account(t *testing.T, name, currency string, typ domain.AccountType) *domain.Account {
	t.Helper()
	a, err := h.ledger.Accounts.CreateAccount(context.Background(), testUser, &domain.CreateAccountRequest{
		Name: name, Currency: currency, Type: typ,
	})
	require.NoError(t, err)
	return a
}

func (h *harness) pocket(t *testing.T, accountID, name string, typ domain.PocketType) *domain.Pocket {
	t.Helper()
	p, err := h.ledger.Accounts.CreatePocket(context.Background(), testUser, &domain.CreatePocketRequest{
		AccountID: accountID, Name: name, Type: typ,
	})
	require.NoError(t, err)
	return p
}

func (h *harness) subPocket(t *testing.T, pocketID, name string, total float64, months int) *domain.SubPocket {
	t.Helper()
	sp, err := h.ledger.SubPockets.CreateSubPocket(context.Background(), testUser, &domain.CreateSubPocketRequest{
		PocketID: pocketID, Name: name, ValueTotal: total, PeriodicityMonths: months,
	})
	require.NoError(t, err)
	return sp
}

func (h *harness) move(t *testing.T, typ domain.MovementType, p *domain.Pocket, amount float64, pending bool) *domain.Movement {
	t.Helper()
	m, err := h.ledger.Movements.CreateMovement(context.Background(), testUser, &domain.CreateMovementRequest{
		Type: typ, AccountID: p.AccountID, PocketID: p.ID, Amount: amount, IsPending: pending,
	})
	require.NoError(t, err)
	return m
}

func (h *harness) pocketBalance(t *testing.T, id string) float64 {
	t.Helper()
	p, err := h.store.GetPocket(context.Background(), testUser, id)
	require.NoError(t, err)
	return p.Balance
}

func (h *harness) subPocketBalance(t *testing.T, id string) float64 {
	t.Helper()
	sp, err := h.store.GetSubPocket(context.Background(), testUser, id)
	require.NoError(t, err)
	return sp.Balance
}

func kindOf(err error) string { return domain.Kind(err) }

var errStoreDown = errors.New("store down")
