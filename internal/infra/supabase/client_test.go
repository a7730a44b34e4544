package supabase_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/supabase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return supabase.NewClient(
		srv.Client(),
		srv.URL+"/",
		"anon-key",
		"service-key",
		resilience.NewCircuitBreaker("supabase-test"),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 1},
		zap.NewNop(),
	)
}

func TestListAccounts_ScopesByUserAndAuthenticates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/accounts", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":"a1","name":"Checking","currency":"USD","type":"normal"}]`))
	})

	accounts, err := c.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Checking", accounts[0].Name)
	assert.Equal(t, domain.AccountTypeNormal, accounts[0].Type)
}

func TestGetAccount_EmptyResultIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.missing", r.URL.Query().Get("id"))
		w.Write([]byte(`[]`))
	})

	_, err := c.GetAccount(context.Background(), "user-1", "missing")
	assert.Equal(t, domain.KindNotFound, domain.Kind(err))
}

func TestGetRows_ServerErrorRetriedThenExternal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})

	_, err := c.ListPockets(context.Background(), "user-1")
	assert.Equal(t, domain.KindExternal, domain.Kind(err))
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestListMovementsByIDs(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, `in.("m1","m2")`, r.URL.Query().Get("id"))
		w.Write([]byte(`[{"id":"m1","type":"IncomeNormal","amount":10,"sub_pocket_id":null,"is_orphaned":true,"orphaned_account_name":"Old","orphaned_sub_pocket_name":"Rent"}]`))
	})

	none, err := c.ListMovementsByIDs(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, int32(0), calls.Load(), "no ids means no request")

	got, err := c.ListMovementsByIDs(context.Background(), "user-1", []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].SubPocketID)
	assert.True(t, got[0].IsOrphaned)
	assert.Equal(t, "Old", got[0].OrphanedAccountName)
	assert.Equal(t, "Rent", got[0].OrphanedSubPocketName)
}

func TestUpsertMovements_MergesOnPrimaryKey(t *testing.T) {
	var rows []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "id", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &rows))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.UpsertMovements(context.Background(), []domain.Movement{
		{ID: "m1", UserID: "user-1", Type: domain.MovementIncomeNormal, AccountID: "a1", PocketID: "p1", Amount: 5},
		{ID: "m2", UserID: "user-1", Type: domain.MovementExpenseFixed, AccountID: "a1", PocketID: "p2", SubPocketID: "sp1", Amount: 7, IsOrphaned: true, OrphanedPocketName: "Bills", OrphanedSubPocketName: "Rent"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0]["sub_pocket_id"], "empty references are sent as NULL")
	assert.Equal(t, "sp1", rows[1]["sub_pocket_id"])
	assert.Equal(t, "Bills", rows[1]["orphaned_pocket_name"])
	assert.Equal(t, "Rent", rows[1]["orphaned_sub_pocket_name"])
	assert.Nil(t, rows[0]["orphaned_sub_pocket_name"])
}

func TestDeleteMovementsByAccount_CountsRemovedRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.a1", r.URL.Query().Get("account_id"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		w.Write([]byte(`[{"id":"m1"},{"id":"m2"},{"id":"m3"}]`))
	})

	n, err := c.DeleteMovementsByAccount(context.Background(), "user-1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdateMovementsAccountForPocket_CountsPatchedRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.p1", r.URL.Query().Get("pocket_id"))
		var patch map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.Equal(t, map[string]any{"account_id": "a2"}, patch)
		w.Write([]byte(`[{"id":"m1"},{"id":"m2"}]`))
	})

	n, err := c.UpdateMovementsAccountForPocket(context.Background(), "user-1", "p1", "a2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWrites_AreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	err := c.UpdatePocket(context.Background(), "user-1", "p1", map[string]any{"balance": 10.5})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPriceFetchLog(t *testing.T) {
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var recorded []map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/price_fetch_log", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("symbol") == "eq.AAPL" {
				w.Write([]byte(`[{"symbol":"AAPL","last_fetched_at":"2026-03-01T12:00:00Z"}]`))
				return
			}
			w.Write([]byte(`[]`))
		case http.MethodPost:
			assert.Equal(t, "symbol", r.URL.Query().Get("on_conflict"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&recorded))
			w.WriteHeader(http.StatusCreated)
		}
	})

	ctx := context.Background()
	at, ok, err := c.LastPriceFetch(ctx, " aapl ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fetchedAt.Equal(at))

	_, ok, err = c.LastPriceFetch(ctx, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.RecordPriceFetch(ctx, "msft", fetchedAt))
	require.Len(t, recorded, 1)
	assert.Equal(t, "MSFT", recorded[0]["symbol"])
	assert.Equal(t, "2026-03-01T12:00:00Z", recorded[0]["last_fetched_at"])
}
