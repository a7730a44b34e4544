package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Global price-fetch log: one row per symbol, shared by all users
// ============================================================

type priceFetchRow struct {
	Symbol        string    `json:"symbol"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
}

// LastPriceFetch returns when symbol was last fetched upstream by any client.
func (c *Client) LastPriceFetch(ctx context.Context, symbol string) (time.Time, bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LastPriceFetch")
	defer span.End()
	span.SetAttributes(attribute.String("price.symbol", symbol))

	path := fmt.Sprintf("%s?symbol=%s&limit=1", tablePriceFetchLog, eq(normalizeSymbol(symbol)))
	var rows []priceFetchRow
	err := c.getRows(ctx, path, &rows)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].LastFetchedAt, true, nil
}

// RecordPriceFetch upserts the symbol's fetch time.
func (c *Client) RecordPriceFetch(ctx context.Context, symbol string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.RecordPriceFetch")
	defer span.End()
	span.SetAttributes(attribute.String("price.symbol", symbol))

	row := priceFetchRow{Symbol: normalizeSymbol(symbol), LastFetchedAt: at.UTC()}
	return resilience.Execute(c.cb, func() error {
		_, err := c.doPost(ctx, tablePriceFetchLog+"?on_conflict=symbol", []priceFetchRow{row}, preferUpsert)
		return err
	})
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
