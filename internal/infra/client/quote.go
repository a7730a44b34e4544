package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// QuoteAPIClient reads prices from a plain quote API:
// GET {base}/v1/quote/{symbol} -> {"symbol": "...", "price": 123.4}.
type QuoteAPIClient struct {
	up *upstream
}

// NewQuoteAPIClient creates a quote API price source.
func NewQuoteAPIClient(baseURL string, opts ...Option) *QuoteAPIClient {
	return &QuoteAPIClient{up: newUpstream("quote-api", baseURL, opts)}
}

func (c *QuoteAPIClient) Name() string { return "quote-api" }

type quoteResponse struct {
	Symbol string      `json:"symbol"`
	Price  flexFloat64 `json:"price"`
}

// GetPrice returns the quoted price of symbol.
func (c *QuoteAPIClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := tracer.Start(ctx, "QuoteAPIClient.GetPrice")
	defer span.End()
	span.SetAttributes(attribute.String("price.symbol", symbol))

	path := "/v1/quote/" + url.PathEscape(strings.ToUpper(symbol))
	reqURL := fmt.Sprintf("%s%s", strings.TrimRight(c.up.baseURL, "/"), path)

	var resp quoteResponse
	if err := c.up.getJSON(ctx, reqURL, path, symbol, &resp); err != nil {
		return 0, err
	}
	return float64(resp.Price), nil
}
