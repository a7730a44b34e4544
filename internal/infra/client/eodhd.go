package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const DefaultEODHDBaseURL = "https://eodhd.com/api"

// EODHDClient reads real-time quotes from the EODHD API.
type EODHDClient struct {
	up     *upstream
	apiKey string
}

// NewEODHDClient creates an EODHD price source.
func NewEODHDClient(apiKey string, opts ...Option) *EODHDClient {
	return &EODHDClient{
		up:     newUpstream("eodhd", DefaultEODHDBaseURL, opts),
		apiKey: apiKey,
	}
}

func (c *EODHDClient) Name() string { return "eodhd" }

type realTimeResponse struct {
	Code      string      `json:"code"`
	Timestamp int64       `json:"timestamp"`
	Close     flexFloat64 `json:"close"`
}

// GetPrice returns the last traded price (the real-time "close").
func (c *EODHDClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := tracer.Start(ctx, "EODHDClient.GetPrice")
	defer span.End()
	span.SetAttributes(attribute.String("price.symbol", symbol))

	params := url.Values{}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	path := "/real-time/" + url.PathEscape(strings.ToUpper(symbol))
	reqURL := fmt.Sprintf("%s%s?%s", strings.TrimRight(c.up.baseURL, "/"), path, params.Encode())

	var resp realTimeResponse
	if err := c.up.getJSON(ctx, reqURL, path, symbol, &resp); err != nil {
		return 0, err
	}
	return float64(resp.Close), nil
}
