// Package client holds the upstream share price sources.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("client")

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// APIError is a non-2xx answer from a price API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("price API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// upstream is the transport shared by the price clients: a token bucket,
// a bulkhead, a circuit breaker and retries, outermost first.
type upstream struct {
	name       string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	limiter    *rate.Limiter
	bulkhead   *resilience.Bulkhead
}

// Option configures a price client.
type Option func(*upstream)

// WithBaseURL sets the base URL.
func WithBaseURL(baseURL string) Option {
	return func(u *upstream) { u.baseURL = baseURL }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(u *upstream) { u.httpClient = c }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(requestsPerSecond int) Option {
	return func(u *upstream) {
		if requestsPerSecond > 0 {
			u.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithResilience sets retries and the concurrency cap.
func WithResilience(cfg resilience.Config) Option {
	return func(u *upstream) {
		u.cfg = cfg
		u.bulkhead = resilience.NewBulkhead(cfg.MaxConcurrency)
	}
}

// WithCircuitBreaker replaces the client's own breaker.
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(u *upstream) { u.cb = cb }
}

func newUpstream(name, baseURL string, opts []Option) *upstream {
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: 200 * time.Millisecond, MaxConcurrency: 4}
	u := &upstream{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		cb:         resilience.NewCircuitBreaker(name),
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// getJSON fetches reqURL and decodes the body into out. A 404 is reported
// as an unknown symbol and is neither retried nor counted by the breaker.
func (u *upstream) getJSON(ctx context.Context, reqURL, endpoint, symbol string, out any) error {
	if err := u.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	err := u.bulkhead.Do(ctx, func() error {
		return resilience.Execute(u.cb, func() error {
			return resilience.RetryWithBackoff(ctx, u.cfg, func() error {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
				if err != nil {
					return err
				}
				req.Header.Set("Accept", "application/json")

				resp, err := u.httpClient.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()

				if resp.StatusCode == http.StatusNotFound {
					return &domain.ErrNotFound{Resource: "symbol", ID: symbol}
				}
				if resp.StatusCode != http.StatusOK {
					body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
					return &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: endpoint}
				}
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
				return nil
			})
		})
	})
	if err == nil {
		return nil
	}

	switch domain.Kind(err) {
	case domain.KindNotFound, domain.KindUnavailable:
		return err
	}
	return &domain.ErrExternalService{Service: u.name, Err: err}
}

// flexFloat64 accepts a JSON number, a numeric string, or a placeholder
// such as "NA" (decoded as 0).
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cannot unmarshal %s into float64", string(data))
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat64(num)
	return nil
}
