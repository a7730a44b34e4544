package client

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// FallbackPriceSource asks each source in turn and returns the first
// finite, positive price.
type FallbackPriceSource struct {
	sources []port.PriceSource
	logger  *zap.Logger
}

// NewFallbackPriceSource chains sources in priority order.
func NewFallbackPriceSource(logger *zap.Logger, sources ...port.PriceSource) *FallbackPriceSource {
	return &FallbackPriceSource{sources: sources, logger: logger}
}

func (f *FallbackPriceSource) Name() string {
	names := make([]string, len(f.sources))
	for i, s := range f.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

// GetPrice returns the first valid price, or the last source's error.
func (f *FallbackPriceSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := tracer.Start(ctx, "FallbackPriceSource.GetPrice")
	defer span.End()
	span.SetAttributes(attribute.String("price.symbol", symbol))

	if len(f.sources) == 0 {
		return 0, &domain.ErrExternalService{Service: "prices", Err: errors.New("no price source configured")}
	}

	var lastErr error
	for _, src := range f.sources {
		price, err := src.GetPrice(ctx, symbol)
		if err == nil && (math.IsNaN(price) || math.IsInf(price, 0) || price <= 0) {
			err = &domain.ErrInvalidPrice{Symbol: symbol, Price: price}
		}
		if err == nil {
			span.SetAttributes(attribute.String("price.source", src.Name()))
			return price, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		f.logger.Warn("price source failed, trying next",
			zap.String("source", src.Name()),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		lastErr = err
	}
	return 0, lastErr
}
