package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"

	"go.uber.org/zap"
)

// PriceCache keeps prices in memory and mirrors them to a local JSON file so
// a restarted process does not refetch prices that are still fresh.
// Freshness is measured from the price's fetch timestamp.
type PriceCache struct {
	mem    *InMemory[domain.PriceEntry]
	path   string
	logger *zap.Logger

	writeMu sync.Mutex
}

// NewPriceCache builds a price cache and loads any entries persisted at path.
// An empty path keeps the cache in memory only.
func NewPriceCache(ttl time.Duration, path string, logger *zap.Logger, opts ...Option) *PriceCache {
	c := &PriceCache{
		mem:    New[domain.PriceEntry](ttl, opts...),
		path:   path,
		logger: logger,
	}
	if path != "" {
		n, err := c.load()
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			logger.Warn("price cache: failed to load persisted prices",
				zap.String("path", path),
				zap.Error(err),
			)
		default:
			logger.Info("price cache: loaded persisted prices",
				zap.String("path", path),
				zap.Int("entries", n),
			)
		}
	}
	return c
}

// Get returns the fresh entry for symbol, if any.
func (c *PriceCache) Get(symbol string) (domain.PriceEntry, bool) {
	return c.mem.Get(cacheKey(symbol))
}

// Set stores entry and writes the cache through to disk.
// Persistence failures are logged; the in-memory entry is kept.
func (c *PriceCache) Set(entry domain.PriceEntry) {
	c.mem.SetAt(cacheKey(entry.Symbol), entry, entry.Timestamp)

	if c.path == "" {
		return
	}
	if err := c.save(); err != nil {
		c.logger.Warn("price cache: failed to persist prices",
			zap.String("path", c.path),
			zap.Error(err),
		)
	}
}

// Close stops background eviction.
func (c *PriceCache) Close() {
	c.mem.Close()
}

func (c *PriceCache) load() (int, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return 0, err
	}

	var entries []domain.PriceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("decode price cache: %w", err)
	}
	for _, e := range entries {
		c.mem.SetAt(cacheKey(e.Symbol), e, e.Timestamp)
	}
	return len(entries), nil
}

func (c *PriceCache) save() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	fresh := c.mem.Fresh()
	entries := make([]domain.PriceEntry, 0, len(fresh))
	for _, e := range fresh {
		entries = append(entries, e.Value)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func cacheKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
