package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/JaimeStill/tally/pkg/cache"
)

type cachedStore struct {
	Store
	cache  cache.System
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps store with a read-through cache of calculation outputs.
// Published outputs invalidate their cache entries, and every entry expires
// after ttl, so a read that raced a publish serves its stale output for at
// most ttl. Cache failures fall back to the wrapped store.
func NewCachedStore(store Store, c cache.System, ttl time.Duration, logger *slog.Logger) Store {
	return &cachedStore{
		Store:  store,
		cache:  c,
		ttl:    ttl,
		logger: logger.With("system", "stats-cache"),
	}
}

func outputCacheKey(expID, stateName, calculationID string) string {
	return "calc:" + expID + ":" + stateName + ":" + calculationID
}

func (c *cachedStore) GetOutput(ctx context.Context, expID, stateName, calculationID string) (*CalculationOutput, error) {
	key := outputCacheKey(expID, stateName, calculationID)

	value, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("output cache read failed", "key", key, "error", err)
	}
	if found {
		var o CalculationOutput
		if err := json.Unmarshal([]byte(value), &o); err == nil {
			return &o, nil
		}
		c.logger.Warn("discarding undecodable cached output", "key", key)
	}

	o, err := c.Store.GetOutput(ctx, expID, stateName, calculationID)
	if err != nil || o == nil {
		return o, err
	}

	if data, err := json.Marshal(o); err == nil {
		if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
			c.logger.Warn("output cache write failed", "key", key, "error", err)
		}
	}
	return o, nil
}

func (c *cachedStore) PutOutputs(ctx context.Context, outputs []CalculationOutput) error {
	if err := c.Store.PutOutputs(ctx, outputs); err != nil {
		return err
	}

	keys := make([]string, len(outputs))
	for i, o := range outputs {
		keys[i] = outputCacheKey(o.ExpID, o.StateName, o.CalculationID)
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Error("output cache invalidation failed", "keys", len(keys), "error", err)
	}
	return nil
}
