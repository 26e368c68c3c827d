// Package pricecache keeps recently fetched spot prices in redis so that listing
// the portfolio does not hit the exchange for every coin on every read.
package pricecache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const keyPrefix = "price:"

// Source is where prices come from on a cache miss.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// store is the subset of *redis.Client used by the cache.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache is a read-through price cache. Redis failures are logged and the source is used directly.
type Cache struct {
	store  store
	source Source
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps source with a redis backed cache holding each price for ttl.
func New(client *redis.Client, source Source, ttl time.Duration, logger *zap.Logger) *Cache {
	return newCache(client, source, ttl, logger)
}

func newCache(s store, source Source, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		store:  s,
		source: source,
		ttl:    ttl,
		logger: logger.Named("pricecache"),
	}
}

// GetPrice returns the cached price of symbol, fetching and storing it on a miss.
func (c *Cache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := keyPrefix + strings.ToUpper(symbol)

	cached, err := c.store.Get(ctx, key).Result()
	switch {
	case err == nil:
		if price, parseErr := decimal.NewFromString(cached); parseErr == nil {
			return price, nil
		}
		c.logger.Warn("Discarding unparsable cached price", zap.String("key", key), zap.String("value", cached))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Price cache read failed", zap.String("key", key), zap.Error(err))
	}

	price, err := c.source.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.store.Set(ctx, key, price.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("Price cache write failed", zap.String("key", key), zap.Error(err))
	}
	return price, nil
}
