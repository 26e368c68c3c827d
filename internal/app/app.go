// Package app assembles the tracker's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"crypto-tracker-go/internal/binance"
	"crypto-tracker-go/internal/config"
	"crypto-tracker-go/internal/database"
	"crypto-tracker-go/internal/events"
	"crypto-tracker-go/internal/portfolio"
	"crypto-tracker-go/internal/pricecache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	DB        *gorm.DB
	Market    *binance.RestClient
	Prices    portfolio.PriceLookup
	Publisher events.Publisher
	Service   *portfolio.Service

	redis *redis.Client
}

// New connects to the database, the exchange and, when configured, redis and kafka.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	a := &App{
		DB:        db,
		Market:    binance.NewRestClient(&cfg.Binance, log),
		Publisher: events.Nop{},
	}
	a.Prices = a.Market

	if cfg.Cache.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// The cache falls back to the exchange on every failure, so keep going.
			log.Warn("Redis is not reachable, prices will not be cached until it is", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			log.Info("Price cache enabled", zap.String("addr", cfg.Cache.RedisAddr), zap.Duration("ttl", cfg.Cache.PriceTTL))
		}
		a.Prices = pricecache.New(a.redis, a.Market, cfg.Cache.PriceTTL, log)
	}

	if len(cfg.Events.Brokers) > 0 {
		a.Publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		log.Info("Publishing portfolio events", zap.Strings("brokers", cfg.Events.Brokers), zap.String("topic", cfg.Events.Topic))
	}

	a.Service = portfolio.NewService(log, cfg.Portfolio, db, a.Market, a.Prices, a.Publisher)
	return a, nil
}

// Close releases every connection held by the app.
func (a *App) Close() error {
	var errs []error
	if err := a.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
