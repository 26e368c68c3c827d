package portfolio

import (
	"context"
	"sync"

	"crypto-tracker-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// enrichPrices fills in the current price of every coin, at most EnrichConcurrency at a time.
func (s *Service) enrichPrices(ctx context.Context, coins []models.Coin) {
	sem := make(chan struct{}, s.cfg.EnrichConcurrency)
	var wg sync.WaitGroup

	for i := range coins {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(c *models.Coin) {
			defer wg.Done()
			defer func() { <-sem }()
			s.enrichPrice(ctx, c)
		}(&coins[i])
	}
	wg.Wait()
}

// enrichPrice sets the current price of coin. On failure the price is left at zero
// and the error is returned for callers that have a fallback.
func (s *Service) enrichPrice(ctx context.Context, coin *models.Coin) error {
	if s.cfg.EnrichTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EnrichTimeout)
		defer cancel()
	}

	price, err := s.prices.GetPrice(ctx, coin.Symbol)
	if err != nil {
		s.logger.Warn("Failed to fetch current price", zap.String("symbol", coin.Symbol), zap.Error(err))
		coin.SetCurrentPrice(decimal.Zero)
		return err
	}
	coin.SetCurrentPrice(price)
	return nil
}
