// Package portfolio keeps coin positions consistent with their transaction history
// and serves the enriched coin list.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"crypto-tracker-go/internal/binance"
	"crypto-tracker-go/internal/config"
	"crypto-tracker-go/internal/events"
	"crypto-tracker-go/internal/ledger"
	"crypto-tracker-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const publishTimeout = 5 * time.Second

// MarketData is the part of the exchange client the service needs besides prices.
type MarketData interface {
	GetSymbolInfo(ctx context.Context, symbol string) (*binance.SymbolInfo, error)
	Get24hrTicker(ctx context.Context, symbol string) (*binance.Ticker24hr, error)
}

// PriceLookup resolves the current price of a symbol. It is either the exchange
// client itself or a cache in front of it.
type PriceLookup interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Service implements the coin and transaction operations.
type Service struct {
	logger    *zap.Logger
	cfg       config.Portfolio
	db        *gorm.DB
	market    MarketData
	prices    PriceLookup
	publisher events.Publisher
	locks     *symbolLocks
}

// NewService creates a new Service. A nil publisher disables events.
func NewService(logger *zap.Logger, cfg config.Portfolio, db *gorm.DB, market MarketData, prices PriceLookup, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.EnrichConcurrency < 1 {
		cfg.EnrichConcurrency = 1
	}
	return &Service{
		logger:    logger.Named("portfolio"),
		cfg:       cfg,
		db:        db,
		market:    market,
		prices:    prices,
		publisher: publisher,
		locks:     newSymbolLocks(),
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CoinDetail is a coin with its 24 hour range and unrealised profit or loss.
type CoinDetail struct {
	models.Coin
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	ProfitLoss         decimal.Decimal `json:"profitLoss"`
}

// ListCoins filters, prices, sorts and pages the tracked coins.
func (s *Service) ListCoins(ctx context.Context, q CoinQuery) (*CoinPage, error) {
	q = q.normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	var coins []models.Coin
	if err := s.db.WithContext(ctx).Order("symbol").Find(&coins).Error; err != nil {
		return nil, fmt.Errorf("failed to list coins: %w", err)
	}

	coins = filterCoins(coins, q.Filter)
	s.enrichPrices(ctx, coins)
	sortCoins(coins, q.Sort, q.Order)

	return &CoinPage{
		Data:       paginate(coins, q.Page, q.PageSize),
		TotalCount: len(coins),
	}, nil
}

// GetCoin returns one coin with its current price.
func (s *Service) GetCoin(ctx context.Context, symbol string) (*models.Coin, error) {
	coin, err := findCoin(s.db.WithContext(ctx), normalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	s.enrichPrice(ctx, coin)
	return coin, nil
}

// GetCoinDetail returns a coin with its 24 hour high and low and its profit or loss.
func (s *Service) GetCoinDetail(ctx context.Context, symbol string) (*CoinDetail, error) {
	coin, err := findCoin(s.db.WithContext(ctx), normalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var priceErr error
	var ticker *binance.Ticker24hr
	var tickerErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		priceErr = s.enrichPrice(ctx, coin)
	}()
	go func() {
		defer wg.Done()
		ticker, tickerErr = s.market.Get24hrTicker(ctx, coin.Symbol)
	}()
	wg.Wait()

	if tickerErr != nil {
		return nil, fmt.Errorf("failed to load details of %s: %w", coin.Symbol, tickerErr)
	}
	if priceErr != nil {
		coin.SetCurrentPrice(ticker.LastPrice)
	}

	return &CoinDetail{
		Coin:               *coin,
		HighPrice:          ticker.HighPrice,
		LowPrice:           ticker.LowPrice,
		PriceChangePercent: ticker.PriceChangePercent,
		ProfitLoss:         coin.CurrentPrice.Sub(coin.AverageBuyPrice).Mul(coin.TotalQuantity),
	}, nil
}

// CreateCoin registers a new symbol, resolving its assets from the exchange.
func (s *Service) CreateCoin(ctx context.Context, in *models.Coin) (*models.Coin, error) {
	symbol := normalizeSymbol(in.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidCoin)
	}
	if in.TotalQuantity.IsNegative() || in.AverageBuyPrice.IsNegative() {
		return nil, fmt.Errorf("%w: quantity and average buy price must not be negative", ErrInvalidCoin)
	}

	// Checked again under the lock; this only spares the exchange a lookup.
	if err := s.ensureNoCoin(s.db.WithContext(ctx), symbol); err != nil {
		return nil, err
	}

	info, err := s.market.GetSymbolInfo(ctx, symbol)
	if err != nil {
		if errors.Is(err, binance.ErrSymbolNotFound) {
			return nil, fmt.Errorf("%w: %s is not listed on the exchange", ErrInvalidSymbol, symbol)
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", symbol, err)
	}

	coin := &models.Coin{
		Symbol:          symbol,
		Name:            info.BaseAsset,
		QuoteAsset:      info.QuoteAsset,
		TotalQuantity:   in.TotalQuantity,
		AverageBuyPrice: in.AverageBuyPrice,
		Image:           in.Image,
	}
	if coin.TotalQuantity.IsZero() {
		coin.AverageBuyPrice = decimal.Zero
	}

	err = s.inLockedTx(ctx, symbol, func(tx *gorm.DB) error {
		if err := s.ensureNoCoin(tx, symbol); err != nil {
			return err
		}
		if err := tx.Create(coin).Error; err != nil {
			return fmt.Errorf("failed to create coin %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Coin registered", zap.String("symbol", symbol), zap.String("base", coin.Name), zap.String("quote", coin.QuoteAsset))
	s.publish(ctx, events.Event{EventType: events.CoinCreated, Symbol: symbol, Coin: coin})
	return coin, nil
}

// UpdateCoin changes the image of a coin. Every other field is owned by the ledger.
func (s *Service) UpdateCoin(ctx context.Context, symbol string, in *models.Coin) (*models.Coin, error) {
	symbol = normalizeSymbol(symbol)
	if in.Symbol != "" && normalizeSymbol(in.Symbol) != symbol {
		return nil, fmt.Errorf("%w: body symbol %s does not match %s", ErrIDMismatch, in.Symbol, symbol)
	}

	unlock := s.locks.lock(symbol)
	defer unlock()

	db := s.db.WithContext(ctx)
	coin, err := findCoin(db, symbol)
	if err != nil {
		return nil, err
	}

	res := db.Model(&models.Coin{}).Where("symbol = ?", symbol).Update("image", in.Image)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update coin %s: %w", symbol, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: coin %s", ErrNotFound, symbol)
	}

	coin.Image = in.Image
	return coin, nil
}

// DeleteCoin removes a coin that has no transactions.
func (s *Service) DeleteCoin(ctx context.Context, symbol string) error {
	symbol = normalizeSymbol(symbol)

	err := s.inLockedTx(ctx, symbol, func(tx *gorm.DB) error {
		if _, err := findCoin(tx, symbol); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Transaction{}).Where("coin_id = ?", symbol).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count transactions of %s: %w", symbol, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s has %d", ErrCoinInUse, symbol, count)
		}

		if err := tx.Delete(&models.Coin{}, "symbol = ?", symbol).Error; err != nil {
			return fmt.Errorf("failed to delete coin %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Coin deleted", zap.String("symbol", symbol))
	s.publish(ctx, events.Event{EventType: events.CoinDeleted, Symbol: symbol})
	return nil
}

// ListTransactions returns every transaction, newest first.
func (s *Service) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	transactions := []models.Transaction{}
	if err := s.db.WithContext(ctx).Order("transaction_date desc, id desc").Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}

// ListTransactionsByCoin returns the transactions of one coin, newest first.
func (s *Service) ListTransactionsByCoin(ctx context.Context, symbol string) ([]models.Transaction, error) {
	transactions := []models.Transaction{}
	err := s.db.WithContext(ctx).
		Where("coin_id = ?", normalizeSymbol(symbol)).
		Order("transaction_date desc, id desc").
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of %s: %w", symbol, err)
	}
	return transactions, nil
}

// GetTransaction returns a single transaction.
func (s *Service) GetTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	return findTransaction(s.db.WithContext(ctx), id)
}

func validateTransaction(t *models.Transaction) error {
	if err := t.Entry().Validate(); err != nil {
		return err
	}
	if t.Fee.Valid && t.Fee.Decimal.IsNegative() {
		return fmt.Errorf("%w: fee must not be negative", ledger.ErrInvalidTransaction)
	}
	return nil
}

// CreateTransaction records a buy or sell and applies it to the owning coin.
func (s *Service) CreateTransaction(ctx context.Context, in *models.Transaction) (*models.Transaction, error) {
	if err := validateTransaction(in); err != nil {
		return nil, err
	}

	t := &models.Transaction{CoinID: normalizeSymbol(in.CoinID)}
	t.CopyDetails(in)
	if t.TransactionDate.IsZero() {
		t.TransactionDate = time.Now().UTC()
	}

	var coin *models.Coin
	err := s.inLockedTx(ctx, t.CoinID, func(tx *gorm.DB) error {
		var err error
		coin, err = findCoin(tx, t.CoinID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownCoin, t.CoinID)
		}
		if err != nil {
			return err
		}

		position, err := ledger.Apply(coin.Position(), t.Entry())
		if err != nil {
			return err
		}
		coin.SetPosition(position)

		if err := savePosition(tx, coin); err != nil {
			return err
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction recorded",
		zap.Uint("transaction_id", t.ID),
		zap.String("symbol", t.CoinID),
		zap.String("type", string(t.TransactionType)),
		zap.String("quantity", t.Quantity.String()),
		zap.String("price", t.Price.String()),
	)
	s.publish(ctx, events.Event{EventType: events.TransactionCreated, Symbol: t.CoinID, Coin: coin, Transaction: t})
	return t, nil
}

// UpdateTransaction replaces the details of a transaction: the stored version is
// reversed and the new one applied, in request order rather than date order.
func (s *Service) UpdateTransaction(ctx context.Context, id uint, in *models.Transaction) (*models.Transaction, error) {
	if in.ID != 0 && in.ID != id {
		return nil, fmt.Errorf("%w: body id %d does not match %d", ErrIDMismatch, in.ID, id)
	}
	if err := validateTransaction(in); err != nil {
		return nil, err
	}

	existing, err := findTransaction(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if in.CoinID != "" && normalizeSymbol(in.CoinID) != existing.CoinID {
		return nil, fmt.Errorf("%w: transaction %d belongs to %s", ErrIDMismatch, id, existing.CoinID)
	}

	var coin *models.Coin
	err = s.inLockedTx(ctx, existing.CoinID, func(tx *gorm.DB) error {
		// Re-read under the lock: it may have changed or gone since the first read.
		var err error
		existing, err = findTransaction(tx, id)
		if err != nil {
			return err
		}
		coin, err = findCoin(tx, existing.CoinID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownCoin, existing.CoinID)
		}
		if err != nil {
			return err
		}

		position, err := ledger.Replace(coin.Position(), existing.Entry(), in.Entry())
		if err != nil {
			return err
		}
		coin.SetPosition(position)

		date := existing.TransactionDate
		existing.CopyDetails(in)
		if existing.TransactionDate.IsZero() {
			existing.TransactionDate = date
		}

		if err := savePosition(tx, coin); err != nil {
			return err
		}
		if err := tx.Save(existing).Error; err != nil {
			return fmt.Errorf("failed to update transaction %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction updated", zap.Uint("transaction_id", id), zap.String("symbol", existing.CoinID))
	s.publish(ctx, events.Event{EventType: events.TransactionUpdated, Symbol: existing.CoinID, Coin: coin, Transaction: existing})
	return existing, nil
}

// DeleteTransaction reverses a transaction on its coin and removes it.
func (s *Service) DeleteTransaction(ctx context.Context, id uint) error {
	existing, err := findTransaction(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}

	var coin *models.Coin
	err = s.inLockedTx(ctx, existing.CoinID, func(tx *gorm.DB) error {
		var err error
		existing, err = findTransaction(tx, id)
		if err != nil {
			return err
		}

		coin, err = findCoin(tx, existing.CoinID)
		switch {
		case errors.Is(err, ErrNotFound):
			// Orphaned record: nothing to reverse.
			coin = nil
		case err != nil:
			return err
		default:
			position, err := ledger.Reverse(coin.Position(), existing.Entry())
			if err != nil {
				return err
			}
			coin.SetPosition(position)
			if err := savePosition(tx, coin); err != nil {
				return err
			}
		}

		if err := tx.Delete(&models.Transaction{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete transaction %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Transaction deleted", zap.Uint("transaction_id", id), zap.String("symbol", existing.CoinID))
	s.publish(ctx, events.Event{EventType: events.TransactionDeleted, Symbol: existing.CoinID, Coin: coin, Transaction: existing})
	return nil
}

// inLockedTx runs fn in one database transaction while holding the lock of symbol.
// The lock is released as soon as the transaction ends, so callers publish after it returns.
func (s *Service) inLockedTx(ctx context.Context, symbol string, fn func(tx *gorm.DB) error) error {
	unlock := s.locks.lock(symbol)
	defer unlock()
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Service) ensureNoCoin(db *gorm.DB, symbol string) error {
	_, err := findCoin(db, symbol)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

func findCoin(db *gorm.DB, symbol string) (*models.Coin, error) {
	var coin models.Coin
	if err := db.First(&coin, "symbol = ?", symbol).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: coin %s", ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("failed to load coin %s: %w", symbol, err)
	}
	return &coin, nil
}

func findTransaction(db *gorm.DB, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := db.First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	return &t, nil
}

// savePosition writes the aggregate fields of coin if nobody else changed them since it was read.
func savePosition(tx *gorm.DB, coin *models.Coin) error {
	res := tx.Model(&models.Coin{}).
		Where("symbol = ? AND version = ?", coin.Symbol, coin.Version).
		Updates(map[string]any{
			"total_quantity":    coin.TotalQuantity,
			"average_buy_price": coin.AverageBuyPrice,
			"version":           coin.Version + 1,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save position of %s: %w", coin.Symbol, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := findCoin(tx, coin.Symbol); err != nil {
			return err
		}
		return fmt.Errorf("%w: coin %s", ErrStorageConflict, coin.Symbol)
	}
	coin.Version++
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", event.EventType),
			zap.String("symbol", event.Symbol),
			zap.Error(err),
		)
	}
}
