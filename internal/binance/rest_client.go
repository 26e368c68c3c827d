package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-tracker-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.binance.com/api/v3"
	testnetBaseURL = "https://testnet.binance.vision/api/v3"

	// Binance answers 418 once an IP keeps calling after being rate limited.
	statusIPBanned = 418

	codeInvalidSymbol = -1121
	maxKlinesLimit    = 1000
)

var (
	// ErrUpstreamUnavailable is returned when Binance cannot answer: retries were exhausted
	// or the response was an error or could not be decoded.
	ErrUpstreamUnavailable = errors.New("market data unavailable")
	// ErrSymbolNotFound is returned when Binance does not list the requested symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrInvalidRequest is returned for parameters rejected before any call is made.
	ErrInvalidRequest = errors.New("invalid market data request")
)

var klineIntervals = map[string]struct{}{
	"1s": {}, "1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {}, "1M": {},
}

// RestClientInterface defines the market-data calls used by the portfolio.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	Get24hrTicker(ctx context.Context, symbol string) (*Ticker24hr, error)
	GetKlines(ctx context.Context, req KlinesRequest) ([]Candle, error)
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client      *resty.Client
	logger      *zap.Logger
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	logger = logger.Named("binance")

	url := cfg.BaseURL
	switch {
	case url != "":
		logger.Info("Using custom Binance endpoint", zap.String("url", url))
	case cfg.Testnet:
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	default:
		url = baseURL
		logger.Info("Using Binance Production API")
	}

	client := resty.New().
		SetBaseURL(url).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.ApiKey != "" {
		client.SetHeader("X-MBX-APIKEY", cfg.ApiKey)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &RestClient{
		client:      client,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		maxRetries:  maxRetries,
		backoffBase: cfg.BackoffBase,
	}
}

// APIError is the error body Binance returns, e.g. {"code":-1121,"msg":"Invalid symbol."}.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// Only rate limiting (429) and IP bans (418) are retried; anything else fails at once.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	req.SetContext(ctx).SetError(&APIError{})

	var resp *resty.Response
	var err error

	for i := 0; i < c.maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter wait failed: %v", ErrUpstreamUnavailable, err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
		}

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode()
		}
		if statusCode != http.StatusTooManyRequests && statusCode != statusIPBanned {
			return nil, classifyFailure(resp, err)
		}

		if i == c.maxRetries-1 {
			break
		}

		// Exponential backoff unless Binance tells us how long to wait.
		retryAfter := c.backoffBase * time.Duration(1<<i)
		if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil && seconds > 0 {
			retryAfter = time.Duration(seconds) * time.Second
		}

		c.logger.Warn("Rate limited by Binance, retrying...",
			zap.Int("attempt", i+1),
			zap.Int("status", statusCode),
			zap.Duration("retry_after", retryAfter),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
		}
	}

	return nil, fmt.Errorf("%w: still rate limited after %d attempts", ErrUpstreamUnavailable, c.maxRetries)
}

func classifyFailure(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if apiErr, ok := resp.Error().(*APIError); ok && apiErr.Code == codeInvalidSymbol {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, apiErr.Msg)
	}
	return fmt.Errorf("%w: request failed with status %s: %s", ErrUpstreamUnavailable, resp.Status(), resp.String())
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	return symbol, nil
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// GetPrice fetches the latest traded price of a symbol.
func (c *RestClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&TickerPrice{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}

	return resp.Result().(*TickerPrice).Price, nil
}

// ExchangeInfoResponse represents the response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// GetSymbolInfo resolves the base and quote assets of a symbol.
func (c *RestClient) GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&ExchangeInfoResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info for %s: %w", symbol, err)
	}

	for _, info := range resp.Result().(*ExchangeInfoResponse).Symbols {
		if info.Symbol == symbol {
			return &info, nil
		}
	}
	return nil, fmt.Errorf("failed to get exchange info for %s: %w", symbol, ErrSymbolNotFound)
}

// Ticker24hr holds the rolling 24 hour statistics of a symbol.
type Ticker24hr struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	OpenTime           int64           `json:"openTime"`
	CloseTime          int64           `json:"closeTime"`
}

// Get24hrTicker fetches the 24 hour statistics of a symbol.
func (c *RestClient) Get24hrTicker(ctx context.Context, symbol string) (*Ticker24hr, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&Ticker24hr{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/24hr", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get 24hr ticker for %s: %w", symbol, err)
	}

	return resp.Result().(*Ticker24hr), nil
}

// KlinesRequest selects a candlestick series. Zero Limit, StartTime or EndTime are omitted.
// Times are Unix milliseconds.
type KlinesRequest struct {
	Symbol    string
	Interval  string
	Limit     int
	StartTime int64
	EndTime   int64
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime    int64           `json:"openTime"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	CloseTime   int64           `json:"closeTime"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
	Trades      int64           `json:"trades"`
}

func (r KlinesRequest) queryParams() (map[string]string, error) {
	symbol, err := normalizeSymbol(r.Symbol)
	if err != nil {
		return nil, err
	}
	if _, ok := klineIntervals[r.Interval]; !ok {
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrInvalidRequest, r.Interval)
	}
	if r.Limit < 0 || r.Limit > maxKlinesLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, maxKlinesLimit)
	}
	if r.StartTime != 0 && r.EndTime != 0 && r.StartTime > r.EndTime {
		return nil, fmt.Errorf("%w: startTime is after endTime", ErrInvalidRequest)
	}

	params := map[string]string{"symbol": symbol, "interval": r.Interval}
	if r.Limit > 0 {
		params["limit"] = strconv.Itoa(r.Limit)
	}
	if r.StartTime > 0 {
		params["startTime"] = strconv.FormatInt(r.StartTime, 10)
	}
	if r.EndTime > 0 {
		params["endTime"] = strconv.FormatInt(r.EndTime, 10)
	}
	return params, nil
}

// GetKlines fetches a candlestick series, oldest bar first.
func (c *RestClient) GetKlines(ctx context.Context, kr KlinesRequest) ([]Candle, error) {
	params, err := kr.queryParams()
	if err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	req := c.client.R().
		SetQueryParams(params).
		SetResult(&rows)

	resp, err := c.doRequest(ctx, http.MethodGet, "/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", params["symbol"], err)
	}

	result := *resp.Result().(*[][]json.RawMessage)
	candles := make([]Candle, 0, len(result))
	for i, row := range result {
		candle, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("%w: kline %d: %v", ErrUpstreamUnavailable, i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseCandle decodes one kline row:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...].
func parseCandle(row []json.RawMessage) (Candle, error) {
	var c Candle
	if len(row) < 9 {
		return c, fmt.Errorf("expected at least 9 fields, got %d", len(row))
	}

	targets := []any{&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.CloseTime, &c.QuoteVolume, &c.Trades}
	for i, target := range targets {
		if err := json.Unmarshal(row[i], target); err != nil {
			return c, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return c, nil
}
