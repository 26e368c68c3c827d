// Package api exposes the portfolio and market data over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"crypto-tracker-go/internal/binance"
	"crypto-tracker-go/internal/ledger"
	"crypto-tracker-go/internal/models"
	"crypto-tracker-go/internal/portfolio"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PortfolioService is the set of portfolio operations served by the API.
type PortfolioService interface {
	ListCoins(ctx context.Context, q portfolio.CoinQuery) (*portfolio.CoinPage, error)
	GetCoin(ctx context.Context, symbol string) (*models.Coin, error)
	GetCoinDetail(ctx context.Context, symbol string) (*portfolio.CoinDetail, error)
	CreateCoin(ctx context.Context, in *models.Coin) (*models.Coin, error)
	UpdateCoin(ctx context.Context, symbol string, in *models.Coin) (*models.Coin, error)
	DeleteCoin(ctx context.Context, symbol string) error

	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	ListTransactionsByCoin(ctx context.Context, symbol string) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id uint) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, in *models.Transaction) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, id uint, in *models.Transaction) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, id uint) error
}

// MarketData is the pass-through part of the exchange client.
type MarketData interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Get24hrTicker(ctx context.Context, symbol string) (*binance.Ticker24hr, error)
	GetKlines(ctx context.Context, req binance.KlinesRequest) ([]binance.Candle, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	log     *zap.Logger
	service PortfolioService
	market  MarketData
}

// NewHandler creates a new Handler.
func NewHandler(log *zap.Logger, service PortfolioService, market MarketData) *Handler {
	return &Handler{
		log:     log.Named("api"),
		service: service,
		market:  market,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, portfolio.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrStorageConflict):
		return http.StatusConflict
	case errors.Is(err, portfolio.ErrDuplicateSymbol),
		errors.Is(err, portfolio.ErrInvalidSymbol),
		errors.Is(err, portfolio.ErrInvalidCoin),
		errors.Is(err, portfolio.ErrIDMismatch),
		errors.Is(err, portfolio.ErrCoinInUse),
		errors.Is(err, ledger.ErrInsufficientHoldings),
		errors.Is(err, ledger.ErrUnknownCoin),
		errors.Is(err, ledger.ErrInvalidTransaction),
		errors.Is(err, binance.ErrSymbolNotFound),
		errors.Is(err, binance.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, binance.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as a JSON error body. Unexpected errors are logged
// and their details are not sent to the client.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		h.log.Error("Request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal server error"
	case status == http.StatusBadGateway:
		h.log.Warn("Market data unavailable", zap.String("path", r.URL.Path), zap.Error(err))
	}
	respondError(w, status, msg)
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// queryInt reads an optional integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
