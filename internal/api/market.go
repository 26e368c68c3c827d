package api

import (
	"net/http"
	"strings"

	"crypto-tracker-go/internal/binance"
	"github.com/shopspring/decimal"
)

type priceResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func querySymbol(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
}

// GetPrice handles GET /api/market/price?symbol=
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := querySymbol(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	price, err := h.market.GetPrice(r.Context(), symbol)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, priceResponse{Symbol: symbol, Price: price})
}

// GetTicker24h handles GET /api/market/ticker24h?symbol=
func (h *Handler) GetTicker24h(w http.ResponseWriter, r *http.Request) {
	symbol := querySymbol(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ticker, err := h.market.Get24hrTicker(r.Context(), symbol)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ticker)
}

// GetKlines handles GET /api/market/klines?symbol&interval&limit&startTime&endTime
func (h *Handler) GetKlines(w http.ResponseWriter, r *http.Request) {
	symbol := querySymbol(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	req := binance.KlinesRequest{
		Symbol:   symbol,
		Interval: r.URL.Query().Get("interval"),
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	req.Limit = int(limit)
	if req.StartTime, err = queryInt(r, "startTime", 0); err != nil {
		respondError(w, http.StatusBadRequest, "startTime must be a unix timestamp in milliseconds")
		return
	}
	if req.EndTime, err = queryInt(r, "endTime", 0); err != nil {
		respondError(w, http.StatusBadRequest, "endTime must be a unix timestamp in milliseconds")
		return
	}

	candles, err := h.market.GetKlines(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, candles)
}
