package api

import (
	"net/http"

	"crypto-tracker-go/internal/models"
	"crypto-tracker-go/internal/portfolio"
	"github.com/gorilla/mux"
)

// ListCoins handles GET /api/coins
func (h *Handler) ListCoins(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		respondError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	pageSize, err := queryInt(r, "pageSize", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "pageSize must be an integer")
		return
	}

	q := r.URL.Query()
	result, err := h.service.ListCoins(r.Context(), portfolio.CoinQuery{
		Filter:   q.Get("filter"),
		Sort:     q.Get("sort"),
		Order:    q.Get("order"),
		Page:     int(page),
		PageSize: int(pageSize),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetCoin handles GET /api/coins/{symbol}
func (h *Handler) GetCoin(w http.ResponseWriter, r *http.Request) {
	coin, err := h.service.GetCoin(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, coin)
}

// GetCoinDetail handles GET /api/coins/{symbol}/details
func (h *Handler) GetCoinDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetCoinDetail(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// CreateCoin handles POST /api/coins
func (h *Handler) CreateCoin(w http.ResponseWriter, r *http.Request) {
	var in models.Coin
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	coin, err := h.service.CreateCoin(r.Context(), &in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, coin)
}

// UpdateCoin handles PUT /api/coins/{symbol}
func (h *Handler) UpdateCoin(w http.ResponseWriter, r *http.Request) {
	var in models.Coin
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.service.UpdateCoin(r.Context(), mux.Vars(r)["symbol"], &in); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteCoin handles DELETE /api/coins/{symbol}
func (h *Handler) DeleteCoin(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCoin(r.Context(), mux.Vars(r)["symbol"]); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
