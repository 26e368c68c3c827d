package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SetupRoutes configures all API routes. When staticDir is not empty every other
// GET is served from it, falling back to index.html for client-side routes.
func SetupRoutes(handler *Handler, staticDir string) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(handler.log))

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Coin routes
	api.HandleFunc("/coins", handler.ListCoins).Methods("GET")
	api.HandleFunc("/coins", handler.CreateCoin).Methods("POST")
	api.HandleFunc("/coins/{symbol}", handler.GetCoin).Methods("GET")
	api.HandleFunc("/coins/{symbol}/details", handler.GetCoinDetail).Methods("GET")
	api.HandleFunc("/coins/{symbol}", handler.UpdateCoin).Methods("PUT")
	api.HandleFunc("/coins/{symbol}", handler.DeleteCoin).Methods("DELETE")

	// Transaction routes
	api.HandleFunc("/transactions", handler.ListTransactions).Methods("GET")
	api.HandleFunc("/transactions", handler.CreateTransaction).Methods("POST")
	api.HandleFunc("/transactions/ByCoin/{symbol}", handler.ListTransactionsByCoin).Methods("GET")
	api.HandleFunc("/transactions/{id:[0-9]+}", handler.GetTransaction).Methods("GET")
	api.HandleFunc("/transactions/{id:[0-9]+}", handler.UpdateTransaction).Methods("PUT")
	api.HandleFunc("/transactions/{id:[0-9]+}", handler.DeleteTransaction).Methods("DELETE")

	// Market data routes
	api.HandleFunc("/market/price", handler.GetPrice).Methods("GET")
	api.HandleFunc("/market/ticker24h", handler.GetTicker24h).Methods("GET")
	api.HandleFunc("/market/klines", handler.GetKlines).Methods("GET")

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "no such endpoint")
	})

	if staticDir != "" {
		r.PathPrefix("/").Handler(spaHandler{staticDir: staticDir}).Methods("GET")
	}

	return r
}

// spaHandler serves the single page application from staticDir.
type spaHandler struct {
	staticDir string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticDir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
		return
	}
	http.FileServer(http.Dir(h.staticDir)).ServeHTTP(w, r)
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func requestLogger(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if !strings.HasPrefix(r.URL.Path, "/api") {
				return
			}
			log.Debug("Handled request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
