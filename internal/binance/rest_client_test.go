package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crypto-tracker-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:      client,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		maxRetries:  3,
		backoffBase: time.Millisecond,
	}

	return rc, server
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		expectedTime := time.Now().UnixMilli()
		mockResponse := fmt.Sprintf(`{"serverTime": %d}`, expectedTime)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			writeJSON(w, http.StatusOK, mockResponse)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		serverTime, err := rc.GetServerTime(context.Background())

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, expectedTime, serverTime)
	})

	t.Run("APIError", func(t *testing.T) {
		// Arrange
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeJSON(w, http.StatusInternalServerError, `{"code": -1001, "msg": "Internal error"}`)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		serverTime, err := rc.GetServerTime(context.Background())

		// Assert
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Contains(t, err.Error(), "failed to get server time")
		assert.Equal(t, int64(0), serverTime)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "server errors are not retried")
	})
}

func TestGetPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			writeJSON(w, http.StatusOK, `{"symbol":"BTCUSDT","price":"64250.12000000"}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		price, err := rc.GetPrice(context.Background(), "btcusdt")

		require.NoError(t, err)
		assert.Equal(t, "64250.12", price.String())
	})

	t.Run("RetriesWhenRateLimited", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				writeJSON(w, http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`)
			case 2:
				writeJSON(w, statusIPBanned, `{"code":-1003,"msg":"IP banned"}`)
			default:
				writeJSON(w, http.StatusOK, `{"symbol":"ETHUSDT","price":"3100.5"}`)
			}
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		price, err := rc.GetPrice(context.Background(), "ETHUSDT")

		require.NoError(t, err)
		assert.Equal(t, "3100.5", price.String())
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeJSON(w, http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetPrice(context.Background(), "ETHUSDT")

		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("UnknownSymbolIsNotRetried", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeJSON(w, http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetPrice(context.Background(), "NOPE")

		assert.ErrorIs(t, err, ErrSymbolNotFound)
		assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("MalformedBody", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"symbol":"BTCUSDT","price":`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetPrice(context.Background(), "BTCUSDT")

		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})

	t.Run("EmptySymbol", func(t *testing.T) {
		rc := &RestClient{}

		_, err := rc.GetPrice(context.Background(), "  ")

		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("CancelledWhileBackingOff", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			writeJSON(w, http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := rc.GetPrice(ctx, "BTCUSDT")

		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestGetSymbolInfo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchangeInfo", r.URL.Path)
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			writeJSON(w, http.StatusOK, `{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"}]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"symbols":[]}`)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	info, err := rc.GetSymbolInfo(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC", info.BaseAsset)
	assert.Equal(t, "USDT", info.QuoteAsset)

	_, err = rc.GetSymbolInfo(context.Background(), "XYZUSDT")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestGet24hrTicker(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker/24hr", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"symbol":"BTCUSDT","priceChange":"-94.99","priceChangePercent":"-0.95",
			"lastPrice":"9900.01","highPrice":"10100.00","lowPrice":"9800.00","volume":"8913.30",
			"quoteVolume":"15.30","openTime":1499783499040,"closeTime":1499869899040}`)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	ticker, err := rc.Get24hrTicker(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	assert.Equal(t, "10100", ticker.HighPrice.String())
	assert.Equal(t, "9800", ticker.LowPrice.String())
	assert.Equal(t, "-0.95", ticker.PriceChangePercent.String())
	assert.Equal(t, int64(1499869899040), ticker.CloseTime)
}

func TestGetKlines(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "/klines", r.URL.Path)
			assert.Equal(t, "BTCUSDT", q.Get("symbol"))
			assert.Equal(t, "1h", q.Get("interval"))
			assert.Equal(t, "2", q.Get("limit"))
			assert.Equal(t, "1700000000000", q.Get("startTime"))
			assert.Empty(t, q.Get("endTime"))
			writeJSON(w, http.StatusOK, `[
				[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700003599999,"1300.0",42,"6.0","650.0","0"],
				[1700003600000,"105.0","120.0","104.0","118.0","8.25",1700007199999,"950.0",17,"4.0","470.0","0"]
			]`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		candles, err := rc.GetKlines(context.Background(), KlinesRequest{
			Symbol: "BTCUSDT", Interval: "1h", Limit: 2, StartTime: 1700000000000,
		})

		require.NoError(t, err)
		require.Len(t, candles, 2)
		assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
		assert.Equal(t, "110", candles[0].High.String())
		assert.Equal(t, "8.25", candles[1].Volume.String())
		assert.Equal(t, int64(17), candles[1].Trades)
	})

	t.Run("MalformedRow", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `[[1700000000000,"100.0"]]`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetKlines(context.Background(), KlinesRequest{Symbol: "BTCUSDT", Interval: "1d"})

		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})

	t.Run("InvalidParameters", func(t *testing.T) {
		rc := &RestClient{}
		testCases := []KlinesRequest{
			{Symbol: "BTCUSDT", Interval: "7m"},
			{Symbol: "BTCUSDT", Interval: "1h", Limit: 5000},
			{Symbol: "BTCUSDT", Interval: "1h", StartTime: 20, EndTime: 10},
			{Symbol: "", Interval: "1h"},
		}
		for _, tc := range testCases {
			_, err := rc.GetKlines(context.Background(), tc)
			assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", tc)
		}
	})
}

func TestNewRestClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		cfg := &config.Binance{Testnet: true, RateLimit: 10, RateLimitBurst: 1}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.NotNil(t, rc)
		assert.Equal(t, testnetBaseURL, rc.client.BaseURL)
		assert.Equal(t, 1, rc.maxRetries, "at least one attempt is always made")
	})

	t.Run("Production", func(t *testing.T) {
		cfg := &config.Binance{MaxRetries: 4, BackoffBase: time.Second}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.Equal(t, baseURL, rc.client.BaseURL)
		assert.Equal(t, 4, rc.maxRetries)
		assert.Equal(t, time.Second, rc.backoffBase)
	})

	t.Run("CustomBaseURL", func(t *testing.T) {
		cfg := &config.Binance{BaseURL: "http://localhost:9999/api/v3", Testnet: true}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.Equal(t, "http://localhost:9999/api/v3", rc.client.BaseURL)
	})
}
