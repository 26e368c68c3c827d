package models

import (
	"encoding/json"
	"testing"
	"time"

	"crypto-tracker-go/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_UnmarshalJSON_DateLayouts(t *testing.T) {
	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{"rfc3339", `"2025-03-01T12:34:56Z"`, time.Date(2025, 3, 1, 12, 34, 56, 0, time.UTC)},
		{"rfc3339 with offset", `"2025-03-01T14:34:56+02:00"`, time.Date(2025, 3, 1, 12, 34, 56, 0, time.UTC)},
		{"fractional seconds", `"2025-03-01T12:34:56.5Z"`, time.Date(2025, 3, 1, 12, 34, 56, 5e8, time.UTC)},
		{"datetime-local", `"2025-03-01T12:34"`, time.Date(2025, 3, 1, 12, 34, 0, 0, time.UTC)},
		{"datetime-local with seconds", `"2025-03-01T12:34:56"`, time.Date(2025, 3, 1, 12, 34, 56, 0, time.UTC)},
		{"date only", `"2025-03-01"`, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"empty", `""`, time.Time{}},
		{"null", `null`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Transaction
			err := json.Unmarshal([]byte(`{"coinId":"BTCUSDT","transactionDate":`+tt.date+`}`), &got)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.TransactionDate), "got %s", got.TransactionDate)
			assert.Equal(t, "BTCUSDT", got.CoinID)
		})
	}
}

func TestTransaction_UnmarshalJSON_KeepsOtherFields(t *testing.T) {
	var got Transaction
	err := json.Unmarshal([]byte(`{"transactionId":4,"coinId":"ETHUSDT","transactionType":"Sell","transactionDate":"2025-03-01T12:34","quantity":"1.5","price":2000,"fee":"0.1","notes":"rebalance"}`), &got)

	require.NoError(t, err)
	assert.Equal(t, uint(4), got.ID)
	assert.Equal(t, ledger.Sell, got.TransactionType)
	assert.True(t, decimal.RequireFromString("1.5").Equal(got.Quantity))
	assert.True(t, decimal.NewFromInt(2000).Equal(got.Price))
	assert.True(t, got.Fee.Valid)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "rebalance", *got.Notes)
}

func TestTransaction_UnmarshalJSON_RejectsUnknownDate(t *testing.T) {
	for _, date := range []string{`"01/03/2025"`, `"yesterday"`, `"2025-13-01"`, `20250301`} {
		var got Transaction
		err := json.Unmarshal([]byte(`{"transactionDate":`+date+`}`), &got)
		assert.Error(t, err, date)
	}
}

func TestTransaction_MarshalRoundTripsDate(t *testing.T) {
	in := Transaction{CoinID: "BTCUSDT", TransactionDate: time.Date(2025, 3, 1, 12, 34, 0, 0, time.UTC)}
	data, err := json.Marshal(&in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"transactionDate":"2025-03-01T12:34:00Z"`)

	var out Transaction
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.TransactionDate.Equal(out.TransactionDate))
}
