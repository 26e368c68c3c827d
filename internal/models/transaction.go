package models

import (
	"encoding/json"
	"fmt"
	"time"

	"crypto-tracker-go/internal/ledger"
	"github.com/shopspring/decimal"
)

// Transaction is a single buy or sell recorded against a coin.
type Transaction struct {
	ID              uint                   `gorm:"primaryKey;autoIncrement" json:"transactionId"`
	CoinID          string                 `gorm:"size:32;not null;index" json:"coinId"`
	TransactionType ledger.TransactionType `gorm:"size:8;not null" json:"transactionType"`
	TransactionDate time.Time              `gorm:"not null;index" json:"transactionDate"`
	Quantity        decimal.Decimal        `gorm:"type:varchar(64);not null" json:"quantity"`
	Price           decimal.Decimal        `gorm:"type:varchar(64);not null" json:"price"`
	Fee             decimal.NullDecimal    `gorm:"type:varchar(64)" json:"fee"`
	Exchange        *string                `gorm:"size:64" json:"exchange,omitempty"`
	Notes           *string                `gorm:"size:1024" json:"notes,omitempty"`
	CreatedAt       time.Time              `json:"-"`
	UpdatedAt       time.Time              `json:"-"`
}

// Entry returns the part of the transaction the ledger works on.
func (t *Transaction) Entry() ledger.Entry {
	return ledger.Entry{
		Type:     t.TransactionType,
		Quantity: t.Quantity,
		Price:    t.Price,
	}
}

// CopyDetails overwrites every user-editable field of t with the values from other.
// The identifier and owning coin are left alone.
func (t *Transaction) CopyDetails(other *Transaction) {
	t.TransactionType = other.TransactionType
	t.TransactionDate = other.TransactionDate
	t.Quantity = other.Quantity
	t.Price = other.Price
	t.Fee = other.Fee
	t.Exchange = other.Exchange
	t.Notes = other.Notes
}

// dateLayouts are the accepted forms of transactionDate, tried in order.
// Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTransactionDate reads a timestamp in any of the accepted layouts.
// An empty string yields the zero time.
func ParseTransactionDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid transactionDate %q: expected RFC 3339 or YYYY-MM-DD[THH:MM[:SS]]", s)
}

// UnmarshalJSON accepts transactionDate as RFC 3339 or as a zone-less local timestamp
// such as the value of an HTML datetime-local input.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	aux := struct {
		*plain
		TransactionDate string `json:"transactionDate"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	date, err := ParseTransactionDate(aux.TransactionDate)
	if err != nil {
		return err
	}
	t.TransactionDate = date
	return nil
}
