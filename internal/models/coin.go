package models

import (
	"time"

	"crypto-tracker-go/internal/ledger"
	"github.com/shopspring/decimal"
)

// Coin is a tracked position keyed by its exchange symbol, e.g. BTCUSDT.
type Coin struct {
	Symbol          string          `gorm:"primaryKey;size:32" json:"symbol"`
	Name            string          `gorm:"size:32;not null" json:"name"` // base asset
	QuoteAsset      string          `gorm:"size:32;not null" json:"quoteAsset"`
	TotalQuantity   decimal.Decimal `gorm:"type:varchar(64);not null" json:"totalQuantity"`
	AverageBuyPrice decimal.Decimal `gorm:"type:varchar(64);not null" json:"averageBuyPrice"`
	Image           *string         `gorm:"size:512" json:"image,omitempty"`
	Version         int64           `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time       `json:"-"`
	UpdatedAt       time.Time       `json:"-"`

	// Filled from the market at read time, never stored.
	CurrentPrice decimal.Decimal `gorm:"-" json:"currentPrice"`
	CurrentValue decimal.Decimal `gorm:"-" json:"currentValue"`
}

// Position returns the ledger view of the coin.
func (c *Coin) Position() ledger.Position {
	return ledger.Position{
		Quantity:        c.TotalQuantity,
		AverageBuyPrice: c.AverageBuyPrice,
	}
}

// SetPosition copies the aggregate fields of p onto the coin.
func (c *Coin) SetPosition(p ledger.Position) {
	c.TotalQuantity = p.Quantity
	c.AverageBuyPrice = p.AverageBuyPrice
}

// SetCurrentPrice records a live price and the value it implies for the held quantity.
func (c *Coin) SetCurrentPrice(price decimal.Decimal) {
	c.CurrentPrice = price
	c.CurrentValue = c.TotalQuantity.Mul(price)
}
