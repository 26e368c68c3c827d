// Package ledger implements average-cost bookkeeping for a single coin position.
//
// All functions take and return positions by value; a failed operation never
// hands back a partially updated position.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places kept after dividing to compute an average price.
const PriceScale int32 = 18

var (
	// ErrInsufficientHoldings is returned when an operation would take the held quantity below zero.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrUnknownCoin is returned when a transaction references a symbol with no registered position.
	ErrUnknownCoin = errors.New("unknown coin")
	// ErrInvalidTransaction is returned for entries with a bad type, quantity or price.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// TransactionType is either Buy or Sell.
type TransactionType string

const (
	Buy  TransactionType = "Buy"
	Sell TransactionType = "Sell"
)

// Valid reports whether t is one of the two known transaction types.
func (t TransactionType) Valid() bool {
	return t == Buy || t == Sell
}

// Position is the aggregate holding of one coin.
type Position struct {
	Quantity        decimal.Decimal
	AverageBuyPrice decimal.Decimal
}

// Entry is the part of a transaction that affects a position.
type Entry struct {
	Type     TransactionType
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Validate checks that an entry can be applied to any position.
func (e Entry) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, e.Type)
	}
	if !e.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidTransaction, e.Quantity)
	}
	if !e.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidTransaction, e.Price)
	}
	return nil
}

// Apply returns the position after e has been recorded against p.
//
// A buy moves the average towards the entry price weighted by quantity.
// A sell only reduces the quantity: the cost basis of what remains is unchanged.
func Apply(p Position, e Entry) (Position, error) {
	if err := e.Validate(); err != nil {
		return p, err
	}

	switch e.Type {
	case Buy:
		newQty := p.Quantity.Add(e.Quantity)
		cost := p.Quantity.Mul(p.AverageBuyPrice).Add(e.Quantity.Mul(e.Price))
		return Position{
			Quantity:        newQty,
			AverageBuyPrice: cost.DivRound(newQty, PriceScale),
		}, nil
	default:
		if e.Quantity.GreaterThan(p.Quantity) {
			return p, fmt.Errorf("%w: cannot sell %s, holding %s", ErrInsufficientHoldings, e.Quantity, p.Quantity)
		}
		return Position{
			Quantity:        p.Quantity.Sub(e.Quantity),
			AverageBuyPrice: p.AverageBuyPrice,
		}, nil
	}
}

// Reverse returns the position as if e had never been applied to it.
func Reverse(p Position, e Entry) (Position, error) {
	if err := e.Validate(); err != nil {
		return p, err
	}

	switch e.Type {
	case Buy:
		qtyAfter := p.Quantity.Sub(e.Quantity)
		if qtyAfter.IsNegative() {
			return p, fmt.Errorf("%w: cannot undo buy of %s, holding %s", ErrInsufficientHoldings, e.Quantity, p.Quantity)
		}
		if qtyAfter.IsZero() {
			return Position{Quantity: qtyAfter, AverageBuyPrice: decimal.Zero}, nil
		}
		cost := p.Quantity.Mul(p.AverageBuyPrice).Sub(e.Quantity.Mul(e.Price))
		avg := cost.DivRound(qtyAfter, PriceScale)
		// Only reachable when history was edited out of order.
		if avg.IsNegative() {
			avg = decimal.Zero
		}
		return Position{Quantity: qtyAfter, AverageBuyPrice: avg}, nil
	default:
		return Position{
			Quantity:        p.Quantity.Add(e.Quantity),
			AverageBuyPrice: p.AverageBuyPrice,
		}, nil
	}
}

// Replace undoes old and then records updated, in that order.
func Replace(p Position, old, updated Entry) (Position, error) {
	reversed, err := Reverse(p, old)
	if err != nil {
		return p, fmt.Errorf("undo previous entry: %w", err)
	}
	applied, err := Apply(reversed, updated)
	if err != nil {
		return p, fmt.Errorf("apply updated entry: %w", err)
	}
	return applied, nil
}
