// Package models defines the data structures used in the application.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptySymbol   = errors.New("empty symbol")
	ErrNegativePrice = errors.New("negative price")
	ErrNoTimestamp   = errors.New("missing observation time")
)

// Quote is one observed price of one symbol.
//
// All quotes taken in the same scrape cycle share ObservedAt and CycleID;
// together they form a single reading on the dashboard.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
	CycleID    uuid.UUID       `json:"cycle_id"`
	Source     string          `json:"source"`
}

// Validate reports whether q can be persisted.
func (q Quote) Validate() error {
	if q.Symbol == "" {
		return ErrEmptySymbol
	}
	if q.Price.IsNegative() {
		return fmt.Errorf("%s: %w", q.Symbol, ErrNegativePrice)
	}
	if q.ObservedAt.IsZero() {
		return fmt.Errorf("%s: %w", q.Symbol, ErrNoTimestamp)
	}
	return nil
}
