// Package currency defines the FX-rate collaborator consumed during
// transaction creation. The real rate service lives outside this module;
// RateTable is the fixed-table implementation used by the CLI and tests.
package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Converter converts an amount in minor units between currencies as of a
// given date. A failed conversion must never block transaction creation.
type Converter interface {
	Convert(ctx context.Context, amount int64, from, to string, date time.Time) (int64, error)
}

// ConversionError reports a failed conversion. It is always row-scoped and
// non-fatal: the native-currency fields are still persisted.
type ConversionError struct {
	From string
	To   string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s to %s: %v", e.From, e.To, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

var _ Converter = (*RateTable)(nil)

// RateTable converts using a fixed set of rates. Dates are ignored; a rate
// set for FROM/TO also serves the inverse direction.
type RateTable struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewRateTable() *RateTable {
	return &RateTable{rates: make(map[string]decimal.Decimal)}
}

func (t *RateTable) Set(from, to string, rate decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[from+"/"+to] = rate
}

func (t *RateTable) Convert(_ context.Context, amount int64, from, to string, _ time.Time) (int64, error) {
	if from == to {
		return amount, nil
	}
	t.mu.RLock()
	rate, ok := t.rates[from+"/"+to]
	if !ok {
		if inv, invOK := t.rates[to+"/"+from]; invOK && !inv.IsZero() {
			rate, ok = decimal.NewFromInt(1).Div(inv), true
		}
	}
	t.mu.RUnlock()
	if !ok {
		return 0, &ConversionError{From: from, To: to, Err: fmt.Errorf("no rate configured")}
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart(), nil
}
