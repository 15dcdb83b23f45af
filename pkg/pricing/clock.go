// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid pricing config")

// Config holds the fixed parameters of a reverse Dutch auction clock.
// Validated once at creation; never mutated afterwards.
type Config struct {
	// EpochPeriod is the time for the price to decay linearly to zero
	EpochPeriod time.Duration
	// Multiplier scales the paid price into the next epoch's init price
	Multiplier decimal.Decimal
	// MinInitPrice and MaxInitPrice clamp the next epoch's init price
	MinInitPrice decimal.Decimal
	MaxInitPrice decimal.Decimal
}

// Validate checks the config invariants
func (c Config) Validate() error {
	if c.EpochPeriod <= 0 {
		return fmt.Errorf("%w: epoch period must be positive", ErrInvalidConfig)
	}
	if c.Multiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.MinInitPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: min init price must be positive", ErrInvalidConfig)
	}
	if c.MaxInitPrice.LessThan(c.MinInitPrice) {
		return fmt.Errorf("%w: max init price below min init price", ErrInvalidConfig)
	}
	return nil
}

// Epoch is one pricing cycle of an auction. The id strictly increases on
// every successful purchase.
type Epoch struct {
	ID        uint64
	InitPrice decimal.Decimal
	StartTime time.Time
}

// NewEpoch starts epoch zero at the given init price
func NewEpoch(initPrice decimal.Decimal, at time.Time) Epoch {
	return Epoch{
		ID:        0,
		InitPrice: initPrice,
		StartTime: at,
	}
}

// Price returns the current auction price: a linear decay from InitPrice
// to zero over EpochPeriod, and exactly zero afterwards.
func (c Config) Price(e Epoch, now time.Time) decimal.Decimal {
	elapsed := now.Sub(e.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= c.EpochPeriod {
		return decimal.Zero
	}
	frac := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(c.EpochPeriod)))
	return e.InitPrice.Sub(e.InitPrice.Mul(frac))
}

// Advance resets the auction after a successful purchase at the given
// price: the next init price is paid*Multiplier clamped into
// [MinInitPrice, MaxInitPrice], the id increments, and the decay restarts.
func (c Config) Advance(e Epoch, paid decimal.Decimal, now time.Time) Epoch {
	next := paid.Mul(c.Multiplier)
	if next.LessThan(c.MinInitPrice) {
		next = c.MinInitPrice
	}
	if next.GreaterThan(c.MaxInitPrice) {
		next = c.MaxInitPrice
	}
	return Epoch{
		ID:        e.ID + 1,
		InitPrice: next,
		StartTime: now,
	}
}
