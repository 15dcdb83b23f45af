// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package emission

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidSchedule = errors.New("invalid emission schedule")

var two = decimal.NewFromInt(2)

// Schedule is a halving emission curve: the per-second rate halves at
// every HalvingPeriod boundary after StartTime and never drops below
// FloorRate.
type Schedule struct {
	StartTime     time.Time
	HalvingPeriod time.Duration
	// InitialRate and FloorRate are reward-token units per second
	InitialRate decimal.Decimal
	FloorRate   decimal.Decimal
}

// Validate checks the schedule invariants
func (s Schedule) Validate() error {
	if s.HalvingPeriod <= 0 {
		return fmt.Errorf("%w: halving period must be positive", ErrInvalidSchedule)
	}
	if s.InitialRate.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: initial rate must be positive", ErrInvalidSchedule)
	}
	if s.FloorRate.IsNegative() || s.FloorRate.GreaterThan(s.InitialRate) {
		return fmt.Errorf("%w: floor rate must be in [0, initial rate]", ErrInvalidSchedule)
	}
	return nil
}

// RateAt returns the emission rate at time t. The rate is a discrete step
// function: it drops by exactly half at each period boundary, floor-capped.
func (s Schedule) RateAt(t time.Time) decimal.Decimal {
	elapsed := t.Sub(s.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	halvings := int64(elapsed / s.HalvingPeriod)

	rate := s.InitialRate
	for i := int64(0); i < halvings; i++ {
		rate = rate.Div(two)
		if rate.LessThanOrEqual(s.FloorRate) {
			return s.FloorRate
		}
	}
	if rate.LessThan(s.FloorRate) {
		return s.FloorRate
	}
	return rate
}

// Accrue returns the emission over [last, now] priced entirely at the rate
// in effect at now. When a halving boundary falls inside the interval the
// whole interval is priced at the post-halving rate, so this under-mints
// relative to a time-integrated curve and never over-mints. This
// point-in-time integration is intentional; keep it.
func (s Schedule) Accrue(last, now time.Time) decimal.Decimal {
	if !now.After(last) {
		return decimal.Zero
	}
	seconds := decimal.New(now.Sub(last).Nanoseconds(), -9)
	return seconds.Mul(s.RateAt(now))
}
