// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mining

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/pkg/fees"
	"github.com/kilnlabs/kiln/pkg/ids"
	"github.com/kilnlabs/kiln/pkg/pricing"
)

// slot is one independently priced mining position. Slots are created at
// deployment (and by capacity increases), mutated only by displacement,
// and never destroyed.
type slot struct {
	index uint64
	epoch pricing.Epoch

	// occupant is the zero address while the slot is empty
	occupant      ids.Address
	occupiedSince time.Time
	metadataURI   string

	// emissionRate is frozen at the occupant's mine action; it is NOT
	// rescaled when capacity changes later
	emissionRate decimal.Decimal

	// time-boxed rate multiplier from a randomness draw; zero bps = none
	multiplierBps    int64
	multiplierExpiry time.Time
}

// multiplierActive reports whether the draw multiplier applies at t
func (s *slot) multiplierActive(t time.Time) bool {
	return s.multiplierBps > 0 && !t.After(s.multiplierExpiry)
}

// pendingEmission returns the unminted accrual for the current occupant
// at time t, at the slot's frozen rate and active multiplier
func (s *slot) pendingEmission(t time.Time) decimal.Decimal {
	if s.occupant.IsZero() || !t.After(s.occupiedSince) {
		return decimal.Zero
	}
	seconds := decimal.New(t.Sub(s.occupiedSince).Nanoseconds(), -9)
	amount := seconds.Mul(s.emissionRate)
	if s.multiplierActive(t) {
		amount = amount.Mul(decimal.NewFromInt(s.multiplierBps)).Div(decimal.NewFromInt(fees.BpsDenominator))
	}
	return amount
}

// SlotView is a read-only snapshot of a slot
type SlotView struct {
	Index            uint64          `json:"index"`
	EpochID          uint64          `json:"epoch_id"`
	InitPrice        decimal.Decimal `json:"init_price"`
	EpochStart       time.Time       `json:"epoch_start"`
	Occupant         ids.Address     `json:"occupant"`
	Occupied         bool            `json:"occupied"`
	OccupiedSince    time.Time       `json:"occupied_since"`
	EmissionRate     decimal.Decimal `json:"emission_rate"`
	MetadataURI      string          `json:"metadata_uri,omitempty"`
	MultiplierBps    int64           `json:"multiplier_bps,omitempty"`
	MultiplierExpiry time.Time       `json:"multiplier_expiry,omitzero"`
}

func (s *slot) view() SlotView {
	return SlotView{
		Index:            s.index,
		EpochID:          s.epoch.ID,
		InitPrice:        s.epoch.InitPrice,
		EpochStart:       s.epoch.StartTime,
		Occupant:         s.occupant,
		Occupied:         !s.occupant.IsZero(),
		OccupiedSince:    s.occupiedSince,
		EmissionRate:     s.emissionRate,
		MetadataURI:      s.metadataURI,
		MultiplierBps:    s.multiplierBps,
		MultiplierExpiry: s.multiplierExpiry,
	}
}
