// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/pkg/ids"
)

const BpsDenominator = 10_000

var (
	ErrInvalidSplit = errors.New("invalid fee split")
	ErrUnknownShare = errors.New("unknown fee share")
)

var bpsDenom = decimal.NewFromInt(BpsDenominator)

// Share is one named component of a fee split. A share whose recipient is
// the zero address at split time contributes nothing and its cut folds
// into the remainder sink.
type Share struct {
	Name      string
	Recipient ids.Address
	Bps       int64
}

// Payout is one computed transfer of a split
type Payout struct {
	Name      string
	Recipient ids.Address
	Amount    decimal.Decimal
	Remainder bool
}

// Splitter divides an amount across basis-point shares with floor
// division, routing the rounding remainder to a single designated sink so
// the payouts always sum exactly to the input amount. Not synchronized;
// callers serialize SetRecipient against Split.
type Splitter struct {
	shares    []Share
	sinkIndex int
}

// NewSplitter validates and creates a Splitter. sinkIndex designates the
// share receiving the remainder; its recipient must be set.
func NewSplitter(shares []Share, sinkIndex int) (*Splitter, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares", ErrInvalidSplit)
	}
	if sinkIndex < 0 || sinkIndex >= len(shares) {
		return nil, fmt.Errorf("%w: sink index out of range", ErrInvalidSplit)
	}
	if shares[sinkIndex].Recipient.IsZero() {
		return nil, fmt.Errorf("%w: remainder sink has no recipient", ErrInvalidSplit)
	}
	total := int64(0)
	for _, sh := range shares {
		if sh.Bps < 0 {
			return nil, fmt.Errorf("%w: negative bps for share %q", ErrInvalidSplit, sh.Name)
		}
		total += sh.Bps
	}
	if total > BpsDenominator {
		return nil, fmt.Errorf("%w: shares total %d bps exceeds %d", ErrInvalidSplit, total, BpsDenominator)
	}
	out := make([]Share, len(shares))
	copy(out, shares)
	return &Splitter{shares: out, sinkIndex: sinkIndex}, nil
}

// SetRecipient redirects a named share to a new recipient. Subsequent
// splits pay the new address; nothing already paid out moves. Clearing a
// non-sink share to the zero address folds its cut into the sink; the
// sink itself must always have a recipient.
func (s *Splitter) SetRecipient(name string, recipient ids.Address) error {
	for i := range s.shares {
		if s.shares[i].Name != name {
			continue
		}
		if i == s.sinkIndex && recipient.IsZero() {
			return fmt.Errorf("%w: remainder sink has no recipient", ErrInvalidSplit)
		}
		s.shares[i].Recipient = recipient
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownShare, name)
}

// Shares returns a copy of the configured shares
func (s *Splitter) Shares() []Share {
	out := make([]Share, len(s.shares))
	copy(out, s.shares)
	return out
}

// Split divides amount across the shares. overrides substitutes recipients
// by share name for recipients only known at call time (e.g. the outgoing
// slot occupant). Payouts sum exactly to amount; the sink payout carries
// the remainder and is always last.
func (s *Splitter) Split(amount decimal.Decimal, overrides map[string]ids.Address) []Payout {
	rest := amount
	out := make([]Payout, 0, len(s.shares))
	for i, sh := range s.shares {
		if i == s.sinkIndex {
			continue
		}
		recipient := sh.Recipient
		if override, ok := overrides[sh.Name]; ok {
			recipient = override
		}
		if recipient.IsZero() {
			continue
		}
		cut := amount.Mul(decimal.NewFromInt(sh.Bps)).Div(bpsDenom).Floor()
		if cut.IsZero() {
			continue
		}
		out = append(out, Payout{
			Name:      sh.Name,
			Recipient: recipient,
			Amount:    cut,
		})
		rest = rest.Sub(cut)
	}
	out = append(out, Payout{
		Name:      s.shares[s.sinkIndex].Name,
		Recipient: s.shares[s.sinkIndex].Recipient,
		Amount:    rest,
		Remainder: true,
	})
	return out
}
