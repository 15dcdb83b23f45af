// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kilnlabs/kiln/pkg/ids"
)

func sum(payouts []Payout) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	return total
}

func TestSplitExact(t *testing.T) {
	require := require.New(t)

	occupant := ids.GenerateTestAddress()
	treasury := ids.GenerateTestAddress()
	team := ids.GenerateTestAddress()

	splitter, err := NewSplitter([]Share{
		{Name: "occupant", Bps: 8000},
		{Name: "treasury", Recipient: treasury, Bps: 1500},
		{Name: "team", Recipient: team, Bps: 500},
	}, 1)
	require.NoError(err)

	payouts := splitter.Split(decimal.NewFromInt(1003), map[string]ids.Address{"occupant": occupant})
	require.Len(payouts, 3)

	byName := map[string]Payout{}
	for _, p := range payouts {
		byName[p.Name] = p
	}

	// floor(1003*0.80)=802, floor(1003*0.05)=50, remainder 1003-802-50=151
	require.True(byName["occupant"].Amount.Equal(decimal.NewFromInt(802)))
	require.Equal(occupant, byName["occupant"].Recipient)
	require.True(byName["team"].Amount.Equal(decimal.NewFromInt(50)))
	require.True(byName["treasury"].Amount.Equal(decimal.NewFromInt(151)))
	require.True(byName["treasury"].Remainder)

	require.True(sum(payouts).Equal(decimal.NewFromInt(1003)))
}

func TestSplitNullRecipientFoldsIntoSink(t *testing.T) {
	require := require.New(t)

	treasury := ids.GenerateTestAddress()

	splitter, err := NewSplitter([]Share{
		{Name: "occupant", Bps: 8000},
		{Name: "treasury", Recipient: treasury, Bps: 1000},
		{Name: "protocol", Bps: 1000}, // never configured
	}, 1)
	require.NoError(err)

	// No occupant override: both unset shares fold into the sink
	payouts := splitter.Split(decimal.NewFromInt(100), nil)
	require.Len(payouts, 1)
	require.True(payouts[0].Amount.Equal(decimal.NewFromInt(100)))
	require.Equal(treasury, payouts[0].Recipient)
}

func TestSplitFractionalDustToSink(t *testing.T) {
	require := require.New(t)

	occupant := ids.GenerateTestAddress()
	treasury := ids.GenerateTestAddress()

	splitter, err := NewSplitter([]Share{
		{Name: "occupant", Bps: 8000},
		{Name: "treasury", Recipient: treasury, Bps: 2000},
	}, 1)
	require.NoError(err)

	amount := decimal.RequireFromString("33.33")
	payouts := splitter.Split(amount, map[string]ids.Address{"occupant": occupant})
	require.True(sum(payouts).Equal(amount))
	// Shares floor to whole units; the dust rides with the sink
	require.True(payouts[0].Amount.Equal(decimal.NewFromInt(26)))
	require.True(payouts[len(payouts)-1].Remainder)
}

func TestNewSplitterValidation(t *testing.T) {
	require := require.New(t)

	treasury := ids.GenerateTestAddress()

	_, err := NewSplitter(nil, 0)
	require.ErrorIs(err, ErrInvalidSplit)

	_, err = NewSplitter([]Share{{Name: "treasury", Recipient: treasury, Bps: 100}}, 5)
	require.ErrorIs(err, ErrInvalidSplit)

	// Sink must have a recipient
	_, err = NewSplitter([]Share{{Name: "sink", Bps: 100}}, 0)
	require.ErrorIs(err, ErrInvalidSplit)

	_, err = NewSplitter([]Share{
		{Name: "a", Recipient: treasury, Bps: 9000},
		{Name: "b", Recipient: treasury, Bps: 2000},
	}, 0)
	require.ErrorIs(err, ErrInvalidSplit)

	_, err = NewSplitter([]Share{{Name: "a", Recipient: treasury, Bps: -1}}, 0)
	require.ErrorIs(err, ErrInvalidSplit)
}

func TestSetRecipient(t *testing.T) {
	require := require.New(t)

	treasury := ids.GenerateTestAddress()
	team := ids.GenerateTestAddress()

	splitter, err := NewSplitter([]Share{
		{Name: "treasury", Recipient: treasury, Bps: 9000},
		{Name: "team", Recipient: team, Bps: 1000},
	}, 0)
	require.NoError(err)

	require.ErrorIs(splitter.SetRecipient("marketing", team), ErrUnknownShare)

	// Redirect the team share; the next split pays the new address
	newTeam := ids.GenerateTestAddress()
	require.NoError(splitter.SetRecipient("team", newTeam))
	payouts := splitter.Split(decimal.NewFromInt(100), nil)
	byName := map[string]Payout{}
	for _, p := range payouts {
		byName[p.Name] = p
	}
	require.Equal(newTeam, byName["team"].Recipient)
	require.True(byName["team"].Amount.Equal(decimal.NewFromInt(10)))

	// Clearing a non-sink share folds its cut into the sink
	require.NoError(splitter.SetRecipient("team", ids.ZeroAddress))
	payouts = splitter.Split(decimal.NewFromInt(100), nil)
	require.Len(payouts, 1)
	require.True(payouts[0].Amount.Equal(decimal.NewFromInt(100)))

	// The sink itself can move but never to the zero address
	require.ErrorIs(splitter.SetRecipient("treasury", ids.ZeroAddress), ErrInvalidSplit)
	newTreasury := ids.GenerateTestAddress()
	require.NoError(splitter.SetRecipient("treasury", newTreasury))
	payouts = splitter.Split(decimal.NewFromInt(100), nil)
	require.Equal(newTreasury, payouts[len(payouts)-1].Recipient)
}
