// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kilnlabs/kiln/pkg/ids"
)

func TestLedgerTransfer(t *testing.T) {
	require := require.New(t)

	alice := ids.GenerateTestAddress()
	bob := ids.GenerateTestAddress()

	ledger := NewLedger("PAY")
	ledger.SetBalance(alice, decimal.NewFromInt(100))

	err := ledger.Transfer(alice, bob, decimal.NewFromInt(40))
	require.NoError(err)
	require.True(ledger.BalanceOf(alice).Equal(decimal.NewFromInt(60)))
	require.True(ledger.BalanceOf(bob).Equal(decimal.NewFromInt(40)))

	// Overdraft fails with no state change
	err = ledger.Transfer(alice, bob, decimal.NewFromInt(1000))
	require.ErrorIs(err, ErrInsufficientBalance)
	require.True(ledger.BalanceOf(alice).Equal(decimal.NewFromInt(60)))

	// Negative amounts rejected
	err = ledger.Transfer(alice, bob, decimal.NewFromInt(-1))
	require.ErrorIs(err, ErrNegativeAmount)

	// Zero transfer is a no-op
	err = ledger.Transfer(alice, bob, decimal.Zero)
	require.NoError(err)
}

func TestLedgerMintAuthority(t *testing.T) {
	require := require.New(t)

	engine := ids.GenerateTestAddress()
	outsider := ids.GenerateTestAddress()
	recipient := ids.GenerateTestAddress()

	ledger := NewLedger("RWD", engine)

	err := ledger.Mint(engine, recipient, decimal.NewFromInt(500))
	require.NoError(err)
	require.True(ledger.BalanceOf(recipient).Equal(decimal.NewFromInt(500)))
	require.True(ledger.TotalSupply().Equal(decimal.NewFromInt(500)))

	err = ledger.Mint(outsider, recipient, decimal.NewFromInt(500))
	require.ErrorIs(err, ErrUnauthorizedMint)
	require.True(ledger.BalanceOf(recipient).Equal(decimal.NewFromInt(500)))
}

func TestLedgerNonMintable(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger("PAY")
	err := ledger.Mint(ids.ZeroAddress, ids.GenerateTestAddress(), decimal.NewFromInt(1))
	require.ErrorIs(err, ErrUnauthorizedMint)

	// Zero addresses in the minter list are dropped
	ledger = NewLedger("PAY", ids.ZeroAddress)
	err = ledger.Mint(ids.ZeroAddress, ids.GenerateTestAddress(), decimal.NewFromInt(1))
	require.ErrorIs(err, ErrUnauthorizedMint)
}

func TestLedgerMultipleMinters(t *testing.T) {
	require := require.New(t)

	first := ids.GenerateTestAddress()
	second := ids.GenerateTestAddress()
	recipient := ids.GenerateTestAddress()

	ledger := NewLedger("RWD", first, second)
	require.NoError(ledger.Mint(first, recipient, decimal.NewFromInt(10)))
	require.NoError(ledger.Mint(second, recipient, decimal.NewFromInt(5)))
	require.True(ledger.TotalSupply().Equal(decimal.NewFromInt(15)))
}
