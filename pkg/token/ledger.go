// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/pkg/ids"
)

var (
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorizedMint    = errors.New("caller is not the mint authority")
)

// Ledger is an in-memory fungible token ledger. It implements Mintable
// with a fixed set of mint authorities, typically engine addresses.
type Ledger struct {
	mu       sync.RWMutex
	symbol   string
	minters  map[ids.Address]struct{}
	balances map[ids.Address]decimal.Decimal
	supply   decimal.Decimal
}

// NewLedger creates an empty ledger. Only the given minters may mint;
// zero addresses are ignored, so a ledger with none is non-mintable.
func NewLedger(symbol string, minters ...ids.Address) *Ledger {
	set := make(map[ids.Address]struct{}, len(minters))
	for _, m := range minters {
		if !m.IsZero() {
			set[m] = struct{}{}
		}
	}
	return &Ledger{
		symbol:   symbol,
		minters:  set,
		balances: make(map[ids.Address]decimal.Decimal),
		supply:   decimal.Zero,
	}
}

// Symbol returns the ledger's token symbol
func (l *Ledger) Symbol() string {
	return l.symbol
}

// Transfer moves amount from one account to another. Zero transfers are
// a no-op; negative amounts and overdrafts fail with no state change.
func (l *Ledger) Transfer(from, to ids.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance := l.balances[from]
	if fromBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	l.balances[from] = fromBalance.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)

	return nil
}

// Mint grows to's balance by amount. Only a configured minter may mint.
func (l *Ledger) Mint(by, to ids.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.minters[by]; !ok {
		return ErrUnauthorizedMint
	}

	l.balances[to] = l.balances[to].Add(amount)
	l.supply = l.supply.Add(amount)

	return nil
}

// BalanceOf returns the balance of an account
func (l *Ledger) BalanceOf(account ids.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// TotalSupply returns the total minted supply plus seeded balances
func (l *Ledger) TotalSupply() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// SetBalance sets an account balance directly, for testing/initialization
func (l *Ledger) SetBalance(account ids.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.balances[account]
	l.balances[account] = amount
	l.supply = l.supply.Sub(prev).Add(amount)
}
