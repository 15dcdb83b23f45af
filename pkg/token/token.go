// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/pkg/ids"
)

// Token is the fungible transfer surface the engines depend on. Transfers
// are all-or-nothing: no fee-on-transfer, no partial transfer.
type Token interface {
	Transfer(from, to ids.Address, amount decimal.Decimal) error
	BalanceOf(account ids.Address) decimal.Decimal
}

// Mintable is a Token whose supply can be grown by authorized minters.
// The authority check lives in the token, not in the calling engine.
type Mintable interface {
	Token
	Mint(by, to ids.Address, amount decimal.Decimal) error
}
