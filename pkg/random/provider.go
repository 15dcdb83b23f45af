// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package random models the external verifiable-randomness boundary as
// message passing keyed by a provider sequence number. A request returns
// immediately; the value arrives later, possibly much later and out of
// order, through the consumer's Settle callback.
package random

import (
	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/pkg/ids"
)

// Consumer receives randomness settlements. Settle may be invoked for a
// sequence number the consumer no longer tracks (provider retries); it
// must treat that as a silent no-op.
type Consumer interface {
	Settle(sequence uint64, randomValue uint64)
}

// Provider issues randomness requests against a fee paid in the payment
// token.
type Provider interface {
	// Fee returns the fee required per request
	Fee() decimal.Decimal
	// Address returns the account the fee must be forwarded to
	Address() ids.Address
	// Request registers a consumer for a future settlement and returns
	// the sequence number correlating the two
	Request(consumer Consumer) (uint64, error)
}
