// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import "errors"

// Validation errors shared by the mining and spin engines. Every failed
// action is atomic: callers observe no partial state change.
var (
	ErrZeroAddress              = errors.New("zero address")
	ErrExpired                  = errors.New("deadline expired")
	ErrEpochMismatch            = errors.New("epoch mismatch")
	ErrMaxPriceExceeded         = errors.New("price exceeds max price")
	ErrInsufficientFee          = errors.New("insufficient randomness fee")
	ErrInvalidOddsConfiguration = errors.New("invalid odds configuration")
	ErrCapacityMustIncrease     = errors.New("capacity must strictly increase")
	ErrNoClaimableBalance       = errors.New("no claimable balance")
	ErrUnauthorized             = errors.New("caller is not the admin")
	ErrUnknownSlot              = errors.New("unknown slot index")
)
