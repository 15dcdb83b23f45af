// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// AddressLen is the length of an Address in bytes
const AddressLen = 20

// Address is a unique identifier for an account principal
type Address [AddressLen]byte

// ZeroAddress is the empty Address, used as the "no account" sentinel
var ZeroAddress = Address{}

// String returns the hex representation of an Address
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero returns true if the Address is the zero address
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns the byte representation of an Address
func (a Address) Bytes() []byte {
	return a[:]
}

// MarshalText implements encoding.TextMarshaler; Addresses render as hex
// in JSON and YAML
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	addr, err := AddressFromString(string(text))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// AddressFromString parses an Address from a hex string
func AddressFromString(s string) (Address, error) {
	var addr Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, err
	}
	if len(b) != AddressLen {
		return addr, fmt.Errorf("invalid Address length: expected %d, got %d", AddressLen, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// AddressFromBytes creates an Address from bytes
func AddressFromBytes(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLen {
		return addr, fmt.Errorf("invalid Address length: expected %d, got %d", AddressLen, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// GenerateAddress generates a new random Address
func GenerateAddress() Address {
	var addr Address
	_, _ = rand.Read(addr[:])
	return addr
}

// GenerateTestAddress generates a random Address for testing
func GenerateTestAddress() Address {
	return GenerateAddress()
}
