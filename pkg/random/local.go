// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package random

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/kilnlabs/kiln/pkg/ids"
)

// LocalProvider is an in-process Provider for development and tests.
// Values are derived deterministically from a seed and the sequence
// number; fulfillment is manual so callers can exercise arbitrary
// delivery orderings.
type LocalProvider struct {
	mu      sync.Mutex
	addr    ids.Address
	fee     decimal.Decimal
	seed    []byte
	nextSeq uint64
	pending map[uint64]Consumer
}

// NewLocalProvider creates a LocalProvider with the given fee and seed
func NewLocalProvider(addr ids.Address, fee decimal.Decimal, seed []byte) *LocalProvider {
	return &LocalProvider{
		addr:    addr,
		fee:     fee,
		seed:    append([]byte(nil), seed...),
		nextSeq: 1,
		pending: make(map[uint64]Consumer),
	}
}

func (p *LocalProvider) Fee() decimal.Decimal {
	return p.fee
}

func (p *LocalProvider) Address() ids.Address {
	return p.addr
}

func (p *LocalProvider) Request(consumer Consumer) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.nextSeq
	p.nextSeq++
	p.pending[seq] = consumer
	return seq, nil
}

// Pending returns the not-yet-fulfilled sequence numbers in ascending order
func (p *LocalProvider) Pending() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint64, 0, len(p.pending))
	for seq := range p.pending {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fulfill settles one pending request with a value derived from the seed.
// Returns false if the sequence number is unknown.
func (p *LocalProvider) Fulfill(seq uint64) bool {
	return p.FulfillWith(seq, p.derive(seq))
}

// FulfillWith settles one pending request with an explicit value, for
// deterministic tests. The consumer is invoked outside the provider lock.
func (p *LocalProvider) FulfillWith(seq uint64, value uint64) bool {
	p.mu.Lock()
	consumer, ok := p.pending[seq]
	if ok {
		delete(p.pending, seq)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	consumer.Settle(seq, value)
	return true
}

// FulfillAll settles every pending request in ascending sequence order
func (p *LocalProvider) FulfillAll() int {
	n := 0
	for _, seq := range p.Pending() {
		if p.Fulfill(seq) {
			n++
		}
	}
	return n
}

func (p *LocalProvider) derive(seq uint64) uint64 {
	h := sha3.New256()
	h.Write(p.seed)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}
