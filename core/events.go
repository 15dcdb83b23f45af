// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/pkg/ids"
)

// EventType identifies the kind of state transition an Event describes
type EventType string

const (
	EventTypeMine         EventType = "mine"
	EventTypeClaim        EventType = "claim"
	EventTypeSpin         EventType = "spin"
	EventTypeSettlement   EventType = "settlement"
	EventTypeFeePayment   EventType = "fee_payment"
	EventTypeCapacity     EventType = "capacity"
	EventTypeOdds         EventType = "odds"
	EventTypeFeeRecipient EventType = "fee_recipient"
	EventTypeMultiplier   EventType = "rate_multiplier"
)

// Event is one structured notification emitted per engine state transition.
// It exists for external history reconstruction; delivery is the consumer's
// concern.
type Event struct {
	Type      EventType `json:"type"`
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent creates an Event stamped with a fresh id
func NewEvent(eventType EventType, at time.Time, data any) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.New(),
		Timestamp: at,
		Data:      data,
	}
}

// MineEvent records a successful slot displacement
type MineEvent struct {
	SlotIndex    uint64          `json:"slot_index"`
	EpochID      uint64          `json:"epoch_id"`
	PricePaid    decimal.Decimal `json:"price_paid"`
	PrevOccupant ids.Address     `json:"prev_occupant"`
	NewOccupant  ids.Address     `json:"new_occupant"`
	Minted       decimal.Decimal `json:"minted"`
	EmissionRate decimal.Decimal `json:"emission_rate"`
	MetadataURI  string          `json:"metadata_uri,omitempty"`
}

// ClaimEvent records a pull-payment withdrawal
type ClaimEvent struct {
	Account ids.Address     `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// SpinEvent records a successful chance-game entry
type SpinEvent struct {
	EpochID     uint64          `json:"epoch_id"`
	PricePaid   decimal.Decimal `json:"price_paid"`
	Recipient   ids.Address     `json:"recipient"`
	Sequence    uint64          `json:"sequence"`
	FeePaid     decimal.Decimal `json:"fee_paid"`
	PoolMinted  decimal.Decimal `json:"pool_minted"`
	MetadataURI string          `json:"metadata_uri,omitempty"`
}

// SettlementEvent records the asynchronous resolution of a spin
type SettlementEvent struct {
	Sequence    uint64          `json:"sequence"`
	Recipient   ids.Address     `json:"recipient"`
	OddsBps     int64           `json:"odds_bps"`
	PoolBalance decimal.Decimal `json:"pool_balance"`
	Payout      decimal.Decimal `json:"payout"`
}

// FeePaymentEvent records one component of a fee split
type FeePaymentEvent struct {
	Source    string          `json:"source"`
	Share     string          `json:"share"`
	Recipient ids.Address     `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Remainder bool            `json:"remainder"`
}

// CapacityEvent records a slot-capacity increase
type CapacityEvent struct {
	OldCapacity uint64 `json:"old_capacity"`
	NewCapacity uint64 `json:"new_capacity"`
}

// FeeRecipientEvent records an administrative fee-share redirection
type FeeRecipientEvent struct {
	Source    string      `json:"source"`
	Share     string      `json:"share"`
	Recipient ids.Address `json:"recipient"`
}

// OddsEvent records a wholesale odds-table replacement
type OddsEvent struct {
	Table []int64 `json:"table"`
}

// MultiplierEvent records an applied slot rate-multiplier draw
type MultiplierEvent struct {
	SlotIndex uint64    `json:"slot_index"`
	EpochID   uint64    `json:"epoch_id"`
	Bps       int64     `json:"bps"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Recorder receives engine events
type Recorder interface {
	Record(Event)
}

// RecorderFunc adapts a function to the Recorder interface
type RecorderFunc func(Event)

func (f RecorderFunc) Record(e Event) {
	f(e)
}

// NoOpRecorder discards all events
var NoOpRecorder Recorder = RecorderFunc(func(Event) {})

// MultiRecorder fans an event out to several recorders
func MultiRecorder(recorders ...Recorder) Recorder {
	return RecorderFunc(func(e Event) {
		for _, r := range recorders {
			r.Record(e)
		}
	})
}

// Bus is an in-process event fan-out with dynamic subscribers. Subscriber
// channels are buffered; a full subscriber drops events rather than
// blocking the emitting engine.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

// NewBus creates a Bus with the given per-subscriber buffer size
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Record implements Recorder
func (b *Bus) Record(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel and an
// unsubscribe function
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}
