// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mining

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/core"
	"github.com/kilnlabs/kiln/pkg/emission"
	"github.com/kilnlabs/kiln/pkg/fees"
	"github.com/kilnlabs/kiln/pkg/ids"
	"github.com/kilnlabs/kiln/pkg/log"
	"github.com/kilnlabs/kiln/pkg/pricing"
	"github.com/kilnlabs/kiln/pkg/random"
	"github.com/kilnlabs/kiln/pkg/token"
)

// OccupantShare names the fee share credited to the displaced occupant's
// claimable balance instead of being transferred out
const OccupantShare = "occupant"

// MultiplierDrawConfig enables the optional async rate-multiplier draw
// issued on each mine action
type MultiplierDrawConfig struct {
	Enabled bool
	// Options are the candidate multipliers in bps; one is drawn uniformly
	Options []int64
	// Window is how long an applied multiplier stays active
	Window time.Duration
}

// Config holds the mining engine's fixed and admin-mutable parameters
type Config struct {
	Admin         ids.Address
	EngineAddress ids.Address
	// Capacity is the initial slot count
	Capacity uint64
	// SeedInitPrice starts each fresh slot's first auction epoch
	SeedInitPrice  decimal.Decimal
	Pricing        pricing.Config
	Emission       emission.Schedule
	MultiplierDraw MultiplierDrawConfig
}

func (c Config) validate() error {
	if c.Admin.IsZero() || c.EngineAddress.IsZero() {
		return core.ErrZeroAddress
	}
	if c.Capacity == 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if c.SeedInitPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("seed init price must be positive")
	}
	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	if err := c.Emission.Validate(); err != nil {
		return err
	}
	if c.MultiplierDraw.Enabled && len(c.MultiplierDraw.Options) == 0 {
		return fmt.Errorf("multiplier draw enabled with no options")
	}
	return nil
}

// Engine is the slot-occupancy mining game. Each slot runs its own
// reverse Dutch auction; occupants earn reward-token emission for time
// held and are paid a fee share through a pull-payment ledger when
// displaced.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	payment  token.Token
	reward   token.Mintable
	provider random.Provider
	splitter *fees.Splitter
	clock    core.Clock
	recorder core.Recorder
	log      log.Logger

	slots     []*slot
	claimable map[ids.Address]decimal.Decimal

	// pendingDraws correlates provider sequence numbers with the slot
	// epoch a multiplier draw was issued for
	pendingDraws map[uint64]drawRef
}

type drawRef struct {
	slotIndex uint64
	epochID   uint64
}

// NewEngine creates the mining engine with cfg.Capacity empty slots.
// provider may be nil when the multiplier draw is disabled.
func NewEngine(
	cfg Config,
	payment token.Token,
	reward token.Mintable,
	splitter *fees.Splitter,
	provider random.Provider,
	clock core.Clock,
	recorder core.Recorder,
	logger log.Logger,
) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MultiplierDraw.Enabled && provider == nil {
		return nil, fmt.Errorf("multiplier draw enabled without a randomness provider")
	}
	if recorder == nil {
		recorder = core.NoOpRecorder
	}
	if logger == nil {
		logger = log.NoLog
	}

	e := &Engine{
		cfg:          cfg,
		payment:      payment,
		reward:       reward,
		provider:     provider,
		splitter:     splitter,
		clock:        clock,
		recorder:     recorder,
		log:          logger,
		claimable:    make(map[ids.Address]decimal.Decimal),
		pendingDraws: make(map[uint64]drawRef),
	}

	now := clock.Now()
	for i := uint64(0); i < cfg.Capacity; i++ {
		e.slots = append(e.slots, &slot{
			index: i,
			epoch: pricing.NewEpoch(cfg.SeedInitPrice, now),
		})
	}

	return e, nil
}

// MineRequest carries the parameters of one displacement attempt. The
// expected epoch id, deadline, and max price guard the caller against
// adversarial reordering.
type MineRequest struct {
	SlotIndex       uint64
	ExpectedEpochID uint64
	Deadline        time.Time
	MaxPrice        decimal.Decimal
	Caller          ids.Address
	Recipient       ids.Address
	MetadataURI     string
}

// MineReceipt summarizes a successful displacement
type MineReceipt struct {
	SlotIndex    uint64
	EpochID      uint64
	PricePaid    decimal.Decimal
	PrevOccupant ids.Address
	Minted       decimal.Decimal
	EmissionRate decimal.Decimal
}

// Mine displaces the occupant of a slot, paying the current auction price.
// The price is fee-split with the largest share credited to the OUTGOING
// occupant's claimable balance; accrued emission is minted to the outgoing
// occupant. Self-displacement is a supported path. All failures are atomic.
func (e *Engine) Mine(req MineRequest) (MineReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.SlotIndex >= uint64(len(e.slots)) {
		return MineReceipt{}, core.ErrUnknownSlot
	}
	s := e.slots[req.SlotIndex]
	now := e.clock.Now()

	if req.Recipient.IsZero() {
		return MineReceipt{}, core.ErrZeroAddress
	}
	if now.After(req.Deadline) {
		return MineReceipt{}, core.ErrExpired
	}
	if req.ExpectedEpochID != s.epoch.ID {
		return MineReceipt{}, core.ErrEpochMismatch
	}
	price := e.cfg.Pricing.Price(s.epoch, now)
	if price.GreaterThan(req.MaxPrice) {
		return MineReceipt{}, core.ErrMaxPriceExceeded
	}

	prevOccupant := s.occupant

	// Collect and split the payment. A zero price (fully decayed epoch)
	// moves no tokens and pays no fees. Once the price is collected the
	// remaining movements cannot fail: the outbound split draws on the
	// price just collected and the engine address holds reward mint
	// authority from construction.
	if price.IsPositive() {
		if err := e.payment.Transfer(req.Caller, e.cfg.EngineAddress, price); err != nil {
			return MineReceipt{}, err
		}
		if err := e.routeFees(price, prevOccupant, now); err != nil {
			return MineReceipt{}, err
		}
	}

	// Mint accrued emission to whoever held the slot through the elapsed
	// interval. An empty slot accrues nothing.
	minted := s.pendingEmission(now)
	if minted.IsPositive() {
		if err := e.reward.Mint(e.cfg.EngineAddress, prevOccupant, minted); err != nil {
			return MineReceipt{}, err
		}
	}

	// Advance the slot. The emission rate is recomputed fresh for this
	// slot only; other slots keep their stale rate until next mined.
	newRate := e.cfg.Emission.RateAt(now).Div(decimal.NewFromInt(int64(len(e.slots))))
	s.epoch = e.cfg.Pricing.Advance(s.epoch, price, now)
	s.occupant = req.Recipient
	s.occupiedSince = now
	s.metadataURI = req.MetadataURI
	s.emissionRate = newRate
	s.multiplierBps = 0
	s.multiplierExpiry = time.Time{}

	if e.cfg.MultiplierDraw.Enabled {
		if seq, err := e.provider.Request(e); err != nil {
			e.log.Warn("multiplier draw request failed", "slot", s.index, "error", err)
		} else {
			e.pendingDraws[seq] = drawRef{slotIndex: s.index, epochID: s.epoch.ID}
		}
	}

	e.recorder.Record(core.NewEvent(core.EventTypeMine, now, core.MineEvent{
		SlotIndex:    s.index,
		EpochID:      s.epoch.ID,
		PricePaid:    price,
		PrevOccupant: prevOccupant,
		NewOccupant:  req.Recipient,
		Minted:       minted,
		EmissionRate: newRate,
		MetadataURI:  req.MetadataURI,
	}))
	e.log.Info("slot mined",
		"slot", s.index,
		"epoch", s.epoch.ID,
		"price", price,
		"minted", minted,
		"occupant", req.Recipient)

	return MineReceipt{
		SlotIndex:    s.index,
		EpochID:      s.epoch.ID,
		PricePaid:    price,
		PrevOccupant: prevOccupant,
		Minted:       minted,
		EmissionRate: newRate,
	}, nil
}

// routeFees splits a collected price: the occupant share is credited to
// the pull-payment ledger (the tokens stay with the engine), every other
// share is transferred out immediately.
func (e *Engine) routeFees(price decimal.Decimal, occupant ids.Address, now time.Time) error {
	payouts := e.splitter.Split(price, map[string]ids.Address{OccupantShare: occupant})
	for _, p := range payouts {
		if p.Name == OccupantShare {
			e.claimable[p.Recipient] = e.claimable[p.Recipient].Add(p.Amount)
		} else if err := e.payment.Transfer(e.cfg.EngineAddress, p.Recipient, p.Amount); err != nil {
			return err
		}
		e.recorder.Record(core.NewEvent(core.EventTypeFeePayment, now, core.FeePaymentEvent{
			Source:    "mine",
			Share:     p.Name,
			Recipient: p.Recipient,
			Amount:    p.Amount,
			Remainder: p.Remainder,
		}))
	}
	return nil
}

// Claim withdraws the caller's entire claimable balance. The balance is
// zeroed before the token transfer.
func (e *Engine) Claim(account ids.Address) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	amount, ok := e.claimable[account]
	if !ok || amount.IsZero() {
		return decimal.Zero, core.ErrNoClaimableBalance
	}

	delete(e.claimable, account)
	if err := e.payment.Transfer(e.cfg.EngineAddress, account, amount); err != nil {
		e.claimable[account] = amount
		return decimal.Zero, err
	}

	now := e.clock.Now()
	e.recorder.Record(core.NewEvent(core.EventTypeClaim, now, core.ClaimEvent{
		Account: account,
		Amount:  amount,
	}))
	e.log.Info("claim withdrawn", "account", account, "amount", amount)

	return amount, nil
}

// SetCapacity appends empty slots to grow capacity. Capacity only ever
// increases. Stored emission rates of existing slots are deliberately NOT
// rescaled: an occupant keeps the rate fixed at their last mine action
// until displaced. Known economic-drift hazard; replicated by design.
func (e *Engine) SetCapacity(caller ids.Address, newCapacity uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Admin {
		return core.ErrUnauthorized
	}
	old := uint64(len(e.slots))
	if newCapacity <= old {
		return core.ErrCapacityMustIncrease
	}

	now := e.clock.Now()
	for i := old; i < newCapacity; i++ {
		e.slots = append(e.slots, &slot{
			index: i,
			epoch: pricing.NewEpoch(e.cfg.SeedInitPrice, now),
		})
	}

	e.recorder.Record(core.NewEvent(core.EventTypeCapacity, now, core.CapacityEvent{
		OldCapacity: old,
		NewCapacity: newCapacity,
	}))
	e.log.Info("capacity increased", "old", old, "new", newCapacity)

	return nil
}

// SetFeeRecipient redirects a named fee share to a new address,
// admin-only. Splits routed before the change are unaffected. The
// occupant share's recipient is resolved per mine action and is not
// meaningfully settable here.
func (e *Engine) SetFeeRecipient(caller ids.Address, shareName string, recipient ids.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Admin {
		return core.ErrUnauthorized
	}
	if err := e.splitter.SetRecipient(shareName, recipient); err != nil {
		return err
	}

	e.recorder.Record(core.NewEvent(core.EventTypeFeeRecipient, e.clock.Now(), core.FeeRecipientEvent{
		Source:    "mine",
		Share:     shareName,
		Recipient: recipient,
	}))
	e.log.Info("fee recipient updated", "share", shareName, "recipient", recipient)

	return nil
}

// FeeShares returns a copy of the current fee-split configuration
func (e *Engine) FeeShares() []fees.Share {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.splitter.Shares()
}

// SetSlotMetadataURI updates a slot's metadata URI, admin-only
func (e *Engine) SetSlotMetadataURI(caller ids.Address, slotIndex uint64, uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Admin {
		return core.ErrUnauthorized
	}
	if slotIndex >= uint64(len(e.slots)) {
		return core.ErrUnknownSlot
	}
	e.slots[slotIndex].metadataURI = uri
	return nil
}

// Settle implements random.Consumer for multiplier draws. Unknown or
// stale sequence numbers (including draws for slots displaced since the
// request) are silent no-ops, safe against provider retries.
func (e *Engine) Settle(sequence uint64, randomValue uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ref, ok := e.pendingDraws[sequence]
	if !ok {
		e.log.Debug("ignoring unknown multiplier draw", "sequence", sequence)
		return
	}
	delete(e.pendingDraws, sequence)

	s := e.slots[ref.slotIndex]
	if s.epoch.ID != ref.epochID {
		e.log.Debug("dropping stale multiplier draw", "slot", ref.slotIndex, "sequence", sequence)
		return
	}

	now := e.clock.Now()
	bps := e.cfg.MultiplierDraw.Options[randomValue%uint64(len(e.cfg.MultiplierDraw.Options))]
	s.multiplierBps = bps
	s.multiplierExpiry = now.Add(e.cfg.MultiplierDraw.Window)

	e.recorder.Record(core.NewEvent(core.EventTypeMultiplier, now, core.MultiplierEvent{
		SlotIndex: ref.slotIndex,
		EpochID:   ref.epochID,
		Bps:       bps,
		ExpiresAt: s.multiplierExpiry,
	}))
	e.log.Info("multiplier applied", "slot", ref.slotIndex, "bps", bps)
}

// Price returns the current auction price of a slot
func (e *Engine) Price(slotIndex uint64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slotIndex >= uint64(len(e.slots)) {
		return decimal.Zero, core.ErrUnknownSlot
	}
	return e.cfg.Pricing.Price(e.slots[slotIndex].epoch, e.clock.Now()), nil
}

// Slot returns a read-only snapshot of a slot
func (e *Engine) Slot(slotIndex uint64) (SlotView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slotIndex >= uint64(len(e.slots)) {
		return SlotView{}, core.ErrUnknownSlot
	}
	return e.slots[slotIndex].view(), nil
}

// Slots returns snapshots of all slots
func (e *Engine) Slots() []SlotView {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SlotView, len(e.slots))
	for i, s := range e.slots {
		out[i] = s.view()
	}
	return out
}

// PendingEmission returns a slot's accrued, unminted emission
func (e *Engine) PendingEmission(slotIndex uint64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slotIndex >= uint64(len(e.slots)) {
		return decimal.Zero, core.ErrUnknownSlot
	}
	return e.slots[slotIndex].pendingEmission(e.clock.Now()), nil
}

// ClaimableOf returns an account's pending pull-payment balance
func (e *Engine) ClaimableOf(account ids.Address) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claimable[account]
}

// TotalClaimable returns the sum of all claimable balances. It equals the
// engine's payment-token balance at every observable point.
func (e *Engine) TotalClaimable() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := decimal.Zero
	for _, amount := range e.claimable {
		total = total.Add(amount)
	}
	return total
}

// Capacity returns the current slot count
func (e *Engine) Capacity() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.slots))
}

// CurrentRate returns the global emission rate right now
func (e *Engine) CurrentRate() decimal.Decimal {
	return e.cfg.Emission.RateAt(e.clock.Now())
}
