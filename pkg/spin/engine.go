// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package spin

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

var bpsDenom = decimal.NewFromInt(fees.BpsDenominator)

// Config holds the spin engine's parameters. The odds table lists
// basis-point payout fractions; one entry is drawn uniformly per
// settlement. MaxOddsBps caps every entry well below 100% so that no
// sequence of concurrently-settling requests can drain the pool.
type Config struct {
	Admin         ids.Address
	EngineAddress ids.Address
	SeedInitPrice decimal.Decimal
	Pricing       pricing.Config
	Emission      emission.Schedule
	Odds          []int64
	MinOddsBps    int64
	MaxOddsBps    int64
}

func (c Config) validate() error {
	if c.Admin.IsZero() || c.EngineAddress.IsZero() {
		return core.ErrZeroAddress
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
	if c.MinOddsBps < 0 || c.MaxOddsBps < c.MinOddsBps || c.MaxOddsBps >= fees.BpsDenominator {
		return fmt.Errorf("%w: bounds [%d, %d]", core.ErrInvalidOddsConfiguration, c.MinOddsBps, c.MaxOddsBps)
	}
	return validateOdds(c.Odds, c.MinOddsBps, c.MaxOddsBps)
}

func validateOdds(table []int64, minBps, maxBps int64) error {
	if len(table) == 0 {
		return fmt.Errorf("%w: empty table", core.ErrInvalidOddsConfiguration)
	}
	for i, bps := range table {
		if bps < minBps || bps > maxBps {
			return fmt.Errorf("%w: entry %d (%d bps) outside [%d, %d]",
				core.ErrInvalidOddsConfiguration, i, bps, minBps, maxBps)
		}
	}
	return nil
}

// pendingSpin is the settlement correlation record for one spin, keyed
// by the provider sequence number. Single-use: deleted on first
// resolution.
type pendingSpin struct {
	recipient ids.Address
	epochID   uint64
}

// Engine is the pay-to-play chance game. A spin pays the Dutch-auction
// price plus a randomness fee, mints emission into the shared prize pool,
// and is resolved later by an out-of-band randomness callback against the
// LIVE pool balance at settlement time.
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

	epoch       pricing.Epoch
	lastAccrual time.Time
	odds        []int64
	pending     map[uint64]pendingSpin
	metadataURI string
}

// NewEngine creates the spin engine with a fresh global auction epoch
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
	if provider == nil {
		return nil, fmt.Errorf("spin engine requires a randomness provider")
	}
	if recorder == nil {
		recorder = core.NoOpRecorder
	}
	if logger == nil {
		logger = log.NoLog
	}

	now := clock.Now()
	return &Engine{
		cfg:         cfg,
		payment:     payment,
		reward:      reward,
		provider:    provider,
		splitter:    splitter,
		clock:       clock,
		recorder:    recorder,
		log:         logger,
		epoch:       pricing.NewEpoch(cfg.SeedInitPrice, now),
		lastAccrual: now,
		odds:        append([]int64(nil), cfg.Odds...),
		pending:     make(map[uint64]pendingSpin),
	}, nil
}

// SpinRequest carries the parameters of one chance-game entry. The
// attached fee must cover the provider's randomness fee; any excess is
// retained by the engine permanently, never refunded.
type SpinRequest struct {
	ExpectedEpochID uint64
	Deadline        time.Time
	MaxPrice        decimal.Decimal
	Caller          ids.Address
	Recipient       ids.Address
	MetadataURI     string
	AttachedFee     decimal.Decimal
}

// SpinReceipt summarizes an accepted spin awaiting settlement
type SpinReceipt struct {
	Sequence   uint64
	EpochID    uint64
	PricePaid  decimal.Decimal
	FeePaid    decimal.Decimal
	PoolMinted decimal.Decimal
}

// Spin enters the chance game: collects price and fee, splits the price
// (no previous-participant share), mints accrued emission into the pool
// unconditionally, advances the global epoch, and issues a randomness
// request resolved later by Settle.
func (e *Engine) Spin(req SpinRequest) (SpinReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()

	if req.Recipient.IsZero() {
		return SpinReceipt{}, core.ErrZeroAddress
	}
	if now.After(req.Deadline) {
		return SpinReceipt{}, core.ErrExpired
	}
	if req.ExpectedEpochID != e.epoch.ID {
		return SpinReceipt{}, core.ErrEpochMismatch
	}
	price := e.cfg.Pricing.Price(e.epoch, now)
	if price.GreaterThan(req.MaxPrice) {
		return SpinReceipt{}, core.ErrMaxPriceExceeded
	}
	fee := e.provider.Fee()
	if req.AttachedFee.LessThan(fee) {
		return SpinReceipt{}, core.ErrInsufficientFee
	}

	// Collect the price plus the FULL attached fee; the excess over the
	// provider fee stays in the engine's balance with no refund path.
	if err := e.payment.Transfer(req.Caller, e.cfg.EngineAddress, price.Add(req.AttachedFee)); err != nil {
		return SpinReceipt{}, err
	}

	seq, err := e.provider.Request(e)
	if err != nil {
		// Roll the collection back so the failed spin is atomic
		_ = e.payment.Transfer(e.cfg.EngineAddress, req.Caller, price.Add(req.AttachedFee))
		return SpinReceipt{}, err
	}

	// From here every movement draws on funds the engine already holds
	// (the price and fee collected above) or on its construction-time
	// reward mint authority, so none of them can fail and no further
	// rollback path exists.
	if err := e.payment.Transfer(e.cfg.EngineAddress, e.provider.Address(), fee); err != nil {
		return SpinReceipt{}, err
	}

	if price.IsPositive() {
		for _, p := range e.splitter.Split(price, nil) {
			if err := e.payment.Transfer(e.cfg.EngineAddress, p.Recipient, p.Amount); err != nil {
				return SpinReceipt{}, err
			}
			e.recorder.Record(core.NewEvent(core.EventTypeFeePayment, now, core.FeePaymentEvent{
				Source:    "spin",
				Share:     p.Name,
				Recipient: p.Recipient,
				Amount:    p.Amount,
				Remainder: p.Remainder,
			}))
		}
	}

	// Pool accrual is unconditional, win or lose
	minted := e.cfg.Emission.Accrue(e.lastAccrual, now)
	if minted.IsPositive() {
		if err := e.reward.Mint(e.cfg.EngineAddress, e.cfg.EngineAddress, minted); err != nil {
			return SpinReceipt{}, err
		}
	}
	if now.After(e.lastAccrual) {
		e.lastAccrual = now
	}

	e.epoch = e.cfg.Pricing.Advance(e.epoch, price, now)
	e.metadataURI = req.MetadataURI
	e.pending[seq] = pendingSpin{
		recipient: req.Recipient,
		epochID:   e.epoch.ID,
	}

	e.recorder.Record(core.NewEvent(core.EventTypeSpin, now, core.SpinEvent{
		EpochID:     e.epoch.ID,
		PricePaid:   price,
		Recipient:   req.Recipient,
		Sequence:    seq,
		FeePaid:     fee,
		PoolMinted:  minted,
		MetadataURI: req.MetadataURI,
	}))
	e.log.Info("spin accepted",
		"epoch", e.epoch.ID,
		"price", price,
		"sequence", seq,
		"recipient", req.Recipient)

	return SpinReceipt{
		Sequence:   seq,
		EpochID:    e.epoch.ID,
		PricePaid:  price,
		FeePaid:    fee,
		PoolMinted: minted,
	}, nil
}

// Settle implements random.Consumer: the asynchronous resolution of one
// spin. The pending record is deleted before any transfer; an unknown or
// already-resolved sequence number is a silent no-op, safe against
// provider retries. The payout base is the LIVE pool balance at
// settlement time, not a spin-time snapshot: with every odds entry capped
// below 100%, out-of-order and overlapping settlements can never drain
// the pool.
func (e *Engine) Settle(sequence uint64, randomValue uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[sequence]
	if !ok {
		e.log.Debug("ignoring unknown settlement", "sequence", sequence)
		return
	}
	delete(e.pending, sequence)

	oddsBps := e.odds[randomValue%uint64(len(e.odds))]
	poolBalance := e.reward.BalanceOf(e.cfg.EngineAddress)
	payout := poolBalance.Mul(decimal.NewFromInt(oddsBps)).Div(bpsDenom).Floor()

	if payout.IsPositive() {
		if err := e.reward.Transfer(e.cfg.EngineAddress, p.recipient, payout); err != nil {
			e.log.Error("settlement payout failed",
				"sequence", sequence,
				"recipient", p.recipient,
				"error", err)
			return
		}
	}

	now := e.clock.Now()
	e.recorder.Record(core.NewEvent(core.EventTypeSettlement, now, core.SettlementEvent{
		Sequence:    sequence,
		Recipient:   p.recipient,
		OddsBps:     oddsBps,
		PoolBalance: poolBalance,
		Payout:      payout,
	}))
	e.log.Info("spin settled",
		"sequence", sequence,
		"odds_bps", oddsBps,
		"pool", poolBalance,
		"payout", payout)
}

// SetOdds replaces the odds table wholesale, admin-only. Every entry must
// lie within the configured bounds.
func (e *Engine) SetOdds(caller ids.Address, table []int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Admin {
		return core.ErrUnauthorized
	}
	if err := validateOdds(table, e.cfg.MinOddsBps, e.cfg.MaxOddsBps); err != nil {
		return err
	}
	e.odds = append([]int64(nil), table...)

	e.recorder.Record(core.NewEvent(core.EventTypeOdds, e.clock.Now(), core.OddsEvent{
		Table: append([]int64(nil), table...),
	}))
	e.log.Info("odds replaced", "entries", len(table))

	return nil
}

// SetFeeRecipient redirects a named fee share to a new address,
// admin-only. Splits routed before the change are unaffected.
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
		Source:    "spin",
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

// Price returns the current global auction price
func (e *Engine) Price() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Pricing.Price(e.epoch, e.clock.Now())
}

// EpochID returns the current global epoch id
func (e *Engine) EpochID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch.ID
}

// PoolBalance returns the live prize pool: the reward tokens the engine
// holds right now
func (e *Engine) PoolBalance() decimal.Decimal {
	return e.reward.BalanceOf(e.cfg.EngineAddress)
}

// PendingEmission returns the unminted pool accrual up to now
func (e *Engine) PendingEmission() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Emission.Accrue(e.lastAccrual, e.clock.Now())
}

// Odds returns a copy of the current odds table
func (e *Engine) Odds() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.odds...)
}

// PendingCount returns the number of unresolved spins
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// RandomnessFee returns the provider fee a spin must attach
func (e *Engine) RandomnessFee() decimal.Decimal {
	return e.provider.Fee()
}
