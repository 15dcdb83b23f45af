// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tests

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kilnlabs/kiln/core"
	"github.com/kilnlabs/kiln/pkg/emission"
	"github.com/kilnlabs/kiln/pkg/fees"
	"github.com/kilnlabs/kiln/pkg/ids"
	"github.com/kilnlabs/kiln/pkg/log"
	"github.com/kilnlabs/kiln/pkg/mining"
	"github.com/kilnlabs/kiln/pkg/pricing"
	"github.com/kilnlabs/kiln/pkg/random"
	"github.com/kilnlabs/kiln/pkg/spin"
	"github.com/kilnlabs/kiln/pkg/token"
)

// TestConcurrentLoad hammers both engines from many goroutines while the
// clock advances, then checks that no token was created or destroyed
// outside the emission schedule and that the pull-payment invariant held.
func TestConcurrentLoad(t *testing.T) {
	const (
		workers    = 8
		iterations = 50
		capacity   = 4
		funding    = 1_000_000
	)

	admin := ids.GenerateTestAddress()
	treasury := ids.GenerateTestAddress()
	team := ids.GenerateTestAddress()
	miningAddr := ids.GenerateTestAddress()
	spinAddr := ids.GenerateTestAddress()
	providerAddr := ids.GenerateTestAddress()

	start := time.Unix(0, 0)
	clock := core.NewManualClock(start)

	payment := token.NewLedger("PAY", admin)
	reward := token.NewLedger("KILN", miningAddr, spinAddr)
	provider := random.NewLocalProvider(providerAddr, decimal.Zero, []byte("load"))

	auctionCfg := pricing.Config{
		EpochPeriod:  100 * time.Second,
		Multiplier:   decimal.NewFromInt(2),
		MinInitPrice: decimal.NewFromInt(1),
		MaxInitPrice: decimal.NewFromInt(1_000_000),
	}
	schedule := emission.Schedule{
		StartTime:     start,
		HalvingPeriod: 24 * time.Hour,
		InitialRate:   decimal.NewFromInt(4),
		FloorRate:     decimal.NewFromInt(1),
	}

	miningSplit, err := fees.NewSplitter([]fees.Share{
		{Name: mining.OccupantShare, Bps: 8000},
		{Name: "treasury", Recipient: treasury, Bps: 2000},
	}, 1)
	require.NoError(t, err)

	miner, err := mining.NewEngine(mining.Config{
		Admin:         admin,
		EngineAddress: miningAddr,
		Capacity:      capacity,
		SeedInitPrice: decimal.NewFromInt(10),
		Pricing:       auctionCfg,
		Emission:      schedule,
	}, payment, reward, miningSplit, provider, clock, core.NoOpRecorder, log.NoOp())
	require.NoError(t, err)

	spinSplit, err := fees.NewSplitter([]fees.Share{
		{Name: "treasury", Recipient: treasury, Bps: 9000},
		{Name: "team", Recipient: team, Bps: 1000},
	}, 0)
	require.NoError(t, err)

	game, err := spin.NewEngine(spin.Config{
		Admin:         admin,
		EngineAddress: spinAddr,
		SeedInitPrice: decimal.NewFromInt(10),
		Pricing:       auctionCfg,
		Emission:      schedule,
		Odds:          []int64{0, 1000, 5000},
		MinOddsBps:    0,
		MaxOddsBps:    5000,
	}, payment, reward, spinSplit, provider, clock, core.NoOpRecorder, log.NoOp())
	require.NoError(t, err)

	accounts := make([]ids.Address, workers)
	for i := range accounts {
		accounts[i] = ids.GenerateTestAddress()
		require.NoError(t, payment.Mint(admin, accounts[i], decimal.NewFromInt(funding)))
	}

	// Races on epoch ids and drained balances are expected under load;
	// only structural failures should surface
	tolerated := func(err error) bool {
		return err == nil ||
			errors.Is(err, core.ErrEpochMismatch) ||
			errors.Is(err, core.ErrNoClaimableBalance) ||
			errors.Is(err, token.ErrInsufficientBalance)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(me ids.Address, id int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				slotIndex := uint64((id + i) % capacity)
				view, err := miner.Slot(slotIndex)
				if err != nil {
					t.Errorf("slot view: %v", err)
					return
				}
				_, err = miner.Mine(mining.MineRequest{
					SlotIndex:       slotIndex,
					ExpectedEpochID: view.EpochID,
					Deadline:        clock.Now().Add(time.Minute),
					MaxPrice:        decimal.NewFromInt(1_000_000),
					Caller:          me,
					Recipient:       me,
				})
				if !tolerated(err) {
					t.Errorf("mine: %v", err)
					return
				}

				if i%5 == 0 {
					if _, err := miner.Claim(me); !tolerated(err) {
						t.Errorf("claim: %v", err)
						return
					}
				}

				if i%3 == 0 {
					_, err := game.Spin(spin.SpinRequest{
						ExpectedEpochID: game.EpochID(),
						Deadline:        clock.Now().Add(time.Minute),
						MaxPrice:        decimal.NewFromInt(1_000_000),
						Caller:          me,
						Recipient:       me,
						AttachedFee:     decimal.Zero,
					})
					if !tolerated(err) {
						t.Errorf("spin: %v", err)
						return
					}
				}
			}
		}(accounts[w], w)
	}

	// Move time forward underneath the workers
	for i := 0; i < 100; i++ {
		clock.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	provider.FulfillAll()
	require.Equal(t, 0, game.PendingCount())

	// Pull-payment conservation: the mining engine holds exactly the
	// sum of unclaimed balances
	require.True(t, miner.TotalClaimable().Equal(payment.BalanceOf(miningAddr)),
		"claimable %s != engine balance %s", miner.TotalClaimable(), payment.BalanceOf(miningAddr))

	// The payment token only moved, never minted or burned, after funding
	total := payment.BalanceOf(treasury).
		Add(payment.BalanceOf(team)).
		Add(payment.BalanceOf(miningAddr)).
		Add(payment.BalanceOf(spinAddr)).
		Add(payment.BalanceOf(providerAddr))
	for _, a := range accounts {
		total = total.Add(payment.BalanceOf(a))
	}
	require.True(t, total.Equal(decimal.NewFromInt(workers*funding)),
		"payment total %s != funded %d", total, workers*funding)

	// Reward supply covers every holder plus what remains in the pool
	held := game.PoolBalance()
	for _, a := range accounts {
		held = held.Add(reward.BalanceOf(a))
	}
	require.True(t, held.Equal(reward.TotalSupply()),
		"held %s != supply %s", held, reward.TotalSupply())

	require.False(t, game.PoolBalance().IsNegative())
}
