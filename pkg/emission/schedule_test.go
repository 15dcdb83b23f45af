// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package emission

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testSchedule() Schedule {
	return Schedule{
		StartTime:     time.Unix(0, 0),
		HalvingPeriod: 100 * time.Second,
		InitialRate:   decimal.NewFromInt(64),
		FloorRate:     decimal.NewFromInt(2),
	}
}

func TestRateHalvingSteps(t *testing.T) {
	require := require.New(t)

	s := testSchedule()
	require.NoError(s.Validate())
	start := s.StartTime

	require.True(s.RateAt(start).Equal(decimal.NewFromInt(64)))
	// Just before the boundary the old rate still applies
	require.True(s.RateAt(start.Add(99 * time.Second)).Equal(decimal.NewFromInt(64)))
	// At the boundary it drops by exactly half
	require.True(s.RateAt(start.Add(100 * time.Second)).Equal(decimal.NewFromInt(32)))
	require.True(s.RateAt(start.Add(250 * time.Second)).Equal(decimal.NewFromInt(16)))
	// Floor reached after five halvings; never below
	require.True(s.RateAt(start.Add(500 * time.Second)).Equal(decimal.NewFromInt(2)))
	require.True(s.RateAt(start.Add(5000 * time.Second)).Equal(decimal.NewFromInt(2)))
}

func TestRateNonIncreasing(t *testing.T) {
	require := require.New(t)

	s := testSchedule()
	prev := s.InitialRate
	for i := 0; i < 1000; i += 7 {
		rate := s.RateAt(s.StartTime.Add(time.Duration(i) * time.Second))
		require.True(rate.LessThanOrEqual(prev))
		require.True(rate.GreaterThanOrEqual(s.FloorRate))
		prev = rate
	}
}

func TestAccrue(t *testing.T) {
	require := require.New(t)

	s := testSchedule()
	start := s.StartTime

	// Whole interval inside epoch 0: 50s * 64/s
	got := s.Accrue(start, start.Add(50*time.Second))
	require.True(got.Equal(decimal.NewFromInt(3200)))

	// Empty or inverted interval accrues nothing
	require.True(s.Accrue(start, start).IsZero())
	require.True(s.Accrue(start.Add(time.Second), start).IsZero())
}

func TestAccrueAcrossHalvingBoundary(t *testing.T) {
	require := require.New(t)

	s := testSchedule()
	start := s.StartTime

	// Interval [50s, 150s] spans the first halving. The whole interval is
	// priced at the end-of-interval rate (32/s), not split 64/32.
	got := s.Accrue(start.Add(50*time.Second), start.Add(150*time.Second))
	require.True(got.Equal(decimal.NewFromInt(3200)))

	// It under-mints versus the time-integrated value (50*64 + 50*32 = 4800)
	require.True(got.LessThan(decimal.NewFromInt(4800)))
}

func TestScheduleValidate(t *testing.T) {
	require := require.New(t)

	s := testSchedule()
	s.HalvingPeriod = 0
	require.ErrorIs(s.Validate(), ErrInvalidSchedule)

	s = testSchedule()
	s.InitialRate = decimal.Zero
	require.ErrorIs(s.Validate(), ErrInvalidSchedule)

	s = testSchedule()
	s.FloorRate = decimal.NewFromInt(100)
	require.ErrorIs(s.Validate(), ErrInvalidSchedule)
}
