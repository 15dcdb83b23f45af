// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Load("")
	require.NoError(err)
	require.Equal(":8080", cfg.ListenAddress)
	require.Equal(uint64(10), cfg.Mining.Capacity)
	require.NotEmpty(cfg.Spin.Odds)

	pricingCfg, err := cfg.Mining.Auction.PricingConfig()
	require.NoError(err)
	require.Equal(time.Hour, pricingCfg.EpochPeriod)

	schedule, err := cfg.Mining.Emission.Schedule(time.Unix(0, 0))
	require.NoError(err)
	require.NoError(schedule.Validate())
}

func TestLoadYAMLOverrides(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "kiln.yaml")
	body := `
listenAddress: ":7001"
mining:
  capacity: 3
  auction:
    epochPeriod: 30m
    multiplier: "3"
    minInitPrice: "2"
    maxInitPrice: "500"
    seedPrice: "50"
spin:
  odds: [100, 200]
`
	require.NoError(os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal(":7001", cfg.ListenAddress)
	require.Equal(uint64(3), cfg.Mining.Capacity)
	require.Equal([]int64{100, 200}, cfg.Spin.Odds)

	pricingCfg, err := cfg.Mining.Auction.PricingConfig()
	require.NoError(err)
	require.Equal(30*time.Minute, pricingCfg.EpochPeriod)
	require.True(pricingCfg.Multiplier.Equal(pricingCfg.Multiplier.Truncate(0)))
}

func TestLoadEnvOverride(t *testing.T) {
	require := require.New(t)

	t.Setenv("KILN_LISTEN_ADDRESS", ":7002")
	cfg, err := Load("")
	require.NoError(err)
	require.Equal(":7002", cfg.ListenAddress)
}

func TestAddressParsing(t *testing.T) {
	require := require.New(t)

	addr, err := Address("")
	require.NoError(err)
	require.True(addr.IsZero())

	_, err = Address("nothex")
	require.Error(err)
}
