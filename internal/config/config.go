// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kilnlabs/kiln/pkg/emission"
	"github.com/kilnlabs/kiln/pkg/ids"
	"github.com/kilnlabs/kiln/pkg/pricing"
)

// Config is the kilnd runtime configuration, loadable from a YAML file
// with environment-variable overrides.
type Config struct {
	ListenAddress    string `yaml:"listenAddress"    envconfig:"KILN_LISTEN_ADDRESS"`
	OpsListenAddress string `yaml:"opsListenAddress" envconfig:"KILN_OPS_LISTEN_ADDRESS"`
	LogLevel         string `yaml:"logLevel"         envconfig:"KILN_LOG_LEVEL"`

	Admin        string `yaml:"admin"        envconfig:"KILN_ADMIN"`
	Treasury     string `yaml:"treasury"     envconfig:"KILN_TREASURY"`
	Team         string `yaml:"team"         envconfig:"KILN_TEAM"`
	Protocol     string `yaml:"protocol"     envconfig:"KILN_PROTOCOL"`
	ProviderSeed string `yaml:"providerSeed" envconfig:"KILN_PROVIDER_SEED"`

	RandomnessFee string `yaml:"randomnessFee" envconfig:"KILN_RANDOMNESS_FEE"`

	Mining MiningConfig `yaml:"mining"`
	Spin   SpinConfig   `yaml:"spin"`
}

// AuctionConfig is the YAML shape of a pricing.Config
type AuctionConfig struct {
	EpochPeriod  string `yaml:"epochPeriod"`
	Multiplier   string `yaml:"multiplier"`
	MinInitPrice string `yaml:"minInitPrice"`
	MaxInitPrice string `yaml:"maxInitPrice"`
	SeedPrice    string `yaml:"seedPrice"`
}

// EmissionConfig is the YAML shape of an emission.Schedule
type EmissionConfig struct {
	HalvingPeriod string `yaml:"halvingPeriod"`
	InitialRate   string `yaml:"initialRate"`
	FloorRate     string `yaml:"floorRate"`
}

// MiningConfig configures the slot-occupancy engine
type MiningConfig struct {
	Capacity    uint64         `yaml:"capacity"`
	OccupantBps int64          `yaml:"occupantBps"`
	TreasuryBps int64          `yaml:"treasuryBps"`
	TeamBps     int64          `yaml:"teamBps"`
	ProtocolBps int64          `yaml:"protocolBps"`
	Auction     AuctionConfig  `yaml:"auction"`
	Emission    EmissionConfig `yaml:"emission"`

	MultiplierDrawEnabled bool    `yaml:"multiplierDrawEnabled"`
	MultiplierOptions     []int64 `yaml:"multiplierOptions"`
	MultiplierWindow      string  `yaml:"multiplierWindow"`
}

// SpinConfig configures the chance-game engine
type SpinConfig struct {
	TreasuryBps int64          `yaml:"treasuryBps"`
	TeamBps     int64          `yaml:"teamBps"`
	ProtocolBps int64          `yaml:"protocolBps"`
	Auction     AuctionConfig  `yaml:"auction"`
	Emission    EmissionConfig `yaml:"emission"`
	Odds        []int64        `yaml:"odds"`
	MinOddsBps  int64          `yaml:"minOddsBps"`
	MaxOddsBps  int64          `yaml:"maxOddsBps"`
}

func defaultAuction() AuctionConfig {
	return AuctionConfig{
		EpochPeriod:  "1h",
		Multiplier:   "2",
		MinInitPrice: "1",
		MaxInitPrice: "1000000",
		SeedPrice:    "100",
	}
}

func defaultEmission() EmissionConfig {
	return EmissionConfig{
		HalvingPeriod: "720h",
		InitialRate:   "10",
		FloorRate:     "1",
	}
}

// DefaultConfig returns a development-friendly configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:    ":8080",
		OpsListenAddress: ":9090",
		LogLevel:         "info",
		ProviderSeed:     "kiln-dev",
		RandomnessFee:    "1",
		Mining: MiningConfig{
			Capacity:          10,
			OccupantBps:       8000,
			TreasuryBps:       1500,
			TeamBps:           500,
			Auction:           defaultAuction(),
			Emission:          defaultEmission(),
			MultiplierOptions: []int64{10000, 15000, 20000},
			MultiplierWindow:  "1h",
		},
		Spin: SpinConfig{
			TreasuryBps: 9000,
			TeamBps:     1000,
			Auction:     defaultAuction(),
			Emission:    defaultEmission(),
			Odds:        []int64{0, 100, 500, 1000, 2500},
			MinOddsBps:  0,
			MaxOddsBps:  5000,
		},
	}
}

// Load reads the optional YAML file at path and applies environment
// overrides on top of the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("kiln", cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	return cfg, nil
}

// Address parses an optional hex address field; empty means unset
func Address(s string) (ids.Address, error) {
	if s == "" {
		return ids.ZeroAddress, nil
	}
	return ids.AddressFromString(s)
}

// Amount parses a decimal string field
func Amount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// PricingConfig converts an AuctionConfig to a pricing.Config
func (a AuctionConfig) PricingConfig() (pricing.Config, error) {
	period, err := time.ParseDuration(a.EpochPeriod)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("epochPeriod: %w", err)
	}
	multiplier, err := decimal.NewFromString(a.Multiplier)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("multiplier: %w", err)
	}
	minInit, err := decimal.NewFromString(a.MinInitPrice)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("minInitPrice: %w", err)
	}
	maxInit, err := decimal.NewFromString(a.MaxInitPrice)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("maxInitPrice: %w", err)
	}
	cfg := pricing.Config{
		EpochPeriod:  period,
		Multiplier:   multiplier,
		MinInitPrice: minInit,
		MaxInitPrice: maxInit,
	}
	return cfg, cfg.Validate()
}

// Schedule converts an EmissionConfig to an emission.Schedule anchored at
// the given start time
func (e EmissionConfig) Schedule(start time.Time) (emission.Schedule, error) {
	period, err := time.ParseDuration(e.HalvingPeriod)
	if err != nil {
		return emission.Schedule{}, fmt.Errorf("halvingPeriod: %w", err)
	}
	initial, err := decimal.NewFromString(e.InitialRate)
	if err != nil {
		return emission.Schedule{}, fmt.Errorf("initialRate: %w", err)
	}
	floor, err := decimal.NewFromString(e.FloorRate)
	if err != nil {
		return emission.Schedule{}, fmt.Errorf("floorRate: %w", err)
	}
	s := emission.Schedule{
		StartTime:     start,
		HalvingPeriod: period,
		InitialRate:   initial,
		FloorRate:     floor,
	}
	return s, s.Validate()
}
