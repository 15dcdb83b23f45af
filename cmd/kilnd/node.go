// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilnlabs/kiln/core"
	"github.com/kilnlabs/kiln/internal/config"
	"github.com/kilnlabs/kiln/pkg/fees"
	"github.com/kilnlabs/kiln/pkg/ids"
	"github.com/kilnlabs/kiln/pkg/log"
	"github.com/kilnlabs/kiln/pkg/metric"
	"github.com/kilnlabs/kiln/pkg/mining"
	"github.com/kilnlabs/kiln/pkg/random"
	"github.com/kilnlabs/kiln/pkg/spin"
	"github.com/kilnlabs/kiln/pkg/token"
)

const (
	shutdownTimeout = 5 * time.Second
	fulfillInterval = 500 * time.Millisecond
)

// Node wires the engines, ledgers, randomness provider, and servers into
// one runnable process.
type Node struct {
	cfg *config.Config
	log log.Logger

	admin    ids.Address
	treasury ids.Address

	payment *token.Ledger
	reward  *token.Ledger

	provider *random.LocalProvider
	mining   *mining.Engine
	spin     *spin.Engine

	registry *prometheus.Registry
	metrics  *metric.Metrics
	bus      *core.Bus

	apiServer *http.Server
	opsServer *http.Server
}

// NewNode builds a node from configuration. Unset principal addresses
// are generated fresh and logged so a development run needs no setup.
func NewNode(cfg *config.Config, logger log.Logger) (*Node, error) {
	n := &Node{
		cfg:      cfg,
		log:      logger,
		registry: prometheus.NewRegistry(),
		bus:      core.NewBus(256),
	}
	n.metrics = metric.NewMetrics(n.registry)
	recorder := core.MultiRecorder(n.metrics.Recorder(), n.bus)

	var err error
	if n.admin, err = principal(cfg.Admin, "admin", logger); err != nil {
		return nil, err
	}
	if n.treasury, err = principal(cfg.Treasury, "treasury", logger); err != nil {
		return nil, err
	}
	team, err := config.Address(cfg.Team)
	if err != nil {
		return nil, fmt.Errorf("team address: %w", err)
	}
	protocol, err := config.Address(cfg.Protocol)
	if err != nil {
		return nil, fmt.Errorf("protocol address: %w", err)
	}

	fee, err := config.Amount(cfg.RandomnessFee)
	if err != nil {
		return nil, fmt.Errorf("randomness fee: %w", err)
	}
	n.provider = random.NewLocalProvider(ids.GenerateAddress(), fee, []byte(cfg.ProviderSeed))

	miningAddr := ids.GenerateAddress()
	spinAddr := ids.GenerateAddress()

	// The payment token is mintable by the admin so the faucet endpoint
	// can fund accounts; the reward token is mintable by the engines only.
	n.payment = token.NewLedger("PAY", n.admin)
	n.reward = token.NewLedger("KILN", miningAddr, spinAddr)

	now := time.Now()

	miningCfg, miningSplit, err := n.miningSetup(miningAddr, team, protocol, now)
	if err != nil {
		return nil, fmt.Errorf("mining setup: %w", err)
	}
	n.mining, err = mining.NewEngine(miningCfg, n.payment, n.reward, miningSplit,
		n.provider, core.SystemClock{}, recorder, logger)
	if err != nil {
		return nil, fmt.Errorf("mining engine: %w", err)
	}

	spinCfg, spinSplit, err := n.spinSetup(spinAddr, team, protocol, now)
	if err != nil {
		return nil, fmt.Errorf("spin setup: %w", err)
	}
	n.spin, err = spin.NewEngine(spinCfg, n.payment, n.reward, spinSplit,
		n.provider, core.SystemClock{}, recorder, logger)
	if err != nil {
		return nil, fmt.Errorf("spin engine: %w", err)
	}

	return n, nil
}

func principal(s, name string, logger log.Logger) (ids.Address, error) {
	addr, err := config.Address(s)
	if err != nil {
		return ids.ZeroAddress, fmt.Errorf("%s address: %w", name, err)
	}
	if addr.IsZero() {
		addr = ids.GenerateAddress()
		logger.Info("generated "+name+" address", "address", addr.String())
	}
	return addr, nil
}

func (n *Node) miningSetup(engineAddr, team, protocol ids.Address, now time.Time) (mining.Config, *fees.Splitter, error) {
	mc := n.cfg.Mining

	splitter, err := fees.NewSplitter([]fees.Share{
		{Name: mining.OccupantShare, Bps: mc.OccupantBps},
		{Name: "treasury", Recipient: n.treasury, Bps: mc.TreasuryBps},
		{Name: "team", Recipient: team, Bps: mc.TeamBps},
		{Name: "protocol", Recipient: protocol, Bps: mc.ProtocolBps},
	}, 1)
	if err != nil {
		return mining.Config{}, nil, err
	}

	pricingCfg, err := mc.Auction.PricingConfig()
	if err != nil {
		return mining.Config{}, nil, err
	}
	seed, err := config.Amount(mc.Auction.SeedPrice)
	if err != nil {
		return mining.Config{}, nil, err
	}
	schedule, err := mc.Emission.Schedule(now)
	if err != nil {
		return mining.Config{}, nil, err
	}
	window, err := time.ParseDuration(mc.MultiplierWindow)
	if err != nil {
		return mining.Config{}, nil, fmt.Errorf("multiplierWindow: %w", err)
	}

	return mining.Config{
		Admin:         n.admin,
		EngineAddress: engineAddr,
		Capacity:      mc.Capacity,
		SeedInitPrice: seed,
		Pricing:       pricingCfg,
		Emission:      schedule,
		MultiplierDraw: mining.MultiplierDrawConfig{
			Enabled: mc.MultiplierDrawEnabled,
			Options: mc.MultiplierOptions,
			Window:  window,
		},
	}, splitter, nil
}

func (n *Node) spinSetup(engineAddr, team, protocol ids.Address, now time.Time) (spin.Config, *fees.Splitter, error) {
	sc := n.cfg.Spin

	splitter, err := fees.NewSplitter([]fees.Share{
		{Name: "treasury", Recipient: n.treasury, Bps: sc.TreasuryBps},
		{Name: "team", Recipient: team, Bps: sc.TeamBps},
		{Name: "protocol", Recipient: protocol, Bps: sc.ProtocolBps},
	}, 0)
	if err != nil {
		return spin.Config{}, nil, err
	}

	pricingCfg, err := sc.Auction.PricingConfig()
	if err != nil {
		return spin.Config{}, nil, err
	}
	seed, err := config.Amount(sc.Auction.SeedPrice)
	if err != nil {
		return spin.Config{}, nil, err
	}
	schedule, err := sc.Emission.Schedule(now)
	if err != nil {
		return spin.Config{}, nil, err
	}

	return spin.Config{
		Admin:         n.admin,
		EngineAddress: engineAddr,
		SeedInitPrice: seed,
		Pricing:       pricingCfg,
		Emission:      schedule,
		Odds:          sc.Odds,
		MinOddsBps:    sc.MinOddsBps,
		MaxOddsBps:    sc.MaxOddsBps,
	}, splitter, nil
}

// Run starts the API and ops servers plus the randomness fulfillment
// loop, then blocks until a shutdown signal arrives.
func (n *Node) Run() error {
	n.apiServer = &http.Server{
		Addr:    n.cfg.ListenAddress,
		Handler: n.setupRouter(),
	}
	n.opsServer = &http.Server{
		Addr:    n.cfg.OpsListenAddress,
		Handler: n.setupOpsRoutes(),
	}

	errc := make(chan error, 2)
	go func() {
		n.log.Info("api server listening", "address", n.cfg.ListenAddress)
		if err := n.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		n.log.Info("ops server listening", "address", n.cfg.OpsListenAddress)
		if err := n.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("ops server: %w", err)
		}
	}()

	fulfillDone := make(chan struct{})
	go n.fulfillLoop(fulfillDone)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		close(fulfillDone)
		return err
	case sig := <-quit:
		n.log.Info("shutting down", "signal", sig.String())
	}
	close(fulfillDone)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.apiServer.Shutdown(ctx); err != nil {
		n.log.Error("api server shutdown", "error", err)
	}
	if err := n.opsServer.Shutdown(ctx); err != nil {
		n.log.Error("ops server shutdown", "error", err)
	}
	n.log.Info("node exited")
	return nil
}

// fulfillLoop periodically delivers pending randomness so settlements
// land without an external provider. Delivery stays asynchronous: a
// request is never settled in the call that created it.
func (n *Node) fulfillLoop(done <-chan struct{}) {
	ticker := time.NewTicker(fulfillInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if fulfilled := n.provider.FulfillAll(); fulfilled > 0 {
				n.log.Debug("fulfilled randomness requests", "count", fulfilled)
			}
		}
	}
}

func (n *Node) setupOpsRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{})).Methods("GET")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","time":%d}`, time.Now().Unix())
	}).Methods("GET")

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ready":true,"pending_randomness":%d}`, len(n.provider.Pending()))
	}).Methods("GET")

	return r
}
