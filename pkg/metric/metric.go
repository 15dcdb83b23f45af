// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/core"
)

// Metrics holds all prometheus metrics for the kiln engines
type Metrics struct {
	// Mining engine metrics
	MinesProcessed  prometheus.Counter
	ClaimsProcessed prometheus.Counter
	CapacityChanges prometheus.Counter
	MultiplierDraws prometheus.Counter
	MinePricePaid   prometheus.Histogram

	// Spin engine metrics
	SpinsProcessed       prometheus.Counter
	SettlementsProcessed prometheus.Counter
	SettlementPayout     prometheus.Histogram
	OddsUpdates          prometheus.Counter
	PrizePoolBalance     prometheus.Gauge

	// Fee metrics
	FeePayments prometheus.CounterVec
}

// NewMetrics creates and registers all kiln metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MinesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_mines_processed_total",
			Help: "Total number of successful mine actions",
		}),
		ClaimsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_claims_processed_total",
			Help: "Total number of claimable-balance withdrawals",
		}),
		CapacityChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_capacity_changes_total",
			Help: "Total number of slot-capacity increases",
		}),
		MultiplierDraws: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_multiplier_draws_total",
			Help: "Total number of applied slot rate-multiplier draws",
		}),
		MinePricePaid: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiln_mine_price_paid",
			Help:    "Distribution of prices paid for slot displacement",
			Buckets: prometheus.ExponentialBuckets(0.01, 10, 8),
		}),
		SpinsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_spins_processed_total",
			Help: "Total number of successful spin actions",
		}),
		SettlementsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_settlements_processed_total",
			Help: "Total number of randomness settlements applied",
		}),
		SettlementPayout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kiln_settlement_payout",
			Help:    "Distribution of settlement payout amounts",
			Buckets: prometheus.ExponentialBuckets(0.01, 10, 8),
		}),
		OddsUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_odds_updates_total",
			Help: "Total number of odds-table replacements",
		}),
		PrizePoolBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_prize_pool_balance",
			Help: "Reward-token balance held by the spin engine",
		}),
		FeePayments: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiln_fee_payments_total",
			Help: "Total number of fee-split payments by source and share",
		}, []string{"source", "share"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MinesProcessed,
			m.ClaimsProcessed,
			m.CapacityChanges,
			m.MultiplierDraws,
			m.MinePricePaid,
			m.SpinsProcessed,
			m.SettlementsProcessed,
			m.SettlementPayout,
			m.OddsUpdates,
			m.PrizePoolBalance,
			m.FeePayments,
		)
	}

	return m
}

// Recorder returns a core.Recorder that updates metrics from engine events
func (m *Metrics) Recorder() core.Recorder {
	return core.RecorderFunc(func(e core.Event) {
		switch e.Type {
		case core.EventTypeMine:
			m.MinesProcessed.Inc()
			if data, ok := e.Data.(core.MineEvent); ok {
				m.MinePricePaid.Observe(toFloat(data.PricePaid))
			}
		case core.EventTypeClaim:
			m.ClaimsProcessed.Inc()
		case core.EventTypeSpin:
			m.SpinsProcessed.Inc()
		case core.EventTypeSettlement:
			m.SettlementsProcessed.Inc()
			if data, ok := e.Data.(core.SettlementEvent); ok {
				m.SettlementPayout.Observe(toFloat(data.Payout))
				m.PrizePoolBalance.Set(toFloat(data.PoolBalance.Sub(data.Payout)))
			}
		case core.EventTypeFeePayment:
			if data, ok := e.Data.(core.FeePaymentEvent); ok {
				m.FeePayments.WithLabelValues(data.Source, data.Share).Inc()
			}
		case core.EventTypeCapacity:
			m.CapacityChanges.Inc()
		case core.EventTypeOdds:
			m.OddsUpdates.Inc()
		case core.EventTypeMultiplier:
			m.MultiplierDraws.Inc()
		}
	})
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
