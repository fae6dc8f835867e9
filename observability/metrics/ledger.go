package metrics

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics exposes the escrow aggregates as gauges.
type LedgerMetrics struct {
	escrows      *prometheus.GaugeVec
	volume       prometheus.Gauge
	protocolFees prometheus.Gauge
	arbiterFees  prometheus.Gauge
	paused       prometheus.Gauge
}

// Snapshot carries the aggregates published by Ledger().Publish.
type Snapshot struct {
	Total        uint64
	Completed    uint64
	Disputed     uint64
	Resolved     uint64
	Refunded     uint64
	Volume       *uint256.Int
	ProtocolFees *uint256.Int
	ArbiterFees  *uint256.Int
	Paused       bool
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			escrows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "escrow_ledger_escrows",
				Help: "Escrows recorded by the ledger by lifecycle counter.",
			}, []string{"counter"}),
			volume: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_ledger_volume",
				Help: "Total value deposited into custody.",
			}),
			protocolFees: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_ledger_protocol_fees",
				Help: "Cumulative protocol fees paid to the fee collector.",
			}),
			arbiterFees: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_ledger_arbiter_fees",
				Help: "Cumulative fees paid to arbiters.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_ledger_paused",
				Help: "1 while the ledger is paused or in emergency mode.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.escrows,
			ledgerRegistry.volume,
			ledgerRegistry.protocolFees,
			ledgerRegistry.arbiterFees,
			ledgerRegistry.paused,
		)
	})
	return ledgerRegistry
}

// Publish replaces every gauge with the values in s.
func (m *LedgerMetrics) Publish(s Snapshot) {
	if m == nil {
		return
	}
	m.escrows.WithLabelValues("total").Set(float64(s.Total))
	m.escrows.WithLabelValues("completed").Set(float64(s.Completed))
	m.escrows.WithLabelValues("disputed").Set(float64(s.Disputed))
	m.escrows.WithLabelValues("resolved").Set(float64(s.Resolved))
	m.escrows.WithLabelValues("refunded").Set(float64(s.Refunded))
	m.volume.Set(toFloat(s.Volume))
	m.protocolFees.Set(toFloat(s.ProtocolFees))
	m.arbiterFees.Set(toFloat(s.ArbiterFees))
	if s.Paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
}

// toFloat is lossy above 2^53; gauges are indicative only.
func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
