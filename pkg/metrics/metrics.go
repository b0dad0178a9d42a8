// Package metrics holds the prometheus collectors of the bump services.
//
//   - bump_trades_total{outcome}          trade attempts by outcome
//   - bump_sessions_active                sessions driven by this process
//   - bump_sessions_stopped_total{reason} session stops by reason
//   - bump_ledger_conflicts_total         lost compare-and-set races
//   - bump_credit_total{kind,verified}    inbound credit events
//
// Collectors are registered in init() and served at /metrics.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bump_trades_total",
			Help: "Trade attempts by outcome",
		},
		[]string{"outcome"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bump_sessions_active",
			Help: "Sessions currently driven by this process",
		},
	)

	SessionsStopped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bump_sessions_stopped_total",
			Help: "Session stops by reason",
		},
		[]string{"reason"},
	)

	LedgerConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bump_ledger_conflicts_total",
			Help: "Ledger compare-and-set attempts that lost a race",
		},
	)

	Credits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bump_credit_total",
			Help: "Inbound credit events",
		},
		[]string{"kind", "verified"},
	)
)

func init() {
	prometheus.MustRegister(Trades, ActiveSessions, SessionsStopped, LedgerConflicts, Credits)
}

// Handler exposes the default registry for gin
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
