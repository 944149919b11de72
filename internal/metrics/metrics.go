package metrics

import (
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"pegpool/internal/fixed"
	"pegpool/internal/model"
)

// PoolMetrics exposes pool activity to Prometheus. A nil *PoolMetrics is a no-op.
type PoolMetrics struct {
	events          *prometheus.CounterVec
	errors          *prometheus.CounterVec
	collateralRatio prometheus.Gauge
	stableMinted    prometheus.Counter
	stableRedeemed  prometheus.Counter
	feesAccrued     prometheus.Counter
	feesSwept       prometheus.Counter
	transferred     *prometheus.CounterVec
	journalFailures prometheus.Counter
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pegpool_events_total",
			Help: "Count of committed pool events by name.",
		}, []string{"event"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pegpool_errors_total",
			Help: "Count of rejected pool calls by operation and error kind.",
		}, []string{"op", "kind"}),
		collateralRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pegpool_collateral_ratio",
			Help: "Current collateral ratio as a fraction.",
		}),
		stableMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegpool_stable_minted_total",
			Help: "Stable units credited by mints.",
		}),
		stableRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegpool_stable_redeemed_total",
			Help: "Stable units burned by redemptions.",
		}),
		feesAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegpool_fees_accrued_total",
			Help: "Collateral-denominated minting fees accrued.",
		}),
		feesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegpool_fees_swept_total",
			Help: "Collateral fees paid to the treasury.",
		}),
		transferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pegpool_collected_total",
			Help: "Amounts paid out by collect, by asset.",
		}, []string{"asset"}),
		journalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pegpool_event_sink_failures_total",
			Help: "Number of event batches an event sink failed to record.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.events,
			m.errors,
			m.collateralRatio,
			m.stableMinted,
			m.stableRedeemed,
			m.feesAccrued,
			m.feesSwept,
			m.transferred,
			m.journalFailures,
		)
	}
	return m
}

// SetCollateralRatio records the current 6-decimal ratio.
func (m *PoolMetrics) SetCollateralRatio(ratio *uint256.Int) {
	if m == nil {
		return
	}
	m.collateralRatio.Set(fixed.RatioFloat(ratio))
}

// ObserveError counts a rejected call.
func (m *PoolMetrics) ObserveError(op, kind string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if kind == "" {
		kind = "unknown"
	}
	m.errors.WithLabelValues(op, kind).Inc()
}

// ObserveSinkFailure counts an event batch a sink dropped.
func (m *PoolMetrics) ObserveSinkFailure() {
	if m == nil {
		return
	}
	m.journalFailures.Inc()
}

// PutEvents updates counters from committed events. It never fails.
func (m *PoolMetrics) PutEvents(events []model.Event) error {
	if m == nil {
		return nil
	}
	for _, event := range events {
		m.events.WithLabelValues(event.Name).Inc()
		switch data := event.Data.(type) {
		case model.MintEventData:
			m.stableMinted.Add(decFloat(data.StableOut))
			m.feesAccrued.Add(decFloat(data.Fee))
		case model.RedeemEventData:
			m.stableRedeemed.Add(decFloat(data.StableIn))
		case model.TransferEventData:
			m.transferred.WithLabelValues(string(data.Asset)).Add(decFloat(data.Amount))
		case model.FeesSweptData:
			m.feesSwept.Add(decFloat(data.Amount))
		case model.RatioChangedData:
			if event.Name == model.EventCollateralRatioUpdated {
				if ratio, err := uint256.FromDecimal(data.Value); err == nil {
					m.SetCollateralRatio(ratio)
				}
			}
		}
	}
	return nil
}

func decFloat(value string) float64 {
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return 0
	}
	return fixed.Float(amount)
}
