package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stampcard"

// LoyaltyMetrics tracks redemption outcomes and ledger activity.
type LoyaltyMetrics struct {
	redemptions    *prometheus.CounterVec
	stampsCredited *prometheus.CounterVec
	codesIssued    prometheus.Counter
	activeCodes    prometheus.Gauge
}

// NewLoyaltyMetrics registers the loyalty metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewLoyaltyMetrics(reg prometheus.Registerer) *LoyaltyMetrics {
	if reg == nil {
		return &LoyaltyMetrics{}
	}
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loyalty_redemptions_total",
		Help:      "Code redemption attempts by mode and outcome.",
	}, []string{"mode", "outcome"})
	stampsCredited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loyalty_stamps_credited_total",
		Help:      "Stamps applied to profiles after clamping.",
	}, []string{"source"})
	codesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loyalty_codes_issued_total",
		Help:      "Redemption codes issued.",
	})
	activeCodes := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "loyalty_active_codes",
		Help:      "Codes that are neither redeemed nor expired.",
	})
	reg.MustRegister(redemptions, stampsCredited, codesIssued, activeCodes)
	return &LoyaltyMetrics{
		redemptions:    redemptions,
		stampsCredited: stampsCredited,
		codesIssued:    codesIssued,
		activeCodes:    activeCodes,
	}
}

// ObserveRedemption counts one redeem or activate attempt.
func (m *LoyaltyMetrics) ObserveRedemption(mode, outcome string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(mode), normalizeLabel(outcome)).Inc()
}

// AddStampsCredited adds n applied stamps for the source.
func (m *LoyaltyMetrics) AddStampsCredited(source string, n int) {
	if m == nil || m.stampsCredited == nil || n <= 0 {
		return
	}
	m.stampsCredited.WithLabelValues(normalizeLabel(source)).Add(float64(n))
}

// IncCodesIssued counts an issued code.
func (m *LoyaltyMetrics) IncCodesIssued() {
	if m == nil || m.codesIssued == nil {
		return
	}
	m.codesIssued.Inc()
}

// SetActiveCodes publishes the current active code count.
func (m *LoyaltyMetrics) SetActiveCodes(n int64) {
	if m == nil || m.activeCodes == nil {
		return
	}
	m.activeCodes.Set(float64(n))
}
