package holocrypt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the front-end. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	SignIns            *prometheus.CounterVec
	SignUps            *prometheus.CounterVec
	SignOuts           prometheus.Counter
	ThrottleRejections *prometheus.CounterVec
	StateChanges       *prometheus.CounterVec
	GuardDecisions     *prometheus.CounterVec
	ClientScopes       prometheus.Gauge
}

// NewMetrics creates and registers the collectors on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SignIns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holocrypt_sign_ins_total",
				Help: "Sign in attempts by outcome",
			},
			[]string{"outcome"},
		),
		SignUps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holocrypt_sign_ups_total",
				Help: "Sign up attempts by outcome",
			},
			[]string{"outcome"},
		),
		SignOuts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "holocrypt_sign_outs_total",
				Help: "Sign outs",
			},
		),
		ThrottleRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holocrypt_login_throttle_rejections_total",
				Help: "Login submits rejected locally by reason",
			},
			[]string{"reason"},
		),
		StateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holocrypt_auth_state_changes_total",
				Help: "Auth state changes observed by client scopes",
			},
			[]string{"state"},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holocrypt_guard_decisions_total",
				Help: "Route guard decisions",
			},
			[]string{"decision"},
		),
		ClientScopes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "holocrypt_client_scopes",
				Help: "Live client scopes",
			},
		),
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if k := KindOf(err); k != KindUnknown {
		return string(k)
	}
	return "error"
}

func (m *Metrics) signIn(err error) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) signUp(err error) {
	if m == nil {
		return
	}
	m.SignUps.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) signOut() {
	if m == nil {
		return
	}
	m.SignOuts.Inc()
}

func (m *Metrics) throttled(err error) {
	if m == nil {
		return
	}
	reason := "too_many_attempts"
	if r := richError(err); r != nil && r.TextCode == TextCodeSubmitInFlight {
		reason = "in_flight"
	}
	m.ThrottleRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) stateChange(state AuthState) {
	if m == nil {
		return
	}
	label := "signed_out"
	if state.Session != nil {
		label = "signed_in"
	}
	m.StateChanges.WithLabelValues(label).Inc()
}

func (m *Metrics) guard(d GuardDecision) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) scopes(n int) {
	if m == nil {
		return
	}
	m.ClientScopes.Set(float64(n))
}
