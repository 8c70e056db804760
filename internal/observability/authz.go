package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthzMetrics counts access-control decisions and session reconciliation.
type AuthzMetrics struct {
	edge     *prometheus.CounterVec
	checks   *prometheus.CounterVec
	sessions *prometheus.CounterVec
	markers  prometheus.Counter
}

// NewAuthzMetrics registers the access-control collectors. A nil registerer
// uses the default Prometheus registerer.
func NewAuthzMetrics(registerer prometheus.Registerer) *AuthzMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &AuthzMetrics{
		edge: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "masa_authz_edge_decisions_total",
			Help: "Edge gate decisions on protected paths by outcome and reason.",
		}, []string{"decision", "reason"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "masa_authz_checks_total",
			Help: "Exact permission checks by source mode and outcome.",
		}, []string{"mode", "outcome"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "masa_session_checks_total",
			Help: "Session check polls by outcome.",
		}, []string{"outcome"}),
		markers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "masa_session_invalidations_total",
			Help: "Invalidation markers written.",
		}),
	}
	registerer.MustRegister(m.edge, m.checks, m.sessions, m.markers)
	return m
}

// ObserveEdgeDecision records a gate decision.
func (m *AuthzMetrics) ObserveEdgeDecision(decision, reason string) {
	if m == nil {
		return
	}
	m.edge.WithLabelValues(decision, reason).Inc()
}

// ObserveCheck records an exact permission check.
func (m *AuthzMetrics) ObserveCheck(mode, outcome string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(mode, outcome).Inc()
}

// ObserveSessionCheck records a session check poll.
func (m *AuthzMetrics) ObserveSessionCheck(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

// ObserveMarkers records n markers written.
func (m *AuthzMetrics) ObserveMarkers(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.markers.Add(float64(n))
}
