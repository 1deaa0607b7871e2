package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts flow outcomes. A nil *Metrics records nothing.
type Metrics struct {
	logins      *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	logouts     *prometheus.CounterVec
	revoked     prometheus.Counter
	revocations *prometheus.CounterVec
	limited     *prometheus.CounterVec
}

// NewMetrics registers the session counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessions",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessions",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by result.",
		}, []string{"result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessions",
			Name:      "logouts_total",
			Help:      "Logout calls by kind and result.",
		}, []string{"kind", "result"}),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessions",
			Name:      "sessions_revoked_total",
			Help:      "Sessions moved to inactive.",
		}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessions",
			Name:      "revocation_lookups_total",
			Help:      "Blacklist lookups by answering tier and verdict.",
		}, []string{"source", "verdict"}),
		limited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessions",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter, by route.",
		}, []string{"route"}),
	}
	reg.MustRegister(m.logins, m.refreshes, m.logouts, m.revoked, m.revocations, m.limited)
	return m
}

// result turns a flow error into a low-cardinality label.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	for _, target := range flowErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "error"
}

func (m *Metrics) login(err error) {
	if m != nil {
		m.logins.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) refresh(err error) {
	if m != nil {
		m.refreshes.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) logout(kind string, err error) {
	if m != nil {
		m.logouts.WithLabelValues(kind, result(err)).Inc()
	}
}

func (m *Metrics) sessionRevoked() {
	if m != nil {
		m.revoked.Inc()
	}
}

func (m *Metrics) lookup(source string, revoked bool) {
	if m == nil {
		return
	}
	verdict := "clear"
	if revoked {
		verdict = "revoked"
	}
	m.revocations.WithLabelValues(source, verdict).Inc()
}

// RateLimited counts a request refused on route.
func (m *Metrics) RateLimited(route string) {
	if m != nil {
		m.limited.WithLabelValues(route).Inc()
	}
}
