package telemetry

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authorization outcomes recorded by the guard.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// PromMetrics holds the Prometheus collectors scraped on /metrics.
// The OTLP pipeline in metrics.go carries HTTP RED metrics; these cover the
// membership model itself.
type PromMetrics struct {
	Registry *prometheus.Registry

	AuthzDecisions   *prometheus.CounterVec
	MembershipEvents *prometheus.CounterVec
	InviteJoins      *prometheus.CounterVec
}

// NewPromMetrics creates a registry with Go/process collectors and the domain counters.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &PromMetrics{
		Registry: registry,
		AuthzDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamboard_authz_decisions_total",
				Help: "Authorization guard decisions by permission and outcome",
			},
			[]string{"permission", "outcome"},
		),
		MembershipEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamboard_membership_events_total",
				Help: "Membership mutations by kind and result",
			},
			[]string{"event", "result"},
		),
		InviteJoins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamboard_invite_joins_total",
				Help: "Invite code joins by result (created, existing, invalid)",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(m.AuthzDecisions, m.MembershipEvents, m.InviteJoins)
	return m
}

// ObserveAuthz counts one guard decision. Safe on a nil receiver.
func (m *PromMetrics) ObserveAuthz(permission, outcome string) {
	if m == nil {
		return
	}
	m.AuthzDecisions.WithLabelValues(permission, outcome).Inc()
}

// ObserveMembership counts one membership mutation. Safe on a nil receiver.
func (m *PromMetrics) ObserveMembership(event, result string) {
	if m == nil {
		return
	}
	m.MembershipEvents.WithLabelValues(event, result).Inc()
}

// ObserveJoin counts one invite join attempt. Safe on a nil receiver.
func (m *PromMetrics) ObserveJoin(result string) {
	if m == nil {
		return
	}
	m.InviteJoins.WithLabelValues(result).Inc()
}

// RegisterPoolStats exposes pgxpool connection gauges.
func (m *PromMetrics) RegisterPoolStats(pool *pgxpool.Pool) {
	if m == nil || pool == nil {
		return
	}
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return fn(pool.Stat())
		})
	}
	m.Registry.MustRegister(
		gauge("teamboard_db_connections_acquired", "Connections currently in use",
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("teamboard_db_connections_idle", "Idle connections",
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("teamboard_db_connections_total", "Total connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
	)
}

// Handler serves the registry in the Prometheus text format.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
