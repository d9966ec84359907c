// Package metrics exposes engine activity in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all sentinel metrics on a private prometheus registry, so
// several engines can coexist in one process (tests, embedding).
type Registry struct {
	reg *prometheus.Registry

	// Evaluation
	PacketsEvaluated *prometheus.CounterVec
	RuleMatches      *prometheus.CounterVec
	EvaluationErrors prometheus.Counter

	// State
	RulesActive     prometheus.Gauge
	LogEntries      prometheus.Gauge
	LogAppended     prometheus.Gauge
	ThreatsActive   prometheus.Gauge
	TrackedSources  prometheus.Gauge
	ThreatsRaised   *prometheus.CounterVec
	RuleMutations   *prometheus.CounterVec
	EventsPublished prometheus.Gauge
	EventsDropped   prometheus.Gauge

	// System
	Uptime      prometheus.GaugeFunc
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// New creates a registry with Go runtime and process collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	started := time.Now()

	r := &Registry{reg: reg}

	r.PacketsEvaluated = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_packets_evaluated_total",
		Help: "Total simulated packets evaluated",
	}, []string{"action", "protocol"})

	r.RuleMatches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_rule_matches_total",
		Help: "Number of times each rule decided a packet; rule=\"default\" when none matched",
	}, []string{"rule", "action"})

	r.EvaluationErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_evaluation_errors_total",
		Help: "Evaluations that failed because a stored rule could not be matched",
	})

	r.RulesActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_rules_active",
		Help: "Number of rules in the rule store",
	})

	r.LogEntries = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_access_log_entries",
		Help: "Entries currently retained in the access log",
	})

	r.LogAppended = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_access_log_appended",
		Help: "Entries ever appended to the access log, including evicted ones",
	})

	r.ThreatsActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_threats",
		Help: "Number of threat records",
	})

	r.TrackedSources = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_threat_tracked_sources",
		Help: "Sources with a live detection window",
	})

	r.ThreatsRaised = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_threats_raised_total",
		Help: "Threat records raised, by type",
	}, []string{"type"})

	r.RuleMutations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_rule_mutations_total",
		Help: "Rule additions and removals",
	}, []string{"op"})

	r.EventsPublished = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_events_published",
		Help: "Events published on the internal bus",
	})

	r.EventsDropped = factory.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_events_dropped",
		Help: "Events dropped because a subscriber was slow",
	})

	r.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sentinel_uptime_seconds",
		Help: "Seconds since the metrics registry was created",
	}, func() float64 { return time.Since(started).Seconds() })

	r.APIRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordEvaluation records one decided packet. ruleID 0 means the default
// action applied.
func (r *Registry) RecordEvaluation(action, protocol string, ruleID int) {
	r.PacketsEvaluated.WithLabelValues(action, protocol).Inc()
	rule := "default"
	if ruleID > 0 {
		rule = strconv.Itoa(ruleID)
	}
	r.RuleMatches.WithLabelValues(rule, action).Inc()
}

// RecordThreatRaised counts a newly raised threat.
func (r *Registry) RecordThreatRaised(typ string) {
	r.ThreatsRaised.WithLabelValues(typ).Inc()
}

// RecordRuleMutation counts a rule add or remove.
func (r *Registry) RecordRuleMutation(op string) {
	r.RuleMutations.WithLabelValues(op).Inc()
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}
