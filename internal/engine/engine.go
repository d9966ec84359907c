// Package engine wires the rule store, evaluator, access log and threat
// detector into the simulate pipeline and produces reports.
//
// Every Simulate holds the pipeline read lock across evaluate, append and
// observe, so simulations interleave freely with each other. Report takes the
// write lock and then copies each component in turn; it never holds two
// component locks at once. Lock order is always pipeline, then component.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/audit"
	"grimm.is/sentinel/internal/clock"
	"grimm.is/sentinel/internal/events"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/logging"
	"grimm.is/sentinel/internal/metrics"
	"grimm.is/sentinel/internal/threat"
)

// Options configures an Engine. Zero values select defaults; Hub, Metrics
// and Audit are created when nil.
type Options struct {
	DefaultAction firewall.Action
	MaxLogEntries int
	Threat        threat.Config

	Clock   clock.Clock
	Logger  *logging.Logger
	Hub     *events.Hub
	Metrics *metrics.Registry
	Audit   *audit.Store
}

// Engine is the firewall decision engine.
type Engine struct {
	pipeline sync.RWMutex

	rules     *firewall.RuleStore
	evaluator *firewall.Evaluator
	log       *accesslog.Log
	detector  *threat.Detector

	hub     *events.Hub
	metrics *metrics.Registry
	audit   *audit.Store
	clock   clock.Clock
	logger  *logging.Logger
}

// Actor identifies who requested a management action.
type Actor struct {
	Addr      string
	RequestID string
}

// ConfigActor marks rules seeded from configuration.
var ConfigActor = Actor{Addr: "config"}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	clk := clock.Or(opts.Clock)
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if opts.DefaultAction == "" {
		opts.DefaultAction = firewall.ActionDeny
	}
	if _, err := firewall.ParseAction(string(opts.DefaultAction)); err != nil {
		return nil, fmt.Errorf("default action: %w", err)
	}
	if opts.Hub == nil {
		opts.Hub = events.NewHub(clk)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Audit == nil {
		store, err := audit.NewMemoryStore(clk, 0)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		opts.Audit = store
	}

	rules := firewall.NewRuleStore()
	return &Engine{
		rules:     rules,
		evaluator: firewall.NewEvaluator(rules, opts.DefaultAction),
		log:       accesslog.New(clk, opts.MaxLogEntries),
		detector:  threat.NewDetector(opts.Threat, clk, logger),
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		clock:     clk,
		logger:    logger.WithComponent("engine"),
	}, nil
}

// Hub returns the event bus.
func (e *Engine) Hub() *events.Hub { return e.hub }

// Metrics returns the metrics registry.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// DefaultAction returns the action applied when no rule matches.
func (e *Engine) DefaultAction() firewall.Action { return e.evaluator.DefaultAction() }

// ThreatConfig returns the effective detector configuration.
func (e *Engine) ThreatConfig() threat.Config { return e.detector.Config() }

// Seed adds rules in order, stopping at the first invalid draft.
func (e *Engine) Seed(ctx context.Context, drafts []firewall.RuleDraft) error {
	for i, d := range drafts {
		if _, err := e.AddRule(ctx, d, ConfigActor); err != nil {
			return fmt.Errorf("seed rule %d: %w", i, err)
		}
	}
	return nil
}

// AddRule validates and appends a rule at the lowest priority.
func (e *Engine) AddRule(ctx context.Context, d firewall.RuleDraft, actor Actor) (firewall.Rule, error) {
	rule, err := e.rules.Add(d)
	if err != nil {
		return firewall.Rule{}, err
	}

	e.metrics.RecordRuleMutation("add")
	e.logger.Info("rule added", "rule", rule.String(), "actor", actor.Addr)
	e.logger.Audit(audit.ActionRuleCreate, ruleResource(rule.ID), map[string]any{
		"actor": actor.Addr, "src_ip": rule.SourceSpec, "dst_port": rule.DestPort,
	})
	e.recordAudit(ctx, audit.Event{
		Actor:     actor.Addr,
		RequestID: actor.RequestID,
		Action:    audit.ActionRuleCreate,
		Resource:  ruleResource(rule.ID),
		Details: map[string]any{
			"action":   string(rule.Action),
			"src_ip":   rule.SourceSpec,
			"dst_port": rule.DestPort,
			"protocol": string(rule.Protocol),
		},
		Success: true,
	})
	e.hub.Publish(events.Event{Type: events.EventRuleAdded, Source: "engine", Data: rule})
	return rule, nil
}

// RemoveRule deletes a rule by id. Removing an absent id is a no-op and
// returns false.
func (e *Engine) RemoveRule(ctx context.Context, id int, actor Actor) bool {
	removed := e.rules.Remove(id)

	e.recordAudit(ctx, audit.Event{
		Actor:     actor.Addr,
		RequestID: actor.RequestID,
		Action:    audit.ActionRuleDelete,
		Resource:  ruleResource(id),
		Success:   removed,
	})
	if !removed {
		e.logger.Debug("rule delete ignored, no such rule", "id", id)
		return false
	}

	e.metrics.RecordRuleMutation("remove")
	e.logger.Info("rule removed", "id", id, "actor", actor.Addr)
	e.logger.Audit(audit.ActionRuleDelete, ruleResource(id), map[string]any{"actor": actor.Addr})
	e.hub.Publish(events.Event{Type: events.EventRuleRemoved, Source: "engine", Data: events.RuleRemovedData{ID: id}})
	return true
}

// Rules returns the rule set in priority order.
func (e *Engine) Rules() []firewall.Rule {
	return e.rules.List()
}

// Rule returns one rule by id.
func (e *Engine) Rule(id int) (firewall.Rule, bool) {
	return e.rules.Get(id)
}

// Logs returns the newest limit access log entries, oldest first. limit <= 0
// returns every retained entry.
func (e *Engine) Logs(limit int) []accesslog.Entry {
	return e.log.Last(limit)
}

// Threats returns every threat in first-raised order.
func (e *Engine) Threats() []threat.Threat {
	return e.detector.List()
}

// AuditEvents queries the management audit trail.
func (e *Engine) AuditEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	return e.audit.Query(ctx, f)
}

// Snapshot reports component sizes for the metrics collector.
func (e *Engine) Snapshot() metrics.Snapshot {
	published, dropped := e.hub.Stats()
	return metrics.Snapshot{
		Rules:           e.rules.Len(),
		LogEntries:      e.log.Len(),
		LogAppended:     e.log.Total(),
		Threats:         e.detector.Len(),
		TrackedSources:  e.detector.Tracked(),
		EventsPublished: published,
		EventsDropped:   dropped,
	}
}

// Ready reports whether backing stores are usable.
func (e *Engine) Ready(ctx context.Context) error {
	if err := e.audit.Ping(ctx); err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	return nil
}

// RunSweeper drops idle detection windows until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) error {
	return e.detector.Run(ctx, interval)
}

// Close releases the audit store.
func (e *Engine) Close() error {
	return e.audit.Close()
}

func (e *Engine) recordAudit(ctx context.Context, evt audit.Event) {
	if _, err := e.audit.Write(ctx, evt); err != nil {
		e.logger.Warn("failed to record audit event", "action", evt.Action, "error", err)
	}
}

func ruleResource(id int) string {
	return "rule/" + strconv.Itoa(id)
}
