package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/threat"
)

// Report is an exportable snapshot of rules, logs and threats.
type Report struct {
	ReportID         string            `json:"report_id" yaml:"report_id"`
	GeneratedAt      time.Time         `json:"generated_at" yaml:"generated_at"`
	ActiveRulesCount int               `json:"active_rules_count" yaml:"active_rules_count"`
	TotalLogEntries  int               `json:"total_log_entries" yaml:"total_log_entries"`
	TotalThreats     int               `json:"total_threats" yaml:"total_threats"`
	Summary          string            `json:"summary" yaml:"summary"`
	Rules            []firewall.Rule   `json:"rules" yaml:"rules"`
	Logs             []accesslog.Entry `json:"logs" yaml:"logs"`
	Threats          []threat.Threat   `json:"threats" yaml:"threats"`
}

// Report snapshots every component. Pending simulations finish first and new
// ones wait, so each simulated packet appears either completely (log entry and
// threat effects) or not at all.
func (e *Engine) Report() Report {
	e.pipeline.Lock()
	rules := e.rules.List()
	logs := e.log.List()
	threats := e.detector.List()
	e.pipeline.Unlock()

	r := Report{
		ReportID:         uuid.NewString(),
		GeneratedAt:      e.clock.Now(),
		ActiveRulesCount: len(rules),
		TotalLogEntries:  len(logs),
		TotalThreats:     len(threats),
		Summary:          fmt.Sprintf("Security scan completed. Found %d potential threats.", len(threats)),
		Rules:            rules,
		Logs:             logs,
		Threats:          threats,
	}
	e.logger.Info("report generated", "report_id", r.ReportID, "rules", r.ActiveRulesCount,
		"logs", r.TotalLogEntries, "threats", r.TotalThreats)
	return r
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAML renders the report as YAML.
func (r Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// Filename is the suggested download name for the report.
func (r Report) Filename(ext string) string {
	return fmt.Sprintf("security_report_%s.%s", r.GeneratedAt.Format("20060102_150405"), ext)
}
