package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate normalizes c and checks every field, returning ValidationErrors
// when anything is wrong.
func (c *Config) Validate() error {
	c.Normalize()

	var errs ValidationErrors

	v, err := ParseVersion(c.SchemaVersion)
	if err != nil {
		errs.add("schema_version", "%v", err)
	} else if !IsSupportedVersion(v) {
		errs.add("schema_version", "unsupported version %s (supported: %v)", v, SupportedVersions)
	}

	if _, err := firewall.ParseAction(c.DefaultAction); err != nil {
		errs.add("default_action", "must be ALLOW or DENY, got %q", c.DefaultAction)
	}

	if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
		errs.add("api.listen", "invalid address %q: %v", c.API.Listen, err)
	}
	nonNegative(&errs, "api.logs_limit", *c.API.LogsLimit)
	nonNegative(&errs, "api.rate_limit", *c.API.RateLimit)
	nonNegative(&errs, "api.max_connections", *c.API.MaxConnections)
	positiveDuration(&errs, "api.read_timeout", c.API.ReadTimeout)
	positiveDuration(&errs, "api.write_timeout", c.API.WriteTimeout)
	for i, origin := range c.API.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			errs.add(fmt.Sprintf("api.cors_origins[%d]", i), "must not be empty")
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.add("logging.level", "%v", err)
	}

	nonNegative(&errs, "access_log.max_entries", *c.AccessLog.MaxEntries)
	nonNegative(&errs, "audit.max_entries", *c.Audit.MaxEntries)

	positiveDuration(&errs, "threat_detection.window", c.ThreatDetection.Window)
	positiveDuration(&errs, "threat_detection.sweep_interval", c.ThreatDetection.SweepInterval)
	if c.ThreatDetection.PortScanThreshold < 1 {
		errs.add("threat_detection.port_scan_threshold", "must be at least 1, got %d", c.ThreatDetection.PortScanThreshold)
	}
	if c.ThreatDetection.BruteForceThreshold < 1 {
		errs.add("threat_detection.brute_force_threshold", "must be at least 1, got %d", c.ThreatDetection.BruteForceThreshold)
	}

	positiveDuration(&errs, "metrics.interval", c.Metrics.Interval)

	for i, r := range c.Rules {
		if err := r.Draft().Validate(); err != nil {
			errs.add(fmt.Sprintf("rule[%d]", i), "%v", err)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func nonNegative(errs *ValidationErrors, field string, v int) {
	if v < 0 {
		errs.add(field, "must not be negative, got %d", v)
	}
}

func positiveDuration(errs *ValidationErrors, field, s string) {
	d, err := time.ParseDuration(s)
	if err != nil {
		errs.add(field, "invalid duration %q", s)
		return
	}
	if d <= 0 {
		errs.add(field, "must be positive, got %s", d)
	}
}
