package config

import (
	"strings"
	"time"

	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/threat"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Defaults applied by Normalize.
const (
	DefaultListen          = ":8000"
	DefaultLogsLimit       = 50
	DefaultRateLimit       = 120 // mutations per client per minute
	DefaultMaxConnections  = 256
	DefaultReadTimeout     = "10s"
	DefaultWriteTimeout    = "30s"
	DefaultLogLevel        = "info"
	DefaultLogRetention    = 10000
	DefaultAuditRetention  = 1000
	DefaultSweepInterval   = "30s"
	DefaultMetricsInterval = "15s"
)

// Config is the top-level structure for the sentinel configuration.
type Config struct {
	// If empty, defaults to CurrentSchemaVersion
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// DefaultAction applies when no rule matches: "DENY" (default) or "ALLOW".
	DefaultAction string `hcl:"default_action,optional" json:"default_action,omitempty"`

	API             *APIConfig       `hcl:"api,block" json:"api,omitempty"`
	Logging         *LoggingConfig   `hcl:"logging,block" json:"logging,omitempty"`
	AccessLog       *AccessLogConfig `hcl:"access_log,block" json:"access_log,omitempty"`
	ThreatDetection *ThreatConfig    `hcl:"threat_detection,block" json:"threat_detection,omitempty"`
	Audit           *AuditConfig     `hcl:"audit,block" json:"audit,omitempty"`
	Metrics         *MetricsConfig   `hcl:"metrics,block" json:"metrics,omitempty"`

	// Seed rules, added in file order at startup.
	Rules []RuleConfig `hcl:"rule,block" json:"rules,omitempty"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Listen         string   `hcl:"listen,optional" json:"listen,omitempty"`
	CORSOrigins    []string `hcl:"cors_origins,optional" json:"cors_origins,omitempty"`
	LogsLimit      *int     `hcl:"logs_limit,optional" json:"logs_limit,omitempty"`           // default /logs tail; 0 = all
	RateLimit      *int     `hcl:"rate_limit,optional" json:"rate_limit,omitempty"`           // per client per minute; 0 disables
	MaxConnections *int     `hcl:"max_connections,optional" json:"max_connections,omitempty"` // 0 = unlimited
	ReadTimeout    string   `hcl:"read_timeout,optional" json:"read_timeout,omitempty"`
	WriteTimeout   string   `hcl:"write_timeout,optional" json:"write_timeout,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// AccessLogConfig bounds the in-memory access log.
type AccessLogConfig struct {
	MaxEntries *int `hcl:"max_entries,optional" json:"max_entries,omitempty"` // 0 = unbounded
}

// ThreatConfig tunes the threat detector.
type ThreatConfig struct {
	Window              string `hcl:"window,optional" json:"window,omitempty"`
	PortScanThreshold   int    `hcl:"port_scan_threshold,optional" json:"port_scan_threshold,omitempty"`
	BruteForceThreshold int    `hcl:"brute_force_threshold,optional" json:"brute_force_threshold,omitempty"`
	SweepInterval       string `hcl:"sweep_interval,optional" json:"sweep_interval,omitempty"`
}

// AuditConfig bounds the management audit trail.
type AuditConfig struct {
	MaxEntries *int `hcl:"max_entries,optional" json:"max_entries,omitempty"` // 0 = unbounded
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	Enabled  *bool  `hcl:"enabled,optional" json:"enabled,omitempty"`
	Interval string `hcl:"interval,optional" json:"interval,omitempty"`
}

// RuleConfig is a seed rule.
type RuleConfig struct {
	Action   string `hcl:"action" json:"action"`
	SrcIP    string `hcl:"src_ip" json:"src_ip"`
	DstPort  int    `hcl:"dst_port" json:"dst_port"`
	Protocol string `hcl:"protocol" json:"protocol"`
}

// Draft converts the seed rule to a rule draft.
func (r RuleConfig) Draft() firewall.RuleDraft {
	return firewall.RuleDraft{Action: r.Action, SrcIP: r.SrcIP, DstPort: r.DstPort, Protocol: r.Protocol}
}

// Default returns a fully populated configuration with no seed rules.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// Normalize fills every unset field with its default. It is idempotent.
func (c *Config) Normalize() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	c.DefaultAction = strings.ToUpper(strings.TrimSpace(c.DefaultAction))
	if c.DefaultAction == "" {
		c.DefaultAction = string(firewall.ActionDeny)
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.API.CORSOrigins == nil {
		c.API.CORSOrigins = []string{"*"}
	}
	if c.API.LogsLimit == nil {
		c.API.LogsLimit = intPtr(DefaultLogsLimit)
	}
	if c.API.RateLimit == nil {
		c.API.RateLimit = intPtr(DefaultRateLimit)
	}
	if c.API.MaxConnections == nil {
		c.API.MaxConnections = intPtr(DefaultMaxConnections)
	}
	if c.API.ReadTimeout == "" {
		c.API.ReadTimeout = DefaultReadTimeout
	}
	if c.API.WriteTimeout == "" {
		c.API.WriteTimeout = DefaultWriteTimeout
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}

	if c.AccessLog == nil {
		c.AccessLog = &AccessLogConfig{}
	}
	if c.AccessLog.MaxEntries == nil {
		c.AccessLog.MaxEntries = intPtr(DefaultLogRetention)
	}

	def := threat.DefaultConfig()
	if c.ThreatDetection == nil {
		c.ThreatDetection = &ThreatConfig{}
	}
	if c.ThreatDetection.Window == "" {
		c.ThreatDetection.Window = def.Window.String()
	}
	if c.ThreatDetection.PortScanThreshold == 0 {
		c.ThreatDetection.PortScanThreshold = def.PortScanThreshold
	}
	if c.ThreatDetection.BruteForceThreshold == 0 {
		c.ThreatDetection.BruteForceThreshold = def.BruteForceThreshold
	}
	if c.ThreatDetection.SweepInterval == "" {
		c.ThreatDetection.SweepInterval = DefaultSweepInterval
	}

	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.MaxEntries == nil {
		c.Audit.MaxEntries = intPtr(DefaultAuditRetention)
	}

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	if c.Metrics.Enabled == nil {
		c.Metrics.Enabled = boolPtr(true)
	}
	if c.Metrics.Interval == "" {
		c.Metrics.Interval = DefaultMetricsInterval
	}
}

// Threat returns the detector configuration. Call after Validate.
func (c *Config) Threat() threat.Config {
	return threat.Config{
		Window:              mustDuration(c.ThreatDetection.Window),
		PortScanThreshold:   c.ThreatDetection.PortScanThreshold,
		BruteForceThreshold: c.ThreatDetection.BruteForceThreshold,
	}
}

// SweepInterval returns how often idle threat windows are swept.
func (c *Config) SweepInterval() time.Duration {
	return mustDuration(c.ThreatDetection.SweepInterval)
}

// ReadTimeout returns the HTTP read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return mustDuration(c.API.ReadTimeout)
}

// WriteTimeout returns the HTTP write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return mustDuration(c.API.WriteTimeout)
}

// MetricsInterval returns how often state gauges are refreshed.
func (c *Config) MetricsInterval() time.Duration {
	return mustDuration(c.Metrics.Interval)
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics == nil || c.Metrics.Enabled == nil || *c.Metrics.Enabled
}

// mustDuration parses a duration already checked by Validate. Invalid input
// yields 0 so callers fall back to their own defaults.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
