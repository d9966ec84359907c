// Package threat classifies repeated denials into threat records.
//
// A Detector keeps a sliding window of denied traffic per source address.
// Fan-out across many destination ports is reported as a Port Scan; repeated
// hits on one port are reported as Brute Force. Threats are keyed by
// (type, source) and are never removed once raised.
package threat

import (
	"fmt"
	"time"
)

// Type classifies a threat.
type Type string

const (
	PortScan   Type = "Port Scan"
	BruteForce Type = "Brute Force"
)

// Threat is a classified pattern of denied traffic from one source.
type Threat struct {
	Type          Type      `json:"type" yaml:"type"`
	SourceAddress string    `json:"src_ip" yaml:"src_ip"`
	Count         int       `json:"count" yaml:"count"`
	Details       string    `json:"details" yaml:"details"`
	FirstSeen     time.Time `json:"first_seen" yaml:"first_seen"`
	LastSeen      time.Time `json:"last_seen" yaml:"last_seen"`
}

// IsNew reports whether the threat was raised by the observation that
// returned it.
func (t Threat) IsNew() bool {
	return t.Count == 1
}

func (t Threat) String() string {
	return fmt.Sprintf("%s from %s (count=%d)", t.Type, t.SourceAddress, t.Count)
}

// Config tunes detection sensitivity. A source reaches a threshold when its
// windowed count is at least the threshold value.
type Config struct {
	Window              time.Duration
	PortScanThreshold   int
	BruteForceThreshold int
}

// DefaultConfig returns a 60 second window with thresholds of 5.
func DefaultConfig() Config {
	return Config{
		Window:              60 * time.Second,
		PortScanThreshold:   5,
		BruteForceThreshold: 5,
	}
}

// Validate rejects non-positive settings.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("threat window must be positive, got %s", c.Window)
	}
	if c.PortScanThreshold < 1 {
		return fmt.Errorf("port scan threshold must be at least 1, got %d", c.PortScanThreshold)
	}
	if c.BruteForceThreshold < 1 {
		return fmt.Errorf("brute force threshold must be at least 1, got %d", c.BruteForceThreshold)
	}
	return nil
}
