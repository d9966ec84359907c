package metrics

import (
	"context"
	"sync"
	"time"

	"grimm.is/sentinel/internal/logging"
)

// Snapshot is a point-in-time view of engine state sizes.
type Snapshot struct {
	Rules           int    `json:"rules"`
	LogEntries      int    `json:"log_entries"`
	LogAppended     uint64 `json:"log_appended"`
	Threats         int    `json:"threats"`
	TrackedSources  int    `json:"tracked_sources"`
	EventsPublished uint64 `json:"events_published"`
	EventsDropped   uint64 `json:"events_dropped"`
}

// Source supplies snapshots to the collector.
type Source interface {
	Snapshot() Snapshot
}

// Collector periodically copies a Source's snapshot into the registry gauges.
type Collector struct {
	registry *Registry
	source   Source
	logger   *logging.Logger
	interval time.Duration

	mu         sync.RWMutex
	last       Snapshot
	lastUpdate time.Time
}

// NewCollector creates a collector. A non-positive interval defaults to 15s.
func NewCollector(registry *Registry, source Source, logger *logging.Logger, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Collector{
		registry: registry,
		source:   source,
		logger:   logger.WithComponent("metrics"),
		interval: interval,
	}
}

// Run collects immediately, then every interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-ctx.Done():
			c.logger.Info("Stopping metrics collector")
			return nil
		}
	}
}

// Collect takes one snapshot and updates the gauges.
func (c *Collector) Collect() Snapshot {
	s := c.source.Snapshot()

	r := c.registry
	r.RulesActive.Set(float64(s.Rules))
	r.LogEntries.Set(float64(s.LogEntries))
	r.LogAppended.Set(float64(s.LogAppended))
	r.ThreatsActive.Set(float64(s.Threats))
	r.TrackedSources.Set(float64(s.TrackedSources))
	r.EventsPublished.Set(float64(s.EventsPublished))
	r.EventsDropped.Set(float64(s.EventsDropped))

	c.mu.Lock()
	c.last = s
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	return s
}

// Last returns the most recent snapshot and when it was taken.
func (c *Collector) Last() (Snapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.lastUpdate
}
