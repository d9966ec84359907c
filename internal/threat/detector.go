package threat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/clock"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/logging"
)

type hit struct {
	at   time.Time
	port int
}

// window holds one source's denials, oldest first.
type window struct {
	hits []hit
	last time.Time
}

// expire drops hits older than cutoff.
func (w *window) expire(cutoff time.Time) {
	i := 0
	for i < len(w.hits) && w.hits[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

func (w *window) counts(port int) (distinct, samePort int) {
	seen := make(map[int]struct{}, len(w.hits))
	for _, h := range w.hits {
		seen[h.port] = struct{}{}
		if h.port == port {
			samePort++
		}
	}
	return len(seen), samePort
}

type key struct {
	typ Type
	src string
}

// Detector tracks denials per source and maintains the threat set.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	clock   clock.Clock
	logger  *logging.Logger
	windows map[string]*window
	threats []*Threat
	index   map[key]*Threat
}

// NewDetector creates a detector. An invalid cfg falls back to DefaultConfig
// field by field.
func NewDetector(cfg Config, clk clock.Clock, logger *logging.Logger) *Detector {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.PortScanThreshold < 1 {
		cfg.PortScanThreshold = def.PortScanThreshold
	}
	if cfg.BruteForceThreshold < 1 {
		cfg.BruteForceThreshold = def.BruteForceThreshold
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{
		cfg:     cfg,
		clock:   clock.Or(clk),
		logger:  logger.WithComponent("threat"),
		windows: make(map[string]*window),
		index:   make(map[key]*Threat),
	}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Observe feeds one access log entry to the detector and returns copies of
// the threats it raised or updated. Only DENY entries are tracked.
// Port Scan takes precedence; Brute Force is only considered when the port
// scan threshold is not reached.
func (d *Detector) Observe(e accesslog.Entry) []Threat {
	if e.Action != firewall.ActionDeny {
		return nil
	}
	at := e.Timestamp
	if at.IsZero() {
		at = d.clock.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[e.SourceAddress]
	if !ok {
		w = &window{}
		d.windows[e.SourceAddress] = w
	}
	w.expire(at.Add(-d.cfg.Window))
	w.hits = append(w.hits, hit{at: at, port: e.DestPort})
	if at.After(w.last) {
		w.last = at
	}

	distinct, samePort := w.counts(e.DestPort)
	switch {
	case distinct >= d.cfg.PortScanThreshold:
		details := fmt.Sprintf("%d distinct ports denied from %s within %s", distinct, e.SourceAddress, d.cfg.Window)
		return []Threat{d.raiseLocked(PortScan, e.SourceAddress, details, at)}
	case samePort >= d.cfg.BruteForceThreshold:
		details := fmt.Sprintf("%d denied attempts on port %d from %s within %s", samePort, e.DestPort, e.SourceAddress, d.cfg.Window)
		return []Threat{d.raiseLocked(BruteForce, e.SourceAddress, details, at)}
	}
	return nil
}

func (d *Detector) raiseLocked(typ Type, src, details string, at time.Time) Threat {
	k := key{typ: typ, src: src}
	t, ok := d.index[k]
	if !ok {
		t = &Threat{Type: typ, SourceAddress: src, FirstSeen: at}
		d.index[k] = t
		d.threats = append(d.threats, t)
		d.logger.Warn("threat raised", "type", string(typ), "src_ip", src, "details", details)
	}
	t.Count++
	t.Details = details
	if at.After(t.LastSeen) {
		t.LastSeen = at
	}
	return *t
}

// List returns every threat in the order it was first raised.
func (d *Detector) List() []Threat {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Threat, len(d.threats))
	for i, t := range d.threats {
		out[i] = *t
	}
	return out
}

// Len returns the number of threats.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.threats)
}

// Tracked returns the number of sources with a live window.
func (d *Detector) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

// Sweep drops windows that have seen no denial within the window duration
// before now. Threats are kept. It returns the number of windows dropped.
func (d *Detector) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.cfg.Window)
	dropped := 0
	for src, w := range d.windows {
		if w.last.Before(cutoff) {
			delete(d.windows, src)
			dropped++
		}
	}
	return dropped
}

// Run sweeps idle windows every interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = d.cfg.Window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := d.Sweep(d.clock.Now()); n > 0 {
				d.logger.Debug("swept idle windows", "count", n)
			}
		}
	}
}
