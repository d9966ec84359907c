package threat

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/clock"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/logging"
)

var start = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDetector(t *testing.T) (*Detector, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(start)
	logger := logging.New(logging.Config{Output: io.Discard})
	return NewDetector(DefaultConfig(), clk, logger), clk
}

func denied(at time.Time, src string, port int) accesslog.Entry {
	return accesslog.Entry{Timestamp: at, SourceAddress: src, DestPort: port, Protocol: firewall.ProtoTCP, Action: firewall.ActionDeny}
}

func TestDetector_AllowNeverCounts(t *testing.T) {
	d, _ := newTestDetector(t)
	for i := 0; i < 20; i++ {
		e := denied(start, "10.0.0.9", 22)
		e.Action = firewall.ActionAllow
		assert.Nil(t, d.Observe(e))
	}
	assert.Empty(t, d.List())
	assert.Zero(t, d.Tracked())
}

func TestDetector_BruteForce(t *testing.T) {
	d, _ := newTestDetector(t)

	for i := 0; i < 4; i++ {
		assert.Empty(t, d.Observe(denied(start.Add(time.Duration(i)*time.Second), "10.0.0.5", 22)))
	}

	raised := d.Observe(denied(start.Add(4*time.Second), "10.0.0.5", 22))
	require.Len(t, raised, 1)
	assert.Equal(t, BruteForce, raised[0].Type)
	assert.Equal(t, "10.0.0.5", raised[0].SourceAddress)
	assert.Equal(t, 1, raised[0].Count)
	assert.True(t, raised[0].IsNew())
	assert.Contains(t, raised[0].Details, "port 22")

	updated := d.Observe(denied(start.Add(5*time.Second), "10.0.0.5", 22))
	require.Len(t, updated, 1)
	assert.Equal(t, 2, updated[0].Count)
	assert.False(t, updated[0].IsNew())
	assert.Equal(t, start.Add(4*time.Second), updated[0].FirstSeen)
	assert.Equal(t, start.Add(5*time.Second), updated[0].LastSeen)

	threats := d.List()
	require.Len(t, threats, 1)
	assert.Equal(t, 2, threats[0].Count)
}

func TestDetector_PortScan(t *testing.T) {
	d, _ := newTestDetector(t)

	var last []Threat
	for port := 1; port <= 6; port++ {
		last = d.Observe(denied(start, "203.0.113.4", port))
	}
	require.Len(t, last, 1)
	assert.Equal(t, PortScan, last[0].Type)
	assert.Equal(t, 2, last[0].Count, "raised at the fifth port, updated at the sixth")
	assert.Contains(t, last[0].Details, "6 distinct ports")

	for _, th := range d.List() {
		assert.NotEqual(t, BruteForce, th.Type)
	}
}

func TestDetector_BothTypesCoexist(t *testing.T) {
	d, _ := newTestDetector(t)
	src := "198.51.100.7"

	for i := 0; i < 5; i++ {
		d.Observe(denied(start, src, 22))
	}
	for port := 100; port < 104; port++ {
		d.Observe(denied(start, src, port))
	}

	threats := d.List()
	require.Len(t, threats, 2)
	assert.Equal(t, BruteForce, threats[0].Type)
	assert.Equal(t, PortScan, threats[1].Type)
}

func TestDetector_WindowExpires(t *testing.T) {
	d, _ := newTestDetector(t)
	src := "10.0.0.5"

	for i := 0; i < 4; i++ {
		d.Observe(denied(start, src, 22))
	}
	// Past the window, the earlier hits no longer count.
	assert.Empty(t, d.Observe(denied(start.Add(61*time.Second), src, 22)))
	assert.Empty(t, d.List())
}

func TestDetector_SourcesAreIndependent(t *testing.T) {
	d, _ := newTestDetector(t)
	for i := 0; i < 10; i++ {
		d.Observe(denied(start, "10.0.0."+string(rune('1'+i%5)), 22))
	}
	assert.Empty(t, d.List())
	assert.Equal(t, 5, d.Tracked())
}

func TestDetector_CustomThresholds(t *testing.T) {
	d := NewDetector(Config{Window: time.Minute, PortScanThreshold: 3, BruteForceThreshold: 2}, clock.NewMockClock(start), logging.New(logging.Config{Output: io.Discard}))

	d.Observe(denied(start, "10.1.1.1", 80))
	raised := d.Observe(denied(start, "10.1.1.1", 80))
	require.Len(t, raised, 1)
	assert.Equal(t, BruteForce, raised[0].Type)
}

func TestDetector_ZeroConfigFallsBack(t *testing.T) {
	d := NewDetector(Config{}, nil, nil)
	assert.Equal(t, DefaultConfig(), d.Config())
}

func TestDetector_ZeroTimestampUsesClock(t *testing.T) {
	d, clk := newTestDetector(t)
	clk.Advance(time.Hour)
	for i := 0; i < 5; i++ {
		d.Observe(denied(time.Time{}, "10.0.0.5", 22))
	}
	threats := d.List()
	require.Len(t, threats, 1)
	assert.Equal(t, start.Add(time.Hour), threats[0].FirstSeen)
}

func TestDetector_SweepKeepsThreats(t *testing.T) {
	d, _ := newTestDetector(t)
	for i := 0; i < 5; i++ {
		d.Observe(denied(start, "10.0.0.5", 22))
	}
	d.Observe(denied(start.Add(50*time.Second), "10.0.0.6", 22))

	assert.Equal(t, 1, d.Sweep(start.Add(90*time.Second)))
	assert.Equal(t, 1, d.Tracked())
	assert.Len(t, d.List(), 1)
}

func TestDetector_RunStopsOnCancel(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDetector_ConcurrentObserve(t *testing.T) {
	d, _ := newTestDetector(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				d.Observe(denied(start, "10.9.9.9", 3389))
				d.List()
			}
		}()
	}
	wg.Wait()

	threats := d.List()
	require.Len(t, threats, 1)
	assert.Equal(t, 80-4, threats[0].Count)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Window: 0, PortScanThreshold: 5, BruteForceThreshold: 5}.Validate())
	assert.Error(t, Config{Window: time.Second, PortScanThreshold: 0, BruteForceThreshold: 5}.Validate())
	assert.Error(t, Config{Window: time.Second, PortScanThreshold: 5, BruteForceThreshold: 0}.Validate())
}
