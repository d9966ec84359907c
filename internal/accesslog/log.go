package accesslog

import (
	"sync"
	"time"

	"grimm.is/sentinel/internal/clock"
)

// Log is an append-only record of evaluated packets, oldest first.
// With a positive capacity it is a ring: once full, each append evicts the
// oldest entry. A zero capacity grows without bound.
type Log struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries []Entry
	size    int // 0 = unbounded
	head    int
	count   int
	total   uint64
	last    time.Time
}

// New creates a log that stamps entries with clk (RealClock when nil).
func New(clk clock.Clock, maxEntries int) *Log {
	if maxEntries < 0 {
		maxEntries = 0
	}
	l := &Log{clock: clock.Or(clk), size: maxEntries}
	if maxEntries > 0 {
		l.entries = make([]Entry, maxEntries)
	}
	return l
}

// Append stamps e with the current time and records it. Timestamps never go
// backwards even if the clock does. The stored entry is returned.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Before(l.last) {
		now = l.last
	}
	l.last = now
	e.Timestamp = now

	l.total++
	if l.size == 0 {
		l.entries = append(l.entries, e)
		l.count++
		return e
	}

	l.entries[l.head] = e
	l.head = (l.head + 1) % l.size
	if l.count < l.size {
		l.count++
	}
	return e
}

// List returns every retained entry in chronological order.
func (l *Log) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastLocked(l.count)
}

// Last returns the newest n entries in chronological order. n <= 0 returns
// every retained entry.
func (l *Log) Last(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > l.count {
		n = l.count
	}
	return l.lastLocked(n)
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Total returns the number of entries ever appended, including evicted ones.
func (l *Log) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Capacity returns the retention limit, 0 when unbounded.
func (l *Log) Capacity() int {
	return l.size
}

func (l *Log) lastLocked(n int) []Entry {
	result := make([]Entry, n)
	if n == 0 {
		return result
	}
	if l.size == 0 {
		copy(result, l.entries[l.count-n:])
		return result
	}
	start := (l.head - n + l.size) % l.size
	for i := 0; i < n; i++ {
		result[i] = l.entries[(start+i)%l.size]
	}
	return result
}
