package priority

import "sync"

// CongestionManager monitors queue fill and recent throughput and signals
// backpressure to submitters. Its verdict is advisory: callers reject or
// delay new submissions before attempting Admit, so a congested queue sheds
// load at the boundary instead of churning admissions into QueueFull.
type CongestionManager struct {
	thresholdPct uint8

	mu            sync.Mutex
	recentTicks   []tickSample
	maxTickWindow int
}

type tickSample struct {
	dispatched int
	slot       uint64
}

// NewCongestionManager creates a manager that reports congestion once
// load/capacity reaches thresholdPct percent.
func NewCongestionManager(thresholdPct uint8) *CongestionManager {
	if thresholdPct == 0 || thresholdPct > 100 {
		thresholdPct = 80
	}
	return &CongestionManager{
		thresholdPct:  thresholdPct,
		maxTickWindow: 16,
	}
}

// IsCongested reports whether the fill ratio has crossed the threshold.
func (m *CongestionManager) IsCongested(currentLoad, capacity int) bool {
	if capacity <= 0 {
		return true
	}
	return currentLoad*100 >= capacity*int(m.thresholdPct)
}

// FillBps returns load/capacity in basis points, clamped to 10_000.
func (m *CongestionManager) FillBps(currentLoad, capacity int) uint32 {
	if capacity <= 0 {
		return 10_000
	}
	bps := uint64(currentLoad) * 10_000 / uint64(capacity)
	if bps > 10_000 {
		bps = 10_000
	}
	return uint32(bps)
}

// ObserveTick records the dispatch count of a completed tick for the
// throughput metric.
func (m *CongestionManager) ObserveTick(slot uint64, dispatched int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentTicks = append(m.recentTicks, tickSample{dispatched: dispatched, slot: slot})
	if len(m.recentTicks) > m.maxTickWindow {
		m.recentTicks = m.recentTicks[len(m.recentTicks)-m.maxTickWindow:]
	}
}

// RecentThroughput returns the average dispatches per tick over the
// observation window.
func (m *CongestionManager) RecentThroughput() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recentTicks) == 0 {
		return 0
	}
	var total int
	for _, s := range m.recentTicks {
		total += s.dispatched
	}
	return float64(total) / float64(len(m.recentTicks))
}
