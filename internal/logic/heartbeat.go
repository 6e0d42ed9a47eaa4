package logic

import (
	"fmt"
	"sync/atomic"
)

// MaxNodes is the number of node ids the heartbeat monitor tracks.
const MaxNodes = 16

// Per-node record bits, stored together in one atomic word.
const (
	nodeActive  = 1 << 0
	nodeCleared = 1 << 1
)

// MonitorConfig configures a heartbeat Monitor.
type MonitorConfig struct {
	// Required lists the node ids that must be alive for AllRequiredActive.
	Required []int

	// StartTimer is called once, on the first Reload, to start the periodic
	// aging timer that calls Age.
	StartTimer func()

	// OnLost is called from Age with the id of each node that missed a full
	// aging period. It runs in the aging timer's context.
	OnLost func(node int)
}

// Monitor tracks liveness of remote nodes. Reload and Age may be called from
// different goroutines; each node record is updated with compare-and-swap.
type Monitor struct {
	records  [MaxNodes]atomic.Uint32
	required uint32
	started  atomic.Bool
	losses   atomic.Uint64

	startTimer func()
	onLost     func(node int)
}

// NewMonitor creates a Monitor. Required node ids outside [0, MaxNodes) are rejected.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	m := &Monitor{startTimer: cfg.StartTimer, onLost: cfg.OnLost}
	for _, id := range cfg.Required {
		if id < 0 || id >= MaxNodes {
			return nil, fmt.Errorf("required node %d out of range [0, %d)", id, MaxNodes)
		}
		m.required |= 1 << id
	}
	return m, nil
}

// Reload marks node as active and grants it one grace period. The aging timer
// is started on the first call.
func (m *Monitor) Reload(node int) error {
	if node < 0 || node >= MaxNodes {
		return fmt.Errorf("heartbeat from node %d out of range [0, %d)", node, MaxNodes)
	}
	m.records[node].Store(nodeActive | nodeCleared)
	if m.started.CompareAndSwap(false, true) && m.startTimer != nil {
		m.startTimer()
	}
	return nil
}

// Age runs one aging period. A node that was reloaded since the previous
// period survives; an active node that was not is marked inactive and reported
// through OnLost.
func (m *Monitor) Age() {
	for id := range m.records {
		rec := &m.records[id]
		for {
			v := rec.Load()
			if v&nodeActive == 0 {
				break
			}
			next := uint32(0)
			if v&nodeCleared != 0 {
				next = nodeActive
			}
			if !rec.CompareAndSwap(v, next) {
				continue
			}
			if next == 0 {
				m.losses.Add(1)
				if m.onLost != nil {
					m.onLost(id)
				}
			}
			break
		}
	}
}

// Status returns a bitmask with bit n set when node n is active.
func (m *Monitor) Status() uint32 {
	var mask uint32
	for id := range m.records {
		if m.records[id].Load()&nodeActive != 0 {
			mask |= 1 << id
		}
	}
	return mask
}

// Active reports whether node is active.
func (m *Monitor) Active(node int) bool {
	if node < 0 || node >= MaxNodes {
		return false
	}
	return m.records[node].Load()&nodeActive != 0
}

// Required returns the bitmask of required nodes.
func (m *Monitor) Required() uint32 {
	return m.required
}

// IsRequired reports whether node is in the required set.
func (m *Monitor) IsRequired(node int) bool {
	return node >= 0 && node < MaxNodes && m.required&(1<<node) != 0
}

// AllRequiredActive reports whether every required node is active.
func (m *Monitor) AllRequiredActive() bool {
	return m.Status()&m.required == m.required
}

// Losses returns the number of loss notifications emitted so far.
func (m *Monitor) Losses() uint64 {
	return m.losses.Load()
}
