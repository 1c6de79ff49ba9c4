package safety

import "sync"

// FaultLatch is the sticky limit fault. It trips when a debounced limit
// activation happens outside the homing phase that expects it, or whenever
// both switches read active at once. Once tripped it stays tripped across
// any number of STOP/ENABLE/DISABLE commands; the only way to clear it is
// a homing sequence that reaches COMPLETE.
type FaultLatch struct {
	mu      sync.Mutex
	tripped bool
	reason  State
}

// Trip latches the fault with the given reason. It returns true if the
// latch was newly tripped by this call.
func (l *FaultLatch) Trip(reason State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tripped {
		return false
	}
	l.tripped = true
	l.reason = reason
	return true
}

// Active reports whether the fault is latched. Safe to poll from any
// goroutine.
func (l *FaultLatch) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tripped
}

// Reason returns the safety state recorded when the latch tripped, or
// Normal if it is clear.
func (l *FaultLatch) Reason() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.tripped {
		return Normal
	}
	return l.reason
}

// ClearOnHomed releases the latch. The motion task calls this exactly once
// per homing COMPLETE; nothing else may.
func (l *FaultLatch) ClearOnHomed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tripped = false
	l.reason = Normal
}
