package safety

import (
	"skullstepper-go/pkg/log"
)

// LevelFunc reads the raw, unfiltered level of an input pin. true means
// the switch (or alarm) is asserted.
type LevelFunc func() bool

// LimitSwitch pairs the flag-only edge input with its debouncer. Sampling
// runs only while an edge has been seen or a transition is in flight, so a
// quiescent switch costs one atomic load per tick.
type LimitSwitch struct {
	side     Side
	input    *SwitchInput
	level    LevelFunc
	deb      *Debouncer
	sampling bool
}

// NewLimitSwitch creates a switch poller for one side of travel.
func NewLimitSwitch(side Side, level LevelFunc) *LimitSwitch {
	return &LimitSwitch{
		side:  side,
		input: &SwitchInput{},
		level: level,
		deb:   NewDebouncer(DebounceSamples),
	}
}

// Input returns the edge handler endpoint to hand to the hardware layer.
func (s *LimitSwitch) Input() *SwitchInput {
	return s.input
}

// Active returns the debounced state.
func (s *LimitSwitch) Active() bool {
	return s.deb.Confirmed()
}

// poll advances the debouncer by one tick. Returns the debounced state and
// whether it changed on this tick.
func (s *LimitSwitch) poll() (active, changed bool) {
	if s.input.consume() {
		s.sampling = true
	}
	if !s.sampling {
		return s.deb.Confirmed(), false
	}
	raw := s.level()
	changed = s.deb.Sample(raw)
	if s.deb.Settled() && raw == s.deb.Confirmed() {
		s.sampling = false
	}
	return s.deb.Confirmed(), changed
}

// prime forces the debounced state to the current raw level. Used once at
// startup before the task loop runs.
func (s *LimitSwitch) prime() {
	s.deb.confirmed = s.level()
	s.deb.samples = 0
	s.sampling = false
}

// PollResult is what one safety tick step reports back to the motion task.
type PollResult struct {
	LeftActive   bool
	RightActive  bool
	LeftChanged  bool
	RightChanged bool

	// Tripped is true when the fault latch was newly set by this poll.
	// The motion task must respond with a decelerated stop.
	Tripped bool

	// Fault mirrors the latch after the poll.
	Fault bool

	// Limit-related safety condition for status publication.
	State State
}

// Monitor owns both limit switches and the fault latch.
type Monitor struct {
	left  *LimitSwitch
	right *LimitSwitch
	latch *FaultLatch
	log   *log.Logger
}

// NewMonitor wires the two switch pollers and a fresh latch.
func NewMonitor(left, right *LimitSwitch, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.GetLogger("safety")
	}
	return &Monitor{left: left, right: right, latch: &FaultLatch{}, log: logger}
}

// Left returns the left switch poller.
func (m *Monitor) Left() *LimitSwitch { return m.left }

// Right returns the right switch poller.
func (m *Monitor) Right() *LimitSwitch { return m.right }

// Latch returns the fault latch.
func (m *Monitor) Latch() *FaultLatch { return m.latch }

// Prime initializes both debouncers from the current raw levels. Called
// once before the first tick.
func (m *Monitor) Prime() {
	m.left.prime()
	m.right.prime()
}

// Poll is tick step 1: advance both debouncers and update the latch.
// expectLeft/expectRight report whether the homing machine is currently
// seeking that switch, in which case its activation is the goal rather
// than a fault. Both switches active at once is always a fault.
func (m *Monitor) Poll(expectLeft, expectRight bool) PollResult {
	var r PollResult
	r.LeftActive, r.LeftChanged = m.left.poll()
	r.RightActive, r.RightChanged = m.right.poll()

	switch {
	case r.LeftActive && r.RightActive:
		r.State = BothLimitsActive
	case r.LeftActive:
		r.State = LeftLimitActive
	case r.RightActive:
		r.State = RightLimitActive
	default:
		r.State = Normal
	}

	if r.LeftActive && r.RightActive {
		if m.latch.Trip(BothLimitsActive) {
			r.Tripped = true
			m.log.Error("both limit switches active, latching fault")
		}
	}
	if r.LeftChanged && r.LeftActive && !expectLeft {
		if m.latch.Trip(LeftLimitActive) {
			r.Tripped = true
			m.log.Warn("unexpected left limit activation, latching fault")
		}
	}
	if r.RightChanged && r.RightActive && !expectRight {
		if m.latch.Trip(RightLimitActive) {
			r.Tripped = true
			m.log.Warn("unexpected right limit activation, latching fault")
		}
	}

	r.Fault = m.latch.Active()
	return r
}
