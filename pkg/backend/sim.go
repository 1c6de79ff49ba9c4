package backend

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Sim is a software pulse backend: a trapezoidal-profile kinematics
// integrator with a virtual travel axis, limit switches and an alarm
// input. It stands in for hardware in tests and host runs, advancing
// either on its own timer (Start) or under test control (Advance).
type Sim struct {
	mu sync.Mutex

	pos    float64 // steps, logical frame
	vel    float64 // steps/sec, signed
	target float64

	speed float64 // cruise limit, steps/sec
	accel float64 // steps/sec^2

	moving   bool // executing a MoveTo/Move
	stopping bool // decelerating to zero after StopMove
	enabled  bool
	ramp     RampState

	// Virtual switch positions in the logical frame. They shift together
	// with SetCurrentPosition so they stay fixed in physical space.
	leftLimitAt  float64
	rightLimitAt float64
	lastLeft     bool
	lastRight    bool
	onLeftEdge   func()
	onRightEdge  func()

	alarm atomic.Bool
}

// SimConfig describes the virtual axis.
type SimConfig struct {
	// Limit switch positions in initial coordinates (steps).
	LeftLimit  int64
	RightLimit int64

	// Initial kinematic limits.
	Speed        float64
	Acceleration float64
}

// NewSim creates a simulated axis sitting at position 0.
func NewSim(cfg SimConfig) *Sim {
	s := &Sim{
		speed:        cfg.Speed,
		accel:        cfg.Acceleration,
		leftLimitAt:  float64(cfg.LeftLimit),
		rightLimitAt: float64(cfg.RightLimit),
		enabled:      true,
	}
	if s.speed <= 0 {
		s.speed = 1000
	}
	if s.accel <= 0 {
		s.accel = 1000
	}
	s.lastLeft = s.pos <= s.leftLimitAt
	s.lastRight = s.pos >= s.rightLimitAt
	return s
}

// OnLeftEdge registers the edge callback for the left switch. The callback
// must follow the flag-only contract: it runs inside the integrator step.
func (s *Sim) OnLeftEdge(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLeftEdge = fn
}

// OnRightEdge registers the edge callback for the right switch.
func (s *Sim) OnRightEdge(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRightEdge = fn
}

// LeftLevel reads the raw left switch level.
func (s *Sim) LeftLevel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos <= s.leftLimitAt
}

// RightLevel reads the raw right switch level.
func (s *Sim) RightLevel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= s.rightLimitAt
}

// SetAlarm asserts or releases the simulated driver alarm line.
func (s *Sim) SetAlarm(active bool) {
	s.alarm.Store(active)
}

// AlarmLevel reads the raw alarm line.
func (s *Sim) AlarmLevel() bool {
	return s.alarm.Load()
}

// MoveTo implements Driver. Starting a move energizes the outputs, the
// way auto-enable drivers behave.
func (s *Sim) MoveTo(target int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.target = float64(target)
	s.moving = true
	s.stopping = false
}

// Move implements Driver.
func (s *Sim) Move(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.target = s.pos + float64(delta)
	s.moving = true
	s.stopping = false
}

// StopMove implements Driver: decelerate to a stop.
func (s *Sim) StopMove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.moving && !s.stopping {
		return
	}
	s.moving = false
	s.stopping = true
}

// ForceStop implements Driver: halt immediately.
func (s *Sim) ForceStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vel = 0
	s.moving = false
	s.stopping = false
	s.ramp = RampIdle
	s.target = s.pos
}

// SetSpeed implements Driver.
func (s *Sim) SetSpeed(stepsPerSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stepsPerSec > 0 {
		s.speed = stepsPerSec
	}
}

// SetAcceleration implements Driver.
func (s *Sim) SetAcceleration(stepsPerSec2 float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stepsPerSec2 > 0 {
		s.accel = stepsPerSec2
	}
}

// IsRunning implements Driver.
func (s *Sim) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moving || s.stopping
}

// CurrentPosition implements Driver.
func (s *Sim) CurrentPosition() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(math.Round(s.pos))
}

// TargetPosition implements Driver.
func (s *Sim) TargetPosition() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(math.Round(s.target))
}

// SetCurrentPosition implements Driver. The virtual switch positions move
// with the frame so they remain fixed in physical space.
func (s *Sim) SetCurrentPosition(pos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := float64(pos) - s.pos
	s.pos += offset
	s.target += offset
	s.leftLimitAt += offset
	s.rightLimitAt += offset
}

// CurrentSpeed implements Driver.
func (s *Sim) CurrentSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vel
}

// RampState implements Driver.
func (s *Sim) RampState() RampState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ramp
}

// EnableOutputs implements Driver.
func (s *Sim) EnableOutputs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
}

// DisableOutputs implements Driver.
func (s *Sim) DisableOutputs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.vel = 0
	s.moving = false
	s.stopping = false
	s.ramp = RampIdle
}

// Enabled implements Driver.
func (s *Sim) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Advance integrates the axis forward by dt. Tests drive this directly;
// Start runs it on a timer.
func (s *Sim) Advance(dt time.Duration) {
	s.mu.Lock()

	sec := dt.Seconds()
	if sec > 0 && s.enabled && (s.moving || s.stopping) {
		s.step(sec)
	}

	left := s.pos <= s.leftLimitAt
	right := s.pos >= s.rightLimitAt
	leftEdge := left != s.lastLeft
	rightEdge := right != s.lastRight
	s.lastLeft = left
	s.lastRight = right
	onLeft, onRight := s.onLeftEdge, s.onRightEdge
	s.mu.Unlock()

	// Edge callbacks only set flags; keep them outside the lock anyway.
	if leftEdge && onLeft != nil {
		onLeft()
	}
	if rightEdge && onRight != nil {
		onRight()
	}
}

// step performs one integration step. Caller holds the lock.
func (s *Sim) step(sec float64) {
	var desired float64
	if s.stopping {
		desired = 0
	} else {
		dist := s.target - s.pos
		if math.Abs(dist) < 0.5 && math.Abs(s.vel) <= s.accel*sec {
			s.pos = s.target
			s.vel = 0
			s.moving = false
			s.ramp = RampIdle
			return
		}
		dir := 1.0
		if dist < 0 {
			dir = -1
		}
		// Limit to the speed from which we can still stop at the target.
		desired = dir * math.Min(s.speed, math.Sqrt(2*s.accel*math.Abs(dist)))
	}

	dv := desired - s.vel
	maxDv := s.accel * sec
	switch {
	case dv > maxDv:
		dv = maxDv
	case dv < -maxDv:
		dv = -maxDv
	}
	prev := math.Abs(s.vel)
	s.vel += dv
	s.pos += s.vel * sec

	switch {
	case math.Abs(s.vel) > prev+1e-9:
		s.ramp = RampAccelerating
	case math.Abs(s.vel) < prev-1e-9:
		s.ramp = RampDecelerating
	default:
		s.ramp = RampCruising
	}

	if s.stopping && math.Abs(s.vel) < 1e-6 {
		s.vel = 0
		s.stopping = false
		s.ramp = RampIdle
		s.target = s.pos
	}
}

// Start runs the integrator on its own timer until ctx is done. This is
// the "backend generates pulses independently" mode used by the daemon.
func (s *Sim) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 200 * time.Microsecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Advance(now.Sub(last))
				last = now
			}
		}
	}()
}
