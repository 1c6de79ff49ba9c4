// Package homing implements the auto-range homing state machine. It
// discovers the physical travel endpoints with the debounced limit
// switches, re-references the coordinate system so "left limit + backoff"
// is position 0, derives safe operating bounds, and parks the axis at a
// configured point in the detected range.
//
// The machine is advanced by the motion task, one call per tick, and each
// call performs at most one phase transition. It never blocks and never
// sleeps; time is passed in by the caller.
package homing

import (
	"time"

	"skullstepper-go/pkg/backend"
	"skullstepper-go/pkg/log"
)

// Phase is the homing sequence position. Order is strict; the only exits
// are Complete and Failed.
type Phase int

const (
	Idle Phase = iota
	SeekLeft
	BackoffLeft
	SeekRight
	BackoffRight
	SetBounds
	ReturnToReady
	Complete
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case SeekLeft:
		return "seek_left"
	case BackoffLeft:
		return "backoff_left"
	case SeekRight:
		return "seek_right"
	case BackoffRight:
		return "backoff_right"
	case SetBounds:
		return "set_bounds"
	case ReturnToReady:
		return "return_to_ready"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool {
	return p == Complete || p == Failed
}

// Config holds the homing parameters, frozen at session start.
type Config struct {
	Speed        float64 // steps/sec, used for every phase including the final park move
	Acceleration float64 // steps/sec^2

	BackoffSteps int64 // distance to retreat from a triggered switch
	SafetyMargin int64 // kept clear of both detected endpoints
	MinimumRange int64 // smallest acceptable max-min after margins

	// HomePositionPercent selects the park position inside [min,max].
	HomePositionPercent float64

	// Timeout bounds the whole session.
	Timeout time.Duration

	// SeekDistance is how far a seek move is allowed to travel before the
	// axis is considered to have run out of track.
	SeekDistance int64
}

// Defaults matching the firmware.
const (
	DefaultBackoffSteps       = 50
	DefaultSafetyMargin       = 10
	DefaultMinimumRange       = 100
	DefaultHomePercent        = 50.0
	DefaultTimeout            = 90 * time.Second
	DefaultSeekDistance       = 200000
	DefaultHomingSpeed        = 940.0
	DefaultHomingAcceleration = 5000.0
)

func (c *Config) fillDefaults() {
	if c.Speed <= 0 {
		c.Speed = DefaultHomingSpeed
	}
	if c.Acceleration <= 0 {
		c.Acceleration = DefaultHomingAcceleration
	}
	if c.BackoffSteps <= 0 {
		c.BackoffSteps = DefaultBackoffSteps
	}
	if c.SafetyMargin < 0 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	if c.MinimumRange <= 0 {
		c.MinimumRange = DefaultMinimumRange
	}
	if c.HomePositionPercent <= 0 || c.HomePositionPercent > 100 {
		c.HomePositionPercent = DefaultHomePercent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SeekDistance <= 0 {
		c.SeekDistance = DefaultSeekDistance
	}
}

// Session is one homing attempt. A new HOME command resets it.
type Session struct {
	cfg Config
	drv backend.Driver
	log *log.Logger

	phase       Phase
	started     time.Time
	detectedMax int64
	minPos      int64
	maxPos      int64
	progress    int

	moveIssued bool // backoff/park move already commanded in this phase
	failReason string
}

// NewSession creates an idle session bound to a driver.
func NewSession(cfg Config, drv backend.Driver, logger *log.Logger) *Session {
	cfg.fillDefaults()
	if logger == nil {
		logger = log.GetLogger("homing")
	}
	return &Session{cfg: cfg, drv: drv, log: logger, phase: Idle}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Active reports whether the session is in a non-terminal, non-idle phase.
// While active, all externally submitted moves are rejected by the task.
func (s *Session) Active() bool {
	return s.phase != Idle && !s.phase.Terminal()
}

// Homed reports whether the last attempt reached Complete.
func (s *Session) Homed() bool {
	return s.phase == Complete
}

// Progress returns a coarse percentage for status display.
func (s *Session) Progress() int {
	return s.progress
}

// Bounds returns the detected operating range. ok is false before a
// session has completed.
func (s *Session) Bounds() (minPos, maxPos int64, ok bool) {
	if s.phase != Complete {
		return 0, 0, false
	}
	return s.minPos, s.maxPos, true
}

// FailReason returns a short description of why the last attempt failed.
func (s *Session) FailReason() string {
	return s.failReason
}

// Expecting reports which switch the current phase is seeking, so its
// activation is the goal rather than a fault.
func (s *Session) Expecting() (left, right bool) {
	return s.phase == SeekLeft, s.phase == SeekRight
}

// Start begins a new attempt. It is ignored (returns false) while a
// session is already active; the caller additionally rejects HOME under
// emergency stop.
func (s *Session) Start(now time.Time) bool {
	if s.Active() {
		return false
	}
	s.phase = SeekLeft
	s.started = now
	s.detectedMax = 0
	s.minPos = 0
	s.maxPos = 0
	s.progress = 0
	s.moveIssued = false
	s.failReason = ""

	s.drv.SetSpeed(s.cfg.Speed)
	s.drv.SetAcceleration(s.cfg.Acceleration)
	s.drv.MoveTo(s.drv.CurrentPosition() - s.cfg.SeekDistance)
	s.log.Info("homing started: seeking left limit at %.0f steps/sec", s.cfg.Speed)
	return true
}

// Abort forces the session to Failed with a hard stop. Used for emergency
// stop, operator STOP, and latched faults during homing.
func (s *Session) Abort(reason string) {
	if !s.Active() {
		return
	}
	s.drv.ForceStop()
	s.fail(reason)
}

func (s *Session) fail(reason string) {
	s.phase = Failed
	s.progress = 0
	s.failReason = reason
	s.log.Error("homing failed: %s", reason)
}

// Step advances the machine by at most one transition. leftActive and
// rightActive are the debounced switch states sampled this tick.
func (s *Session) Step(now time.Time, leftActive, rightActive bool) {
	if !s.Active() {
		return
	}

	if now.Sub(s.started) > s.cfg.Timeout {
		s.drv.ForceStop()
		s.fail("timeout")
		return
	}

	switch s.phase {
	case SeekLeft:
		s.progress = 10
		if leftActive {
			s.drv.ForceStop()
			s.phase = BackoffLeft
			s.moveIssued = false
			s.log.Info("left limit found at %d", s.drv.CurrentPosition())
		} else if !s.drv.IsRunning() {
			s.fail("left limit not found within seek distance")
		}

	case BackoffLeft:
		s.progress = 25
		if s.drv.IsRunning() {
			return
		}
		if !s.moveIssued {
			s.drv.Move(s.cfg.BackoffSteps)
			s.moveIssued = true
			return
		}
		// Backed off; this point becomes the origin.
		s.drv.SetCurrentPosition(0)
		s.drv.SetSpeed(s.cfg.Speed)
		s.drv.MoveTo(s.cfg.SeekDistance)
		s.phase = SeekRight
		s.log.Info("origin set, seeking right limit")

	case SeekRight:
		s.progress = 50
		if rightActive {
			s.detectedMax = s.drv.CurrentPosition()
			s.drv.ForceStop()
			s.phase = BackoffRight
			s.moveIssued = false
			s.log.Info("right limit found at %d", s.detectedMax)
		} else if !s.drv.IsRunning() {
			s.fail("right limit not found within seek distance")
		}

	case BackoffRight:
		s.progress = 75
		if s.drv.IsRunning() {
			return
		}
		if !s.moveIssued {
			s.drv.Move(-s.cfg.BackoffSteps)
			s.moveIssued = true
			return
		}
		s.phase = SetBounds

	case SetBounds:
		s.progress = 85
		// Margin applied directly on both sides; an earlier firmware
		// revision scaled it, which was a bug.
		s.minPos = s.cfg.SafetyMargin
		s.maxPos = s.detectedMax - s.cfg.SafetyMargin
		if s.maxPos-s.minPos < s.cfg.MinimumRange {
			s.drv.ForceStop()
			s.fail("detected range too small")
			return
		}
		ready := s.minPos + int64(float64(s.maxPos-s.minPos)*s.cfg.HomePositionPercent/100.0)
		// Park at homing speed. Using the profile move speed here caused
		// overshoot into the freshly detected bounds once before.
		s.drv.SetSpeed(s.cfg.Speed)
		s.drv.MoveTo(ready)
		s.phase = ReturnToReady
		s.log.Info("operating range [%d, %d], parking at %d", s.minPos, s.maxPos, ready)

	case ReturnToReady:
		s.progress = 90
		if !s.drv.IsRunning() {
			s.phase = Complete
			s.progress = 100
			s.log.Info("homing complete in %s, range [%d, %d]",
				now.Sub(s.started).Round(time.Millisecond), s.minPos, s.maxPos)
		}
	}
}
