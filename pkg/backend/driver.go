// Package backend defines the boundary to the pulse-generation layer that
// actually drives the motor. The motion task owns only the policy around
// it (limits, homing, fault latching); the driver is an opaque executor
// that generates step pulses on its own timer.
package backend

// RampState describes which part of the trapezoidal profile a driver is
// currently executing.
type RampState int

const (
	RampIdle RampState = iota
	RampAccelerating
	RampCruising
	RampDecelerating
)

func (r RampState) String() string {
	switch r {
	case RampIdle:
		return "idle"
	case RampAccelerating:
		return "accelerating"
	case RampCruising:
		return "cruising"
	case RampDecelerating:
		return "decelerating"
	default:
		return "unknown"
	}
}

// Driver is the pulse-generation backend. Implementations must accept
// speed and acceleration updates while a move is executing, not just
// between moves. All methods are non-blocking; position units are steps.
type Driver interface {
	// MoveTo starts or retargets a move to an absolute position.
	MoveTo(target int64)

	// Move starts a move relative to the current position.
	Move(delta int64)

	// StopMove decelerates the current move to a stop using the
	// configured deceleration.
	StopMove()

	// ForceStop halts pulse generation immediately, without ramping.
	ForceStop()

	// SetSpeed updates the cruise speed in steps/sec, applying to an
	// in-flight move if one is running.
	SetSpeed(stepsPerSec float64)

	// SetAcceleration updates acceleration/deceleration in steps/sec^2,
	// applying to an in-flight move if one is running.
	SetAcceleration(stepsPerSec2 float64)

	// IsRunning reports whether pulses are being generated.
	IsRunning() bool

	// CurrentPosition returns the current position in steps.
	CurrentPosition() int64

	// TargetPosition returns the target of the current or last move.
	TargetPosition() int64

	// SetCurrentPosition re-references the coordinate system so the
	// current physical position reads as pos.
	SetCurrentPosition(pos int64)

	// CurrentSpeed returns the signed instantaneous speed in steps/sec.
	CurrentSpeed() float64

	// RampState reports the active profile segment.
	RampState() RampState

	// EnableOutputs energizes the driver outputs.
	EnableOutputs()

	// DisableOutputs de-energizes the driver outputs. An in-flight move
	// is force-stopped.
	DisableOutputs()

	// Enabled reports the output state.
	Enabled() bool
}
