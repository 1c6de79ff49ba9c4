// Package motion defines the command protocol between command producers
// (serial console, web monitor, external decoders) and the real-time
// motion task. Commands are plain values: each one carries a private copy
// of the motion profile that was active when it was created, so a later
// profile change can never retroactively alter a command that is already
// sitting in the queue.
package motion

import (
	"fmt"
	"sync/atomic"
	"time"
)

// CommandType identifies the requested operation.
type CommandType int

const (
	MoveAbsolute CommandType = iota
	MoveRelative
	SetSpeed
	SetAcceleration
	Home
	Stop
	EmergencyStop
	Enable
	Disable
)

func (t CommandType) String() string {
	switch t {
	case MoveAbsolute:
		return "move_absolute"
	case MoveRelative:
		return "move_relative"
	case SetSpeed:
		return "set_speed"
	case SetAcceleration:
		return "set_acceleration"
	case Home:
		return "home"
	case Stop:
		return "stop"
	case EmergencyStop:
		return "emergency_stop"
	case Enable:
		return "enable"
	case Disable:
		return "disable"
	default:
		return "unknown"
	}
}

// IsMove reports whether the command requests axis motion and is therefore
// subject to fault-latch and homing rejection.
func (t CommandType) IsMove() bool {
	return t == MoveAbsolute || t == MoveRelative
}

// Profile holds the motion parameters applied to a move. It is always
// copied, never shared.
type Profile struct {
	MaxSpeed              float64 // steps/sec
	Acceleration          float64 // steps/sec^2
	Deceleration          float64 // steps/sec^2
	Jerk                  float64 // steps/sec^3 (reserved, pulse backend dependent)
	HomingSpeed           float64 // steps/sec, used for every homing phase
	EmergencyDeceleration float64 // steps/sec^2
}

// Command is the unit of work handed to the motion task. Value semantics:
// producers construct one, the queue copies it, the task consumes it
// exactly once.
type Command struct {
	Type      CommandType
	Profile   Profile
	Target    int64 // steps; absolute or relative depending on Type
	ID        uint32
	Timestamp time.Time
}

func (c Command) String() string {
	if c.Type.IsMove() {
		return fmt.Sprintf("%s(%d)#%d", c.Type, c.Target, c.ID)
	}
	return fmt.Sprintf("%s#%d", c.Type, c.ID)
}

var nextCommandID atomic.Uint32

func newCommand(t CommandType, p Profile, target int64) Command {
	return Command{
		Type:      t,
		Profile:   p,
		Target:    target,
		ID:        nextCommandID.Add(1),
		Timestamp: time.Now(),
	}
}

// NewMoveAbsolute requests a move to an absolute position in steps.
func NewMoveAbsolute(target int64, p Profile) Command {
	return newCommand(MoveAbsolute, p, target)
}

// NewMoveRelative requests a move by a signed number of steps.
func NewMoveRelative(delta int64, p Profile) Command {
	return newCommand(MoveRelative, p, delta)
}

// NewSetSpeed requests a max speed override. The value travels in the
// profile snapshot and applies to an already-executing move.
func NewSetSpeed(speed float64, p Profile) Command {
	p.MaxSpeed = speed
	return newCommand(SetSpeed, p, 0)
}

// NewSetAcceleration requests an acceleration override.
func NewSetAcceleration(accel float64, p Profile) Command {
	p.Acceleration = accel
	p.Deceleration = accel
	return newCommand(SetAcceleration, p, 0)
}

// NewHome requests an auto-range homing sequence.
func NewHome(p Profile) Command {
	return newCommand(Home, p, 0)
}

// NewStop requests a decelerated stop of the current move.
func NewStop(p Profile) Command {
	return newCommand(Stop, p, 0)
}

// NewEmergencyStop requests an immediate hard stop. Always accepted by the
// motion task, regardless of fault or homing state.
func NewEmergencyStop() Command {
	return newCommand(EmergencyStop, Profile{}, 0)
}

// NewEnable requests enabling the stepper driver outputs.
func NewEnable() Command {
	return newCommand(Enable, Profile{}, 0)
}

// NewDisable requests disabling the stepper driver outputs.
func NewDisable() Command {
	return newCommand(Disable, Profile{}, 0)
}
