// Package shared holds the state that crosses the boundary between the
// real-time motion task and every other goroutine: a single status
// snapshot with bounded-wait accessors and a fixed-capacity command queue.
// Nothing in this package performs I/O or waits without a deadline; when a
// lock cannot be had in time, readers get the last known value and writers
// skip the update. Producers and the consumer run on different scheduling
// contexts, so no error values cross this boundary either — every failure
// mode is a boolean or a stale read.
package shared

import (
	"time"

	"skullstepper-go/pkg/homing"
	"skullstepper-go/pkg/safety"
)

// SystemState is the coarse lifecycle state of the controller.
type SystemState int

const (
	SystemUninitialized SystemState = iota
	SystemInitializing
	SystemReady
	SystemRunning
	SystemEmergencyStop
	SystemError
)

func (s SystemState) String() string {
	switch s {
	case SystemUninitialized:
		return "uninitialized"
	case SystemInitializing:
		return "initializing"
	case SystemReady:
		return "ready"
	case SystemRunning:
		return "running"
	case SystemEmergencyStop:
		return "emergency_stop"
	case SystemError:
		return "error"
	default:
		return "unknown"
	}
}

// MotionState is the instantaneous movement phase of the axis.
type MotionState int

const (
	MotionIdle MotionState = iota
	MotionAccelerating
	MotionConstantVelocity
	MotionDecelerating
	MotionHoming
)

func (m MotionState) String() string {
	switch m {
	case MotionIdle:
		return "idle"
	case MotionAccelerating:
		return "accelerating"
	case MotionConstantVelocity:
		return "constant_velocity"
	case MotionDecelerating:
		return "decelerating"
	case MotionHoming:
		return "homing"
	default:
		return "unknown"
	}
}

// Status is the snapshot published once per tick by the motion task. The
// task is the single writer; everyone else reads copies through the store
// and must tolerate staleness of up to one tick.
type Status struct {
	SystemState SystemState
	MotionState MotionState
	SafetyState safety.State

	CurrentPosition int64
	TargetPosition  int64
	CurrentSpeed    float64

	StepperEnabled   bool
	LimitsActive     [2]bool // [left, right], debounced
	AlarmActive      bool
	LimitFaultActive bool

	Homed          bool
	HomingPhase    homing.Phase
	HomingProgress int

	MinPosition int64
	MaxPosition int64

	Uptime time.Duration
}
