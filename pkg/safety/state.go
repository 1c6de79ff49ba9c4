// Package safety converts raw limit-switch edges and driver alarm signals
// into a trustworthy, sticky safety state for the motion task.
//
// The split follows the hardware contract: edge handlers ("ISRs") do
// nothing but set an atomic flag, because the pins share timing-critical
// hardware with pulse generation. All debouncing and every decision happen
// later, inside the polled tick of the motion task.
package safety

// State describes the safety condition reported in the status snapshot.
type State int

const (
	Normal State = iota
	LeftLimitActive
	RightLimitActive
	BothLimitsActive
	StepperAlarm
	EmergencyStopped
	PositionError
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case LeftLimitActive:
		return "left_limit_active"
	case RightLimitActive:
		return "right_limit_active"
	case BothLimitsActive:
		return "both_limits_active"
	case StepperAlarm:
		return "stepper_alarm"
	case EmergencyStopped:
		return "emergency_stop"
	case PositionError:
		return "position_error"
	default:
		return "unknown"
	}
}

// Side identifies one of the two travel limit switches.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}
