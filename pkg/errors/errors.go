// Unified error handling for the stepper controller.
//
// Errors live entirely on the non-real-time side: nothing in the motion
// task's tick path constructs or propagates one across the queue/status
// boundary. Command rejection, lock timeouts and queue overflow are
// boolean returns and status fields there; this package serves
// configuration, front-end and initialization code.
package errors

import "fmt"

// Code is the error category.
type Code string

const (
	// Configuration errors.
	ErrConfigParse      Code = "CONFIG_PARSE"
	ErrConfigOption     Code = "CONFIG_OPTION"
	ErrConfigValidation Code = "CONFIG_VALIDATION"

	// Command/front-end errors.
	ErrCommandInvalid  Code = "COMMAND_INVALID"
	ErrCommandRejected Code = "COMMAND_REJECTED"
	ErrQueueFull       Code = "QUEUE_FULL"

	// Motion subsystem errors.
	ErrHomingFailed Code = "HOMING_FAILED"
	ErrBackend      Code = "BACKEND"
	ErrInit         Code = "INIT"
)

// MotionError is the unified error type.
type MotionError struct {
	Code    Code
	Message string

	// Section and Option locate configuration errors.
	Section string
	Option  string

	Err error
}

// Error implements the error interface.
func (e *MotionError) Error() string {
	if e.Section != "" && e.Option != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Section, e.Option, e.Message)
	}
	if e.Section != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *MotionError) Unwrap() error {
	return e.Err
}

// New creates a MotionError.
func New(code Code, format string, args ...interface{}) *MotionError {
	return &MotionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error.
func Wrap(err error, code Code, format string, args ...interface{}) *MotionError {
	return &MotionError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is a MotionError with the given code.
func Is(err error, code Code) bool {
	me, ok := err.(*MotionError)
	return ok && me.Code == code
}

// ConfigParseError reports a malformed configuration file.
func ConfigParseError(line int, reason string) *MotionError {
	return New(ErrConfigParse, "line %d: %s", line, reason)
}

// ConfigOptionError reports an unknown option or an unparseable value.
func ConfigOptionError(section, option, reason string) *MotionError {
	e := New(ErrConfigOption, "%s", reason)
	e.Section = section
	e.Option = option
	return e
}

// ConfigValidationError reports an out-of-range or inconsistent value.
func ConfigValidationError(section, option, reason string) *MotionError {
	e := New(ErrConfigValidation, "%s", reason)
	e.Section = section
	e.Option = option
	return e
}

// CommandInvalidError reports an unparseable front-end command.
func CommandInvalidError(reason string) *MotionError {
	return New(ErrCommandInvalid, "%s", reason)
}

// QueueFullError reports a dropped command send. Producers log it and
// move on; the core never retries.
func QueueFullError(cmd string) *MotionError {
	return New(ErrQueueFull, "command queue full, dropped %s", cmd)
}

// InitError reports a component initialization failure.
func InitError(component, reason string) *MotionError {
	return New(ErrInit, "failed to initialize %s: %s", component, reason)
}
