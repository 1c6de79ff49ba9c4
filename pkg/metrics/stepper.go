// Metric definitions for the stepper controller daemon.

package metrics

import (
	goruntime "runtime"
	"time"
)

// StepperMetrics holds every metric the daemon exports.
type StepperMetrics struct {
	// Motion task
	TicksTotal   *Counter
	TickDuration *Histogram
	Position     *Gauge
	Speed        *Gauge
	QueueDepth   *Gauge
	MotionState  *Gauge

	// Command protocol
	CommandsProcessed *Counter
	CommandsRejected  *Counter
	CommandsDropped   *Counter

	// Safety
	LimitFaults    *Counter
	AlarmEvents    *Counter
	EmergencyStops *Counter
	StatusTimeouts *Counter

	// Homing
	HomingAttempts *Counter
	HomingFailures *Counter
	HomingDuration *Histogram
	DetectedRange  *Gauge

	// Process
	Goroutines *Gauge
	HeapBytes  *Gauge
	Uptime     *Gauge

	startTime time.Time
	registry  *Registry
}

// NewStepperMetrics creates and registers the daemon's metrics on a
// fresh registry.
func NewStepperMetrics() *StepperMetrics {
	m := &StepperMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),
	}

	m.TicksTotal = NewCounter("stepper_ticks_total",
		"Motion task ticks executed")
	m.TickDuration = NewHistogram("stepper_tick_duration_seconds",
		"Time spent inside one motion task tick",
		[]float64{.00001, .00005, .0001, .00025, .0005, .001, .0025})
	m.Position = NewGauge("stepper_position_steps",
		"Current position in steps")
	m.Speed = NewGauge("stepper_speed_steps_per_second",
		"Current speed in steps per second")
	m.QueueDepth = NewGauge("stepper_command_queue_depth",
		"Commands waiting in the motion command queue")
	m.MotionState = NewGauge("stepper_motion_state",
		"Motion state (0=idle, 1=accel, 2=const, 3=decel, 4=homing)")

	m.CommandsProcessed = NewCounter("stepper_commands_processed_total",
		"Commands dequeued and executed per type")
	m.CommandsRejected = NewCounter("stepper_commands_rejected_total",
		"Commands dequeued but refused per type")
	m.CommandsDropped = NewCounter("stepper_commands_dropped_total",
		"Commands dropped because the queue was full")

	m.LimitFaults = NewCounter("stepper_limit_faults_total",
		"Confirmed unexpected limit activations")
	m.AlarmEvents = NewCounter("stepper_alarm_events_total",
		"Driver alarm activations observed")
	m.EmergencyStops = NewCounter("stepper_emergency_stops_total",
		"Emergency stop commands executed")
	m.StatusTimeouts = NewCounter("stepper_status_timeouts_total",
		"Status accesses that timed out and degraded")

	m.HomingAttempts = NewCounter("stepper_homing_attempts_total",
		"Homing sequences started")
	m.HomingFailures = NewCounter("stepper_homing_failures_total",
		"Homing sequences that ended in failure")
	m.HomingDuration = NewHistogram("stepper_homing_duration_seconds",
		"Time from homing start to a terminal phase",
		[]float64{1, 2, 5, 10, 30, 60, 90})
	m.DetectedRange = NewGauge("stepper_detected_range_steps",
		"Usable travel detected by the last successful homing")

	m.Goroutines = NewGauge("stepper_goroutines",
		"Number of goroutines")
	m.HeapBytes = NewGauge("stepper_heap_alloc_bytes",
		"Heap bytes allocated and in use")
	m.Uptime = NewGauge("stepper_uptime_seconds",
		"Seconds since the daemon started")

	for _, metric := range []Metric{
		m.TicksTotal, m.TickDuration, m.Position, m.Speed, m.QueueDepth,
		m.MotionState, m.CommandsProcessed, m.CommandsRejected,
		m.CommandsDropped, m.LimitFaults, m.AlarmEvents, m.EmergencyStops,
		m.StatusTimeouts, m.HomingAttempts, m.HomingFailures,
		m.HomingDuration, m.DetectedRange, m.Goroutines, m.HeapBytes,
		m.Uptime,
	} {
		m.registry.MustRegister(metric)
	}
	return m
}

// Registry returns the underlying registry.
func (m *StepperMetrics) Registry() *Registry { return m.registry }

// Gather refreshes the process gauges and renders everything.
func (m *StepperMetrics) Gather() string {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	m.Goroutines.Set(nil, float64(goruntime.NumGoroutine()))
	m.HeapBytes.Set(nil, float64(ms.HeapAlloc))
	m.Uptime.Set(nil, time.Since(m.startTime).Seconds())
	return m.registry.Gather()
}
