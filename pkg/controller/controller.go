// Package controller runs the fixed-cadence motion task. Every tick
// executes the same five steps in order: poll the limit switches, advance
// the homing machine, process at most one queued command, poll the driver
// alarm, and publish a status snapshot. The task is the only goroutine
// that touches the driver or mutates movement state; everything else
// talks to it through the command queue and reads the status store.
package controller

import (
	"context"
	"time"

	"skullstepper-go/pkg/backend"
	"skullstepper-go/pkg/config"
	"skullstepper-go/pkg/homing"
	"skullstepper-go/pkg/log"
	"skullstepper-go/pkg/metrics"
	"skullstepper-go/pkg/motion"
	"skullstepper-go/pkg/safety"
	"skullstepper-go/pkg/shared"
)

// AlarmFunc reads the raw driver alarm line. Nil means no alarm input.
type AlarmFunc func() bool

// Controller is the motion task plus the producer-side API around its
// queue. Tick and Run must be confined to one goroutine; everything else
// is safe to call from anywhere.
type Controller struct {
	cfg     *config.Store
	drv     backend.Driver
	alarm   AlarmFunc
	monitor *safety.Monitor
	session *homing.Session
	queue   *shared.CommandQueue
	status  *shared.StatusStore
	sm      *metrics.StepperMetrics
	log     *log.Logger

	// Task-goroutine state, never touched from outside the tick.
	system      shared.SystemState
	homed       bool
	alarmSeen   bool
	homingBegan time.Time
	started     time.Time
}

// New wires a controller around a driver. The monitor must already be
// connected to the machine's switch inputs.
func New(cfg *config.Store, drv backend.Driver, alarm AlarmFunc, monitor *safety.Monitor, sm *metrics.StepperMetrics, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.GetLogger("motion")
	}
	s := cfg.Snapshot()
	session := homing.NewSession(homing.Config{
		Speed:               s.HomingSpeed,
		Acceleration:        s.Profile.Acceleration,
		BackoffSteps:        s.BackoffSteps,
		SafetyMargin:        s.LimitSafetyMargin,
		MinimumRange:        s.MinimumRange,
		HomePositionPercent: s.HomePositionPercent,
		Timeout:             s.HomingTimeout,
	}, drv, logger.WithPrefix("homing"))

	return &Controller{
		cfg:     cfg,
		drv:     drv,
		alarm:   alarm,
		monitor: monitor,
		session: session,
		queue:   shared.NewCommandQueue(s.QueueCapacity),
		status:  shared.NewStatusStore(shared.Status{SystemState: shared.SystemInitializing}),
		sm:      sm,
		log:     logger,
		system:  shared.SystemInitializing,
		started: time.Now(),
	}
}

// Queue returns the command queue for producers that submit raw commands.
func (c *Controller) Queue() *shared.CommandQueue { return c.queue }

// StatusStore returns the store front-ends read snapshots from.
func (c *Controller) StatusStore() *shared.StatusStore { return c.status }

// Run executes ticks at the configured interval until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.monitor.Prime()
	c.system = shared.SystemReady
	interval := c.cfg.Snapshot().TickInterval

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.log.Info("motion task running, tick interval %s", interval)

	for {
		select {
		case <-ctx.Done():
			c.drv.StopMove()
			c.log.Info("motion task stopped")
			return
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Tick runs one iteration of the motion task.
func (c *Controller) Tick(now time.Time) {
	if c.sm != nil {
		c.sm.TicksTotal.Inc(nil)
		defer c.sm.TickDuration.Timer(nil)()
	}

	wasActive := c.session.Active()

	// Step 1: limits. An activation the homing machine is seeking is its
	// goal, not a fault.
	expectLeft, expectRight := c.session.Expecting()
	res := c.monitor.Poll(expectLeft, expectRight)
	if res.Tripped {
		if c.sm != nil {
			c.sm.LimitFaults.Inc(nil)
		}
		if c.session.Active() {
			c.session.Abort("limit fault: " + res.State.String())
		} else {
			// Controlled deceleration, not a hard stop. Steps lost to a
			// hard stop would corrupt the position reference.
			c.drv.StopMove()
		}
	}

	// Step 2: homing.
	c.session.Step(now, res.LeftActive, res.RightActive)
	if wasActive && !c.session.Active() {
		c.finishHoming(now)
	}

	// Step 3: at most one command per tick.
	if cmd, ok := c.queue.TryReceive(); ok {
		c.process(now, cmd)
	}

	// Step 4: driver alarm, report-only.
	c.pollAlarm()

	// Step 5: publish. A timed-out write skips this tick; readers keep
	// the previous snapshot.
	c.publish(now, res)
}

// finishHoming handles the session reaching a terminal phase.
func (c *Controller) finishHoming(now time.Time) {
	if c.sm != nil {
		c.sm.HomingDuration.Observe(nil, now.Sub(c.homingBegan).Seconds())
	}
	minPos, maxPos, ok := c.session.Bounds()
	if !ok {
		c.homed = false
		if c.sm != nil {
			c.sm.HomingFailures.Inc(nil)
		}
		c.log.Warn("homing did not complete: %s", c.session.FailReason())
		return
	}

	if err := c.cfg.SetPositionLimits(minPos, maxPos); err != nil {
		c.homed = false
		c.log.Error("homing produced unusable bounds [%d, %d]: %v", minPos, maxPos, err)
		return
	}
	c.monitor.Latch().ClearOnHomed()
	c.homed = true
	if c.sm != nil {
		c.sm.DetectedRange.Set(nil, float64(maxPos-minPos))
	}

	// Homing ran at its own speed; restore the operating profile.
	p := c.cfg.Profile()
	c.drv.SetSpeed(p.MaxSpeed)
	c.drv.SetAcceleration(p.Acceleration)
	c.log.Info("homed: operating range [%d, %d]", minPos, maxPos)
}

// process executes one dequeued command.
func (c *Controller) process(now time.Time, cmd motion.Command) {
	// Emergency stop is honored before anything else can move.
	if cmd.Type == motion.EmergencyStop {
		c.emergencyStop(now)
		c.countProcessed(cmd)
		return
	}

	if c.system == shared.SystemEmergencyStop {
		// Only ENABLE releases an emergency stop.
		if cmd.Type == motion.Enable {
			c.system = shared.SystemReady
			c.drv.EnableOutputs()
			c.log.Info("emergency stop released")
			c.countProcessed(cmd)
			return
		}
		c.reject(cmd, "emergency stop active")
		return
	}

	switch cmd.Type {
	case motion.MoveAbsolute, motion.MoveRelative:
		c.processMove(cmd)

	case motion.SetSpeed:
		if err := c.cfg.SetMotionProfile(cmd.Profile); err != nil {
			c.reject(cmd, err.Error())
			return
		}
		// Homing owns the driver speed while it runs.
		if !c.session.Active() {
			c.drv.SetSpeed(cmd.Profile.MaxSpeed)
		}
		c.countProcessed(cmd)

	case motion.SetAcceleration:
		if err := c.cfg.SetMotionProfile(cmd.Profile); err != nil {
			c.reject(cmd, err.Error())
			return
		}
		if !c.session.Active() {
			c.drv.SetAcceleration(cmd.Profile.Acceleration)
		}
		c.countProcessed(cmd)

	case motion.Home:
		if c.session.Active() {
			c.reject(cmd, "homing already in progress")
			return
		}
		c.homed = false
		c.homingBegan = now
		if c.sm != nil {
			c.sm.HomingAttempts.Inc(nil)
		}
		c.session.Start(now)
		c.countProcessed(cmd)

	case motion.Stop:
		if c.session.Active() {
			c.session.Abort("operator stop")
			c.finishHoming(now)
		} else {
			c.drv.StopMove()
		}
		c.countProcessed(cmd)

	case motion.Enable:
		c.drv.EnableOutputs()
		c.countProcessed(cmd)

	case motion.Disable:
		if c.session.Active() {
			c.session.Abort("outputs disabled")
			c.finishHoming(now)
		}
		c.drv.DisableOutputs()
		c.countProcessed(cmd)

	default:
		c.reject(cmd, "unknown command type")
	}
}

// processMove validates and starts a MOVE or JOG.
func (c *Controller) processMove(cmd motion.Command) {
	if c.monitor.Latch().Active() {
		c.reject(cmd, "limit fault latched, home to clear")
		return
	}
	if c.session.Active() {
		c.reject(cmd, "homing in progress")
		return
	}

	target := cmd.Target
	if cmd.Type == motion.MoveRelative {
		target = c.drv.CurrentPosition() + cmd.Target
	}
	minPos, maxPos := c.cfg.Limits()
	if target < minPos {
		c.log.Warn("target %d clamped to %d", target, minPos)
		target = minPos
	} else if target > maxPos {
		c.log.Warn("target %d clamped to %d", target, maxPos)
		target = maxPos
	}

	// The command's profile snapshot applies, not whatever the live
	// profile says now.
	c.drv.SetSpeed(cmd.Profile.MaxSpeed)
	c.drv.SetAcceleration(cmd.Profile.Acceleration)
	c.drv.MoveTo(target)
	c.countProcessed(cmd)
}

// emergencyStop halts everything immediately and latches the estop state.
func (c *Controller) emergencyStop(now time.Time) {
	c.drv.ForceStop()
	if c.session.Active() {
		c.session.Abort("emergency stop")
		c.finishHoming(now)
		c.homed = false
	}
	c.drv.DisableOutputs()
	c.system = shared.SystemEmergencyStop
	if c.sm != nil {
		c.sm.EmergencyStops.Inc(nil)
	}
	c.log.Warn("emergency stop")
}

func (c *Controller) pollAlarm() {
	if c.alarm == nil {
		return
	}
	level := c.alarm()
	if level && !c.alarmSeen {
		if c.sm != nil {
			c.sm.AlarmEvents.Inc(nil)
		}
		c.log.Warn("stepper driver alarm asserted")
	}
	c.alarmSeen = level
}

func (c *Controller) reject(cmd motion.Command, reason string) {
	if c.sm != nil {
		c.sm.CommandsRejected.Inc(metrics.Labels{"type": cmd.Type.String()})
	}
	c.log.Debug("rejected %s: %s", cmd, reason)
}

func (c *Controller) countProcessed(cmd motion.Command) {
	if c.sm != nil {
		c.sm.CommandsProcessed.Inc(metrics.Labels{"type": cmd.Type.String()})
	}
}

// publish writes this tick's status snapshot.
func (c *Controller) publish(now time.Time, res safety.PollResult) {
	system := c.system
	if system != shared.SystemEmergencyStop {
		if res.Fault {
			system = shared.SystemError
		} else if c.drv.IsRunning() {
			system = shared.SystemRunning
		} else {
			system = shared.SystemReady
		}
	}

	ms := shared.MotionIdle
	if c.session.Active() {
		ms = shared.MotionHoming
	} else {
		switch c.drv.RampState() {
		case backend.RampAccelerating:
			ms = shared.MotionAccelerating
		case backend.RampCruising:
			ms = shared.MotionConstantVelocity
		case backend.RampDecelerating:
			ms = shared.MotionDecelerating
		}
	}

	// Emergency stop dominates the safety state; a latched limit fault
	// outranks the driver alarm.
	safetyState := res.State
	if c.alarmSeen && !res.Fault {
		safetyState = safety.StepperAlarm
	}
	if c.system == shared.SystemEmergencyStop {
		safetyState = safety.EmergencyStopped
	}

	minPos, maxPos := c.cfg.Limits()
	pos := c.drv.CurrentPosition()
	speed := c.drv.CurrentSpeed()

	ok := c.status.Write(shared.DefaultAccessTimeout, func(st *shared.Status) {
		st.SystemState = system
		st.MotionState = ms
		st.SafetyState = safetyState
		st.CurrentPosition = pos
		st.TargetPosition = c.drv.TargetPosition()
		st.CurrentSpeed = speed
		st.StepperEnabled = c.drv.Enabled()
		st.LimitsActive = [2]bool{res.LeftActive, res.RightActive}
		st.AlarmActive = c.alarmSeen
		st.LimitFaultActive = res.Fault
		st.Homed = c.homed
		st.HomingPhase = c.session.Phase()
		st.HomingProgress = c.session.Progress()
		st.MinPosition = minPos
		st.MaxPosition = maxPos
		st.Uptime = now.Sub(c.started)
	})
	if c.sm != nil {
		if !ok {
			c.sm.StatusTimeouts.Inc(nil)
		}
		c.sm.Position.Set(nil, float64(pos))
		c.sm.Speed.Set(nil, speed)
		c.sm.QueueDepth.Set(nil, float64(c.queue.Len()))
		c.sm.MotionState.Set(nil, float64(ms))
	}
}
