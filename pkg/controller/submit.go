// Producer-side API. These methods are the only way front-ends reach the
// motion task; each returns false when the queue is full and the command
// was dropped. Producers never block.

package controller

import (
	"skullstepper-go/pkg/motion"
	"skullstepper-go/pkg/shared"
)

func (c *Controller) submit(cmd motion.Command) bool {
	if c.queue.TrySend(cmd) {
		return true
	}
	if c.sm != nil {
		c.sm.CommandsDropped.Inc(nil)
	}
	c.log.Warn("command queue full, dropped %s", cmd)
	return false
}

// MoveTo queues an absolute move.
func (c *Controller) MoveTo(target int64) bool {
	return c.submit(motion.NewMoveAbsolute(target, c.cfg.Profile()))
}

// Move queues a move relative to the current position.
func (c *Controller) Move(delta int64) bool {
	return c.submit(motion.NewMoveRelative(delta, c.cfg.Profile()))
}

// SetMaxSpeed queues a profile speed change.
func (c *Controller) SetMaxSpeed(stepsPerSec float64) bool {
	return c.submit(motion.NewSetSpeed(stepsPerSec, c.cfg.Profile()))
}

// SetAcceleration queues a profile acceleration change.
func (c *Controller) SetAcceleration(stepsPerSec2 float64) bool {
	return c.submit(motion.NewSetAcceleration(stepsPerSec2, c.cfg.Profile()))
}

// Home queues the auto-range homing sequence.
func (c *Controller) Home() bool {
	return c.submit(motion.NewHome(c.cfg.Profile()))
}

// Stop queues a decelerated stop.
func (c *Controller) Stop() bool {
	return c.submit(motion.NewStop(c.cfg.Profile()))
}

// EmergencyStopNow queues an emergency stop. It goes through the same
// queue as everything else; with a 1 ms tick the worst-case latency is
// one full queue of commands, each handled in its own tick.
func (c *Controller) EmergencyStopNow() bool {
	return c.submit(motion.NewEmergencyStop())
}

// Enable queues an output-enable, which also releases an emergency stop.
func (c *Controller) Enable() bool {
	return c.submit(motion.NewEnable())
}

// Disable queues an output-disable.
func (c *Controller) Disable() bool {
	return c.submit(motion.NewDisable())
}

// Status returns the latest published snapshot.
func (c *Controller) Status() shared.Status {
	return c.status.Snapshot()
}

// IsHomed reports whether the last homing sequence completed.
func (c *Controller) IsHomed() bool {
	return c.status.Snapshot().Homed
}

// IsMoving reports whether the axis is currently in motion.
func (c *Controller) IsMoving() bool {
	return c.status.Snapshot().MotionState != shared.MotionIdle
}

// IsLimitFaultActive reports whether the fault latch is set.
func (c *Controller) IsLimitFaultActive() bool {
	return c.status.Snapshot().LimitFaultActive
}

// CurrentPosition returns the last published position.
func (c *Controller) CurrentPosition() int64 {
	return c.status.Snapshot().CurrentPosition
}
