package backend

import (
	"math"
	"testing"
	"time"
)

const tick = time.Millisecond

// run advances the sim until it stops running or maxTicks elapse.
func run(s *Sim, maxTicks int) int {
	for i := 0; i < maxTicks; i++ {
		s.Advance(tick)
		if !s.IsRunning() {
			return i
		}
	}
	return maxTicks
}

func TestSimReachesTarget(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -10000, RightLimit: 10000, Speed: 1000, Acceleration: 5000})

	s.MoveTo(500)
	if !s.IsRunning() {
		t.Fatal("IsRunning = false after MoveTo")
	}

	if ticks := run(s, 10000); ticks == 10000 {
		t.Fatal("move did not finish")
	}
	if got := s.CurrentPosition(); got != 500 {
		t.Errorf("CurrentPosition = %d, want 500", got)
	}
	if speed := s.CurrentSpeed(); math.Abs(speed) > 1e-6 {
		t.Errorf("CurrentSpeed = %v at rest, want 0", speed)
	}
}

func TestSimMoveNegative(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -10000, RightLimit: 10000, Speed: 1000, Acceleration: 5000})

	s.Move(-300)
	run(s, 10000)
	if got := s.CurrentPosition(); got != -300 {
		t.Errorf("CurrentPosition = %d, want -300", got)
	}
}

func TestSimSpeedIsLimited(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -100000, RightLimit: 100000, Speed: 800, Acceleration: 4000})

	s.MoveTo(50000)
	var peak float64
	for i := 0; i < 5000; i++ {
		s.Advance(tick)
		if v := math.Abs(s.CurrentSpeed()); v > peak {
			peak = v
		}
	}
	if peak > 800+1 {
		t.Errorf("peak speed = %v, want <= 800", peak)
	}
	if peak < 700 {
		t.Errorf("peak speed = %v, expected to approach the 800 cruise limit", peak)
	}
}

func TestSimStopMoveDecelerates(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -100000, RightLimit: 100000, Speed: 1000, Acceleration: 2000})

	s.MoveTo(50000)
	for i := 0; i < 600; i++ { // long enough to reach cruise
		s.Advance(tick)
	}
	speedAtStop := math.Abs(s.CurrentSpeed())
	posAtStop := s.CurrentPosition()
	s.StopMove()

	run(s, 10000)
	if s.IsRunning() {
		t.Fatal("still running after decelerated stop")
	}
	// Decelerating from v at accel a travels about v^2/2a further.
	expected := float64(posAtStop) + speedAtStop*speedAtStop/(2*2000)
	if got := float64(s.CurrentPosition()); math.Abs(got-expected) > speedAtStop*tick.Seconds()*10 {
		t.Errorf("stop position = %v, want about %v", got, expected)
	}
}

func TestSimForceStopImmediate(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -100000, RightLimit: 100000, Speed: 1000, Acceleration: 2000})

	s.MoveTo(50000)
	for i := 0; i < 300; i++ {
		s.Advance(tick)
	}
	pos := s.CurrentPosition()
	s.ForceStop()

	if s.IsRunning() {
		t.Error("IsRunning = true after ForceStop")
	}
	if s.CurrentSpeed() != 0 {
		t.Errorf("CurrentSpeed = %v after ForceStop, want 0", s.CurrentSpeed())
	}
	s.Advance(tick)
	if got := s.CurrentPosition(); got != pos {
		t.Errorf("position moved from %d to %d after ForceStop", pos, got)
	}
}

func TestSimSetSpeedMidMove(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -100000, RightLimit: 100000, Speed: 1000, Acceleration: 10000})

	s.MoveTo(80000)
	for i := 0; i < 500; i++ {
		s.Advance(tick)
	}
	s.SetSpeed(200)
	for i := 0; i < 500; i++ {
		s.Advance(tick)
	}
	if v := math.Abs(s.CurrentSpeed()); v > 201 {
		t.Errorf("speed = %v after mid-move reduction, want <= 200", v)
	}
}

func TestSimFrameShiftKeepsSwitchesFixed(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -500, RightLimit: 500, Speed: 1000, Acceleration: 5000})

	// Drive onto the left switch.
	s.MoveTo(-600)
	for i := 0; i < 10000 && !s.LeftLevel(); i++ {
		s.Advance(tick)
	}
	if !s.LeftLevel() {
		t.Fatal("never reached the left switch")
	}
	s.ForceStop()
	triggerPos := s.CurrentPosition()

	// Re-zero: the switch must still read active at the same physical
	// place, now at a shifted logical coordinate.
	s.SetCurrentPosition(0)
	if got := s.CurrentPosition(); got != 0 {
		t.Fatalf("CurrentPosition = %d after re-zero, want 0", got)
	}
	if !s.LeftLevel() {
		t.Error("left switch released by a pure coordinate change")
	}

	// Move right by the same distance we overshot; the switch clears.
	s.MoveTo(-triggerPos + 10)
	run(s, 20000)
	if s.LeftLevel() {
		t.Error("left switch still active after moving off it")
	}
}

func TestSimEdgeCallbacks(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -200, RightLimit: 200, Speed: 1000, Acceleration: 5000})

	edges := 0
	s.OnRightEdge(func() { edges++ })

	s.MoveTo(300)
	run(s, 10000)
	if edges == 0 {
		t.Error("no edge callback crossing the right switch")
	}
}

func TestSimDisableStopsOutput(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -10000, RightLimit: 10000, Speed: 1000, Acceleration: 5000})

	s.MoveTo(5000)
	for i := 0; i < 100; i++ {
		s.Advance(tick)
	}
	s.DisableOutputs()
	if s.Enabled() {
		t.Error("Enabled = true after DisableOutputs")
	}
	pos := s.CurrentPosition()
	s.Advance(tick)
	if got := s.CurrentPosition(); got != pos {
		t.Error("axis moved while outputs disabled")
	}

	// Starting a new move re-enables, the way auto-enable drivers behave.
	s.MoveTo(pos + 100)
	if !s.Enabled() {
		t.Error("MoveTo should re-enable outputs")
	}
}

func TestSimAlarmLine(t *testing.T) {
	s := NewSim(SimConfig{})
	if s.AlarmLevel() {
		t.Error("alarm should start clear")
	}
	s.SetAlarm(true)
	if !s.AlarmLevel() {
		t.Error("alarm not readable after SetAlarm")
	}
}

func TestSimRampStates(t *testing.T) {
	s := NewSim(SimConfig{LeftLimit: -1000000, RightLimit: 1000000, Speed: 500, Acceleration: 1000})

	s.MoveTo(500000)
	s.Advance(tick)
	if got := s.RampState(); got != RampAccelerating {
		t.Errorf("RampState = %s at move start, want accelerating", got)
	}

	for i := 0; i < 2000; i++ { // reach cruise
		s.Advance(tick)
	}
	if got := s.RampState(); got != RampCruising {
		t.Errorf("RampState = %s at cruise, want cruising", got)
	}

	s.StopMove()
	s.Advance(tick)
	if got := s.RampState(); got != RampDecelerating {
		t.Errorf("RampState = %s during stop, want decelerating", got)
	}
}
