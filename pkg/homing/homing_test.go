package homing

import (
	"testing"
	"time"

	"skullstepper-go/pkg/backend"
)

// scriptDriver is a hand-driven Driver. Tests move it and complete its
// moves explicitly so every FSM transition happens at an exact position.
type scriptDriver struct {
	pos     int64
	target  int64
	running bool
	enabled bool

	speeds     []float64
	accels     []float64
	forceStops int
}

func (d *scriptDriver) MoveTo(target int64) {
	d.enabled = true
	d.target = target
	d.running = true
}

func (d *scriptDriver) Move(delta int64) {
	d.enabled = true
	d.target = d.pos + delta
	d.running = true
}

func (d *scriptDriver) StopMove() { d.running = false }
func (d *scriptDriver) ForceStop() { d.running = false; d.forceStops++ }

func (d *scriptDriver) SetSpeed(v float64) { d.speeds = append(d.speeds, v) }
func (d *scriptDriver) SetAcceleration(v float64) { d.accels = append(d.accels, v) }

func (d *scriptDriver) IsRunning() bool { return d.running }
func (d *scriptDriver) CurrentPosition() int64 { return d.pos }
func (d *scriptDriver) TargetPosition() int64 { return d.target }

func (d *scriptDriver) SetCurrentPosition(pos int64) {
	d.target += pos - d.pos
	d.pos = pos
}

func (d *scriptDriver) CurrentSpeed() float64 { return 0 }
func (d *scriptDriver) RampState() backend.RampState { return backend.RampIdle }
func (d *scriptDriver) EnableOutputs() { d.enabled = true }
func (d *scriptDriver) DisableOutputs() { d.enabled = false; d.running = false }
func (d *scriptDriver) Enabled() bool { return d.enabled }

// arrive simulates the axis reaching a position and the move finishing.
func (d *scriptDriver) arrive(pos int64) {
	d.pos = pos
	d.running = false
}

func testConfig() Config {
	return Config{
		Speed:               940,
		Acceleration:        5000,
		BackoffSteps:        50,
		SafetyMargin:        10,
		MinimumRange:        100,
		HomePositionPercent: 50,
		Timeout:             90 * time.Second,
	}
}

// TestFullSequence walks the machine through a track whose left switch
// sits at -500 and right switch at +500 in startup coordinates. With a
// 50-step backoff and 10-step margin the detected maximum is 950 and the
// usable range [10, 940].
func TestFullSequence(t *testing.T) {
	d := &scriptDriver{}
	s := NewSession(testConfig(), d, nil)
	now := time.Now()

	if !s.Start(now) {
		t.Fatal("Start failed on an idle session")
	}
	if s.Phase() != SeekLeft {
		t.Fatalf("Phase = %s, want seek_left", s.Phase())
	}
	if d.target != -DefaultSeekDistance {
		t.Errorf("seek target = %d, want %d", d.target, -DefaultSeekDistance)
	}

	// Travelling left; nothing happens until the switch triggers.
	s.Step(now, false, false)
	if s.Phase() != SeekLeft {
		t.Fatalf("Phase = %s, want seek_left", s.Phase())
	}

	// Left switch at -500.
	d.pos = -500
	s.Step(now, true, false)
	if s.Phase() != BackoffLeft {
		t.Fatalf("Phase = %s, want backoff_left", s.Phase())
	}
	if d.forceStops != 1 {
		t.Errorf("forceStops = %d, want 1", d.forceStops)
	}

	// Backoff move is issued, then completes at -450.
	s.Step(now, false, false)
	if d.target != -450 {
		t.Errorf("backoff target = %d, want -450", d.target)
	}
	d.arrive(-450)

	// This point becomes the origin and the right seek starts.
	s.Step(now, false, false)
	if s.Phase() != SeekRight {
		t.Fatalf("Phase = %s, want seek_right", s.Phase())
	}
	if d.pos != 0 {
		t.Errorf("position after re-zero = %d, want 0", d.pos)
	}

	// Right switch, physically at +500 in old coordinates, is now at 950.
	d.pos = 950
	s.Step(now, false, true)
	if s.Phase() != BackoffRight {
		t.Fatalf("Phase = %s, want backoff_right", s.Phase())
	}

	// Back off to 900.
	s.Step(now, false, false)
	if d.target != 900 {
		t.Errorf("backoff target = %d, want 900", d.target)
	}
	d.arrive(900)
	s.Step(now, false, false)
	if s.Phase() != SetBounds {
		t.Fatalf("Phase = %s, want set_bounds", s.Phase())
	}

	// Bounds are computed and the park move starts: 10 + 930/2 = 475.
	s.Step(now, false, false)
	if s.Phase() != ReturnToReady {
		t.Fatalf("Phase = %s, want return_to_ready", s.Phase())
	}
	if d.target != 475 {
		t.Errorf("park target = %d, want 475", d.target)
	}

	d.arrive(475)
	s.Step(now, false, false)
	if s.Phase() != Complete {
		t.Fatalf("Phase = %s, want complete", s.Phase())
	}
	if !s.Homed() {
		t.Error("Homed = false after complete")
	}
	if s.Progress() != 100 {
		t.Errorf("Progress = %d, want 100", s.Progress())
	}

	minPos, maxPos, ok := s.Bounds()
	if !ok {
		t.Fatal("Bounds not available after complete")
	}
	if minPos != 10 || maxPos != 940 {
		t.Errorf("bounds = [%d, %d], want [10, 940]", minPos, maxPos)
	}

	// Every speed change during the sequence uses the homing speed; the
	// park move in particular must not run at the profile speed.
	for i, v := range d.speeds {
		if v != 940 {
			t.Errorf("speed change %d = %v, want homing speed 940", i, v)
		}
	}
}

func TestTimeoutFails(t *testing.T) {
	d := &scriptDriver{}
	s := NewSession(testConfig(), d, nil)
	now := time.Now()

	s.Start(now)
	s.Step(now.Add(91*time.Second), false, false)

	if s.Phase() != Failed {
		t.Fatalf("Phase = %s, want failed", s.Phase())
	}
	if s.FailReason() != "timeout" {
		t.Errorf("FailReason = %q, want timeout", s.FailReason())
	}
	if d.forceStops != 1 {
		t.Errorf("forceStops = %d, want 1", d.forceStops)
	}
	if _, _, ok := s.Bounds(); ok {
		t.Error("Bounds should not be available after a failure")
	}
}

func TestRangeTooSmallFails(t *testing.T) {
	d := &scriptDriver{}
	s := NewSession(testConfig(), d, nil)
	now := time.Now()

	s.Start(now)
	d.pos = -500
	s.Step(now, true, false)
	s.Step(now, false, false)
	d.arrive(-450)
	s.Step(now, false, false)

	// Right switch only 100 steps from the origin: 10..90 is under the
	// 100-step minimum.
	d.pos = 100
	s.Step(now, false, true)
	s.Step(now, false, false)
	d.arrive(50)
	s.Step(now, false, false)
	s.Step(now, false, false)

	if s.Phase() != Failed {
		t.Fatalf("Phase = %s, want failed", s.Phase())
	}
	if s.FailReason() != "detected range too small" {
		t.Errorf("FailReason = %q", s.FailReason())
	}
}

func TestAbortDuringSeek(t *testing.T) {
	d := &scriptDriver{}
	s := NewSession(testConfig(), d, nil)
	now := time.Now()

	s.Start(now)
	s.Abort("emergency stop")

	if s.Phase() != Failed {
		t.Fatalf("Phase = %s, want failed", s.Phase())
	}
	if s.Homed() {
		t.Error("aborted session must not report homed")
	}
	if d.forceStops != 1 {
		t.Errorf("forceStops = %d, want 1", d.forceStops)
	}
}

func TestSeekExhaustedFails(t *testing.T) {
	d := &scriptDriver{}
	s := NewSession(testConfig(), d, nil)
	now := time.Now()

	s.Start(now)
	// Move finished without ever seeing the switch.
	d.arrive(-DefaultSeekDistance)
	s.Step(now, false, false)

	if s.Phase() != Failed {
		t.Fatalf("Phase = %s, want failed", s.Phase())
	}
}

func TestStartWhileActiveRejected(t *testing.T) {
	d := &scriptDriver{}
	s := NewSession(testConfig(), d, nil)
	now := time.Now()

	s.Start(now)
	if s.Start(now) {
		t.Error("Start should be rejected while a session is active")
	}
}

func TestExpecting(t *testing.T) {
	d := &scriptDriver{}
	s := NewSession(testConfig(), d, nil)
	now := time.Now()

	left, right := s.Expecting()
	if left || right {
		t.Error("idle session should expect nothing")
	}

	s.Start(now)
	left, right = s.Expecting()
	if !left || right {
		t.Errorf("Expecting = (%t, %t) in seek_left, want (true, false)", left, right)
	}
}
