package safety

import "testing"

func TestDebouncerRequiresConsecutiveSamples(t *testing.T) {
	d := NewDebouncer(3)

	if d.Confirmed() {
		t.Fatal("new debouncer should start inactive")
	}

	if d.Sample(true) {
		t.Error("first sample should not confirm")
	}
	if d.Sample(true) {
		t.Error("second sample should not confirm")
	}
	if !d.Sample(true) {
		t.Error("third consecutive sample should confirm")
	}
	if !d.Confirmed() {
		t.Error("Confirmed = false after three active samples")
	}
}

func TestDebouncerNoisePulseIgnored(t *testing.T) {
	d := NewDebouncer(3)

	// Two active samples then a drop: the pending transition is noise.
	d.Sample(true)
	d.Sample(true)
	if d.Sample(false) {
		t.Error("returning to confirmed state should not report a change")
	}
	if d.Confirmed() {
		t.Error("noise pulse shorter than the window reached confirmed state")
	}
	if !d.Settled() {
		t.Error("counter should reset after an inconsistent sample")
	}
}

func TestDebouncerDeactivationSymmetric(t *testing.T) {
	d := NewDebouncer(3)
	for i := 0; i < 3; i++ {
		d.Sample(true)
	}

	d.Sample(false)
	d.Sample(false)
	if d.Confirmed() != true {
		t.Error("still active until third inactive sample")
	}
	if !d.Sample(false) {
		t.Error("third inactive sample should confirm deactivation")
	}
	if d.Confirmed() {
		t.Error("Confirmed = true after confirmed deactivation")
	}
}

func TestDebouncerStateMachine(t *testing.T) {
	d := NewDebouncer(3)

	if d.State() != DebounceInactive {
		t.Errorf("State = %s, want inactive", d.State())
	}
	d.Sample(true)
	if d.State() != DebouncePending {
		t.Errorf("State = %s, want pending", d.State())
	}
	d.Sample(true)
	d.Sample(true)
	if d.State() != DebounceActive {
		t.Errorf("State = %s, want active", d.State())
	}
}

func TestSwitchInputConsumeClears(t *testing.T) {
	var in SwitchInput

	if in.consume() {
		t.Error("fresh input should have no pending edge")
	}
	in.Trigger()
	in.Trigger() // double edges collapse into one flag
	if !in.consume() {
		t.Error("edge flag lost")
	}
	if in.consume() {
		t.Error("edge flag should clear on consume")
	}
}
