package safety

import "sync/atomic"

// DebounceSamples is the number of consecutive consistent polls required
// before a switch state change is accepted. Samples are spaced by the
// motion task's tick interval.
const DebounceSamples = 3

// SwitchInput is the hardware-facing half of a limit switch. Trigger is
// the entire edge handler: it sets one flag and returns. It is safe to
// call from any goroutine or signal context.
type SwitchInput struct {
	edge atomic.Bool
}

// Trigger records that an edge occurred on the switch pin. It performs no
// reads and makes no decisions.
func (in *SwitchInput) Trigger() {
	in.edge.Store(true)
}

// consume atomically reads and clears the edge flag. Called once per tick
// by the polling side only.
func (in *SwitchInput) consume() bool {
	return in.edge.Swap(false)
}

// DebounceState is the externally visible position of a debouncer in its
// INACTIVE -> PENDING -> ACTIVE machine (and the reverse path).
type DebounceState int

const (
	DebounceInactive DebounceState = iota
	DebouncePending
	DebounceActive
)

func (s DebounceState) String() string {
	switch s {
	case DebounceInactive:
		return "inactive"
	case DebouncePending:
		return "pending"
	default:
		return "active"
	}
}

// Debouncer accepts one raw sample per tick and exposes a confirmed state
// that only changes after DebounceSamples consecutive consistent samples.
// A noise pulse shorter than the sample window never reaches the confirmed
// state.
type Debouncer struct {
	confirmed bool
	samples   int
	required  int
}

// NewDebouncer returns a debouncer requiring n consecutive samples.
// n <= 0 selects DebounceSamples.
func NewDebouncer(n int) *Debouncer {
	if n <= 0 {
		n = DebounceSamples
	}
	return &Debouncer{required: n}
}

// Sample feeds one raw reading. It returns true when the confirmed state
// changed on this sample.
func (d *Debouncer) Sample(raw bool) bool {
	if raw == d.confirmed {
		// Inconsistent run; any pending transition is noise.
		d.samples = 0
		return false
	}
	d.samples++
	if d.samples < d.required {
		return false
	}
	d.confirmed = raw
	d.samples = 0
	return true
}

// Confirmed returns the debounced switch state.
func (d *Debouncer) Confirmed() bool {
	return d.confirmed
}

// Settled reports whether no transition is in flight.
func (d *Debouncer) Settled() bool {
	return d.samples == 0
}

// State maps the internal counters onto the three-position machine.
func (d *Debouncer) State() DebounceState {
	switch {
	case d.samples > 0:
		return DebouncePending
	case d.confirmed:
		return DebounceActive
	default:
		return DebounceInactive
	}
}
