//go:build linux

// Package rt pins the motion task goroutine to an OS thread with
// SCHED_FIFO priority and locks the process memory, so a loaded host
// doesn't stretch the tick cadence. Needs CAP_SYS_NICE; callers treat a
// failure as a soft degrade, not a fatal error.
package rt

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// DefaultPriority sits below kernel IRQ threads but above everything a
// desktop workload runs at.
const DefaultPriority = 50

// PinTickThread must be called from the goroutine that runs the tick
// loop. It locks the goroutine to its thread and requests SCHED_FIFO.
func PinTickThread(priority int) error {
	if priority <= 0 {
		priority = DefaultPriority
	}
	runtime.LockOSThread()

	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("rt: sched_setattr(SCHED_FIFO, %d): %w", priority, err)
	}
	return nil
}

// LockMemory pins current and future pages to RAM so the tick path never
// takes a major page fault.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("rt: mlockall: %w", err)
	}
	return nil
}
