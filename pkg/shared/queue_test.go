package shared

import (
	"testing"

	"skullstepper-go/pkg/motion"
)

func TestQueueFIFO(t *testing.T) {
	q := NewCommandQueue(4)

	targets := []int64{10, 20, 30}
	for _, target := range targets {
		if !q.TrySend(motion.NewMoveAbsolute(target, motion.Profile{})) {
			t.Fatalf("send of %d failed with capacity available", target)
		}
	}

	for _, want := range targets {
		cmd, ok := q.TryReceive()
		if !ok {
			t.Fatalf("receive failed, want target %d", want)
		}
		if cmd.Target != want {
			t.Errorf("Target = %d, want %d", cmd.Target, want)
		}
	}
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := NewCommandQueue(2)

	if !q.TrySend(motion.NewMoveAbsolute(1, motion.Profile{})) {
		t.Fatal("first send failed")
	}
	if !q.TrySend(motion.NewMoveAbsolute(2, motion.Profile{})) {
		t.Fatal("second send failed")
	}
	if q.TrySend(motion.NewMoveAbsolute(3, motion.Profile{})) {
		t.Fatal("send to a full queue should fail")
	}

	// The queued commands are untouched by the rejected send.
	cmd, _ := q.TryReceive()
	if cmd.Target != 1 {
		t.Errorf("oldest Target = %d, want 1", cmd.Target)
	}
	cmd, _ = q.TryReceive()
	if cmd.Target != 2 {
		t.Errorf("next Target = %d, want 2", cmd.Target)
	}
}

func TestQueueReceiveEmpty(t *testing.T) {
	q := NewCommandQueue(2)

	if _, ok := q.TryReceive(); ok {
		t.Error("receive from empty queue should report false")
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	q := NewCommandQueue(0)
	if q.Cap() != DefaultQueueCapacity {
		t.Errorf("Cap = %d, want %d", q.Cap(), DefaultQueueCapacity)
	}
}

func TestQueueLen(t *testing.T) {
	q := NewCommandQueue(4)
	q.TrySend(motion.NewHome(motion.Profile{}))
	q.TrySend(motion.NewStop(motion.Profile{}))
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}
