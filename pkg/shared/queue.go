package shared

import (
	"skullstepper-go/pkg/motion"
)

// DefaultQueueCapacity matches the firmware's motion command queue depth.
const DefaultQueueCapacity = 10

// CommandQueue is the fixed-capacity, multi-producer/single-consumer path
// into the motion task. Sends never block: a full queue drops the new
// command and reports it, which is a deliberate safety property — a stale
// burst of motion commands must not be executed late, and a producer must
// never be able to stall the consumer. FIFO order is preserved for
// everything that was accepted.
type CommandQueue struct {
	ch chan motion.Command
}

// NewCommandQueue creates a queue with the given capacity (<= 0 selects
// DefaultQueueCapacity).
func NewCommandQueue(capacity int) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &CommandQueue{ch: make(chan motion.Command, capacity)}
}

// TrySend enqueues cmd without blocking. Returns false if the queue is
// full; the producer must discard or log, never retry synchronously.
func (q *CommandQueue) TrySend(cmd motion.Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		return false
	}
}

// TryReceive dequeues the oldest command without blocking. The second
// return is false when the queue is empty. Only the motion task calls
// this.
func (q *CommandQueue) TryReceive() (motion.Command, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
		return motion.Command{}, false
	}
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *CommandQueue) Cap() int {
	return cap(q.ch)
}
