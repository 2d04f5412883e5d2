// Package wake is the handoff between a polled operation and the
// interrupt handler that completes it. A Cell carries a completion
// flag, a result code, and the stored waker. The task side arms the
// cell and polls; the interrupt side completes it exactly once and
// invokes the waker so the scheduler re-polls the task. All state
// lives in atomics, since the interrupt side can preempt the task
// side at any instruction and must never block.
package wake

import "sync/atomic"

// Waker asks the scheduler to re-poll the operation it belongs to.
// It must be safe to invoke from interrupt context.
type Waker func()

// Cell states, held in the low half of the state word. A completion
// carries its result code in the high half of the same word, so state
// and code change in one atomic step.
const (
	idle uint64 = iota
	pending
	woken
)

const codeShift = 32

// Cell is the shared completion cell. One interrupt-side writer, one
// task-side reader.
type Cell struct {
	word  atomic.Uint64
	waker atomic.Value
}

// Arm moves the cell from idle to pending and stores the waker. It
// panics if the cell is already in use, which means two operations
// were started on the same driver.
func (c *Cell) Arm(w Waker) {
	c.waker.Store(w)
	if !c.word.CompareAndSwap(idle, pending) {
		panic("wake: cell armed while in use")
	}
}

// SetWaker replaces the stored waker on a later poll of a still
// pending operation.
func (c *Cell) SetWaker(w Waker) {
	c.waker.Store(w)
}

// Complete is called from interrupt context. It marks the cell woken
// with the result code and invokes the stored waker. The code rides
// in the same compare-and-swap that flips the state, so a losing
// Complete changes nothing: a duplicate or spurious interrupt can
// neither double-signal the operation nor overwrite the first
// completion's code.
func (c *Cell) Complete(code uint32) {
	if !c.word.CompareAndSwap(pending, woken|uint64(code)<<codeShift) {
		return
	}
	if w, ok := c.waker.Load().(Waker); ok && w != nil {
		w()
	}
}

// Woken reports whether the interrupt has fired for the current arming.
func (c *Cell) Woken() bool {
	return uint32(c.word.Load()) == uint32(woken)
}

// Finish consumes the completion. It returns the interrupt's result
// code and resets the cell to idle. ok is false if the cell was not
// woken, in which case nothing is consumed.
func (c *Cell) Finish() (code uint32, ok bool) {
	w := c.word.Load()
	if uint32(w) != uint32(woken) {
		return 0, false
	}
	if !c.word.CompareAndSwap(w, idle) {
		return 0, false
	}
	return uint32(w >> codeShift), true
}

// Reset forces the cell back to idle. Callers must have already cut
// off the interrupt source for the current arming.
func (c *Cell) Reset() {
	c.word.Store(idle)
}
