package wake

// Hardware is the driver-side half of an operation. Arm programs the
// peripheral so an interrupt will fire on completion. Finalize runs
// after the interrupt, disarms the hardware, and turns the cell's
// result code into a typed error. Abandon tears down an in-flight
// operation: it must disable the interrupt source and abort any bound
// DMA channel before returning.
type Hardware interface {
	Arm() error
	Finalize(code uint32) error
	Abandon()
}

// Op states.
const (
	opIdle uint8 = iota
	opInFlight
	opDone
	opCancelled
)

// Op drives one asynchronous call. The first Poll arms the hardware
// and suspends the caller. The interrupt completes the Cell and wakes
// the task. The next Poll finalizes and returns the result exactly
// once. An Op is used from task context only.
type Op struct {
	cell  *Cell
	hw    Hardware
	state uint8
	err   error
}

// Start binds an operation to its cell and hardware.
func Start(cell *Cell, hw Hardware) Op {
	return Op{cell: cell, hw: hw}
}

// Poll advances the operation. It returns true when the operation has
// completed, with err holding any hardware fault captured at
// finalize. While the operation is in flight it returns false and the
// caller suspends until the waker runs.
func (o *Op) Poll(w Waker) (done bool, err error) {
	switch o.state {
	case opIdle:
		o.cell.Arm(w)
		if err := o.hw.Arm(); err != nil {
			o.cell.Reset()
			o.state = opDone
			o.err = err
			return true, err
		}
		o.state = opInFlight
		// The interrupt may have fired during Arm.
		fallthrough
	case opInFlight:
		code, ok := o.cell.Finish()
		if !ok {
			o.cell.SetWaker(w)
			if code, ok = o.cell.Finish(); !ok {
				return false, nil
			}
		}
		o.err = o.hw.Finalize(code)
		o.state = opDone
		return true, o.err
	case opDone:
		return true, o.err
	default:
		return true, o.err
	}
}

// Done reports whether the operation has reached a terminal state.
func (o *Op) Done() bool {
	return o.state == opDone || o.state == opCancelled
}

// Cancel tears down an in-flight operation. It is synchronous: when
// it returns, the interrupt source is disabled, any DMA channel is
// aborted, and the hardware is safe to reuse. Cancelling a completed
// or never-started operation is a no-op.
func (o *Op) Cancel() {
	if o.state != opInFlight {
		return
	}
	o.hw.Abandon()
	o.cell.Reset()
	o.state = opCancelled
}
