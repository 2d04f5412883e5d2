// Package pit drives the periodic interrupt timer. The PIT runs on
// the periodic clock root and carries four independent channels, each
// a one-shot delay source for the poll engine.
package pit

import (
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/ccm"
	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/irq"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

// A channel counts at most 1<<32 ticks per interrupt. Longer delays
// reload and run again until the full count has elapsed.
const maxSegment = 1 << 32

var timers [4]atomic.Pointer[Timer]

// Timer is one PIT channel. A channel permits one outstanding delay
// at a time.
type Timer struct {
	ch   *ral.PITChannel
	idx  int
	hz   uint64
	cell wake.Cell
	busy atomic.Bool
}

// New consumes the PIT instance claim and returns its four channels.
// The module clock is ungated and every channel is reset, since the
// boot ROM may have left them running.
func New(p instance.PIT, clk ccm.PerClock) [4]*Timer {
	p.Regs.MCR.Set(0)
	hz := uint64(clk.Frequency() / physic.Hertz)
	var ts [4]*Timer
	for i := range ts {
		p.Regs.CH[i].TCTRL.Set(0)
		ts[i] = &Timer{ch: &p.Regs.CH[i], idx: i, hz: hz}
		timers[i].Store(ts[i])
	}
	irq.PIT.Enable()
	return ts
}

// ClockPeriod returns the duration of one timer tick.
func (t *Timer) ClockPeriod() time.Duration {
	return time.Duration(uint64(time.Second) / t.hz)
}

// Delay waits for at least d. Delays longer than one full counter
// period run across several interrupt cycles.
func (t *Timer) Delay(d time.Duration) *Op {
	periodNS := uint64(time.Second) / t.hz
	var ticks uint64
	if d > 0 {
		ticks = uint64(d) / periodNS
	}
	if ticks == 0 {
		return &Op{zero: true}
	}
	if !t.busy.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("pit: channel %d delay already in flight", t.idx))
	}
	o := &Op{t: t, remaining: ticks}
	o.op = wake.Start(&t.cell, delayHardware{t: t, ldval: o.segment()})
	return o
}

// Op is one in-flight delay.
type Op struct {
	t         *Timer
	op        wake.Op
	remaining uint64
	zero      bool
}

// segment carves the next counter period off the remaining tick
// count, returning its load value.
func (o *Op) segment() uint32 {
	seg := o.remaining
	if seg > maxSegment {
		seg = maxSegment
	}
	o.remaining -= seg
	return uint32(seg - 1)
}

// Poll advances the delay, reporting completion.
func (o *Op) Poll(w wake.Waker) (done bool, err error) {
	if o.zero {
		return true, nil
	}
	for {
		done, err = o.op.Poll(w)
		if !done {
			return false, nil
		}
		if err != nil || o.remaining == 0 {
			o.t.busy.Store(false)
			return true, err
		}
		o.op = wake.Start(&o.t.cell, delayHardware{t: o.t, ldval: o.segment()})
	}
}

// Cancel stops the channel, leaving it idle.
func (o *Op) Cancel() {
	if o.zero {
		return
	}
	o.op.Cancel()
	o.t.busy.Store(false)
}

type delayHardware struct {
	t     *Timer
	ldval uint32
}

func (h delayHardware) Arm() error {
	ch := h.t.ch
	ch.LDVAL.Set(h.ldval)
	ch.TFLG.ClearBits(ral.PIT_TFLG_TIF)
	ch.TCTRL.Set(ral.PIT_TCTRL_TIE)
	ch.TCTRL.SetBits(ral.PIT_TCTRL_TEN)
	return nil
}

func (delayHardware) Finalize(uint32) error { return nil }

func (h delayHardware) Abandon() {
	h.t.ch.TCTRL.Set(0)
	h.t.ch.TFLG.ClearBits(ral.PIT_TFLG_TIF)
}

// onInterrupt services the shared PIT interrupt, stopping each
// expired channel and completing its pending delay.
func onInterrupt() {
	for i := range timers {
		t := timers[i].Load()
		if t == nil || !t.ch.TFLG.HasBits(ral.PIT_TFLG_TIF) {
			continue
		}
		t.ch.TFLG.ClearBits(ral.PIT_TFLG_TIF)
		t.ch.TCTRL.Set(0)
		t.cell.Complete(0)
	}
}

func init() {
	irq.Register(irq.PIT, onInterrupt)
}
