// Package gpt drives the general purpose timers. Each GPT instance
// carries three output compare channels over one free-running
// counter, so one instance yields three independent delay timers.
//
// The counter divides its input clock by 5. For tighter resolution
// use the pit package.
package gpt

import (
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/ccm"
	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/irq"
	"github.com/imxrt-rs/imxrt-async-hal/mmio"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

// The crystal oscillator path misbehaves with most divider values.
// 5 works, 3 works, 10 does not. seL4 reports the same.
const divider = 5

// One output compare spans at most a full counter revolution. Longer
// delays re-arm and run again until the full count has elapsed.
const maxSegment = 1 << 32

var timers [2][3]atomic.Pointer[Timer]

// Timer is one output compare channel. A channel permits one
// outstanding delay at a time.
type Timer struct {
	regs *ral.GPTRegs
	n    int
	cmp  int
	hz   uint64
	cell wake.Cell
	busy atomic.Bool
}

// New consumes a GPT instance claim and returns its three output
// compare timers. The counter is switched to the divided crystal
// oscillator, set free-running, and started.
func New(g instance.GPT, clk ccm.PerClock) [3]*Timer {
	regs := g.Regs
	regs.CR.Set(ral.GPT_CR_EN24M | ral.GPT_CR_CLKSRC_Osc<<ral.GPT_CR_CLKSRC_Pos)
	regs.PR.Set((divider - 1) << ral.GPT_PR_PRESCALER24_Pos)
	regs.SR.Set(0)
	regs.IR.Set(0)
	regs.CR.SetBits(ral.GPT_CR_FRR | ral.GPT_CR_WAITEN | ral.GPT_CR_EN)

	hz := uint64(clk.Frequency()/physic.Hertz) / divider
	var ts [3]*Timer
	for i := range ts {
		ts[i] = &Timer{regs: regs, n: g.Instance(), cmp: i + 1, hz: hz}
		timers[g.Instance()-1][i].Store(ts[i])
	}
	if g.Instance() == 1 {
		irq.GPT1.Enable()
	} else {
		irq.GPT2.Enable()
	}
	return ts
}

// ClockPeriod returns the duration of one counter tick.
func (t *Timer) ClockPeriod() time.Duration {
	return time.Duration(uint64(time.Second) / t.hz)
}

func (t *Timer) ocr() *mmio.Register32 {
	switch t.cmp {
	case 1:
		return &t.regs.OCR1
	case 2:
		return &t.regs.OCR2
	default:
		return &t.regs.OCR3
	}
}

func (t *Timer) flag() uint32 { return ral.GPT_SR_OF1 << (t.cmp - 1) }

// Delay waits for at least d. Delays longer than one full counter
// revolution run across several interrupt cycles.
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
		panic(fmt.Sprintf("gpt%d: compare %d delay already in flight", t.n, t.cmp))
	}
	o := &Op{t: t, remaining: ticks}
	o.op = wake.Start(&t.cell, delayHardware{t: t, ticks: o.segment()})
	return o
}

// Op is one in-flight delay.
type Op struct {
	t         *Timer
	op        wake.Op
	remaining uint64
	zero      bool
}

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
		o.op = wake.Start(&o.t.cell, delayHardware{t: o.t, ticks: o.segment()})
	}
}

// Cancel disables the compare interrupt, leaving the channel idle.
func (o *Op) Cancel() {
	if o.zero {
		return
	}
	o.op.Cancel()
	o.t.busy.Store(false)
}

type delayHardware struct {
	t     *Timer
	ticks uint32
}

func (h delayHardware) Arm() error {
	t := h.t
	t.ocr().Set(t.regs.CNT.Get() + h.ticks)
	t.regs.SR.ClearBits(t.flag())
	t.regs.IR.SetBits(uint32(ral.GPT_IR_OF1IE) << (t.cmp - 1))
	return nil
}

func (delayHardware) Finalize(uint32) error { return nil }

func (h delayHardware) Abandon() {
	t := h.t
	t.regs.IR.ClearBits(uint32(ral.GPT_IR_OF1IE) << (t.cmp - 1))
	t.regs.SR.ClearBits(t.flag())
}

// onInterrupt services one instance's interrupt, completing every
// compare channel whose flag has latched.
func onInterrupt(n int) {
	for i := 0; i < 3; i++ {
		t := timers[n][i].Load()
		if t == nil || !t.regs.SR.HasBits(t.flag()) {
			continue
		}
		t.regs.SR.ClearBits(t.flag())
		t.regs.IR.ClearBits(uint32(ral.GPT_IR_OF1IE) << (t.cmp - 1))
		t.cell.Complete(0)
	}
}

func init() {
	irq.Register(irq.GPT1, func() { onInterrupt(0) })
	irq.Register(irq.GPT2, func() { onInterrupt(1) })
}
