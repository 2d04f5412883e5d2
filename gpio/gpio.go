// Package gpio drives the GPIO ports: outputs with atomic set, clear,
// and toggle, and inputs whose level and edge transitions complete
// pending operations from the port's combined interrupt. Edge and
// level selection follows the periph.io vocabulary.
package gpio

import (
	"fmt"
	"sync/atomic"

	pgpio "periph.io/x/conn/v3/gpio"

	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/iomuxc"
	"github.com/imxrt-rs/imxrt-async-hal/irq"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

var ports [4]atomic.Pointer[Port]

// Port owns one GPIO port register block and fans its combined
// interrupt out to the lines waiting on it.
type Port struct {
	regs  *ral.GPIORegs
	n     int
	cells [32]atomic.Pointer[wake.Cell]
}

// NewPort consumes the port's instance claim and hooks its combined
// interrupt.
func NewPort(g instance.GPIO) *Port {
	p := &Port{regs: g.Regs, n: g.Port()}
	ports[p.n-1].Store(p)
	(irq.GPIO1Combined + irq.Line(p.n-1)).Enable()
	return p
}

func (p *Port) String() string { return fmt.Sprintf("GPIO%d", p.n) }

// Output binds a pad to the port as an output line.
func (p *Port) Output(pin iomuxc.GPIOPin) *Output {
	if pin.Port() != p.n {
		panic(fmt.Sprintf("gpio%d: pad bound to port %d", p.n, pin.Port()))
	}
	p.regs.GDIR.SetBits(1 << pin.Line())
	return &Output{port: p, mask: 1 << pin.Line()}
}

// Input binds a pad to the port as an input line.
func (p *Port) Input(pin iomuxc.GPIOPin) *Input {
	if pin.Port() != p.n {
		panic(fmt.Sprintf("gpio%d: pad bound to port %d", p.n, pin.Port()))
	}
	p.regs.GDIR.ClearBits(1 << pin.Line())
	return &Input{port: p, line: pin.Line(), mask: 1 << pin.Line()}
}

// Output is one output line.
type Output struct {
	port *Port
	mask uint32
}

// Set drives the line high.
func (o *Output) Set() { o.port.regs.DR.SetBits(o.mask) }

// Clear drives the line low.
func (o *Output) Clear() { o.port.regs.DR.ClearBits(o.mask) }

// Toggle inverts the line.
func (o *Output) Toggle() { o.port.regs.DR.XorBits(o.mask) }

// IsSet reports whether the line is driven high.
func (o *Output) IsSet() bool { return o.port.regs.DR.HasBits(o.mask) }

// Input is one input line. A line permits one outstanding wait at a
// time.
type Input struct {
	port *Port
	line int
	mask uint32
	cell wake.Cell
	busy atomic.Bool
}

// Read returns the sampled level of the line.
func (in *Input) Read() pgpio.Level {
	return pgpio.Level(in.port.regs.PSR.HasBits(in.mask))
}

// WaitFor suspends until the line sees the given edge.
func (in *Input) WaitFor(edge pgpio.Edge) *Op {
	var icr uint32
	both := false
	switch edge {
	case pgpio.RisingEdge:
		icr = ral.GPIO_ICR_Rising
	case pgpio.FallingEdge:
		icr = ral.GPIO_ICR_Falling
	case pgpio.BothEdges:
		both = true
	default:
		panic(fmt.Sprintf("gpio: WaitFor(%v)", edge))
	}
	return in.start(icr, both, false, false)
}

// WaitForLevel suspends until the line sits at the given level.
func (in *Input) WaitForLevel(l pgpio.Level) *Op {
	icr := uint32(ral.GPIO_ICR_Low)
	if l == pgpio.High {
		icr = ral.GPIO_ICR_High
	}
	return in.start(icr, false, true, bool(l))
}

func (in *Input) start(icr uint32, both, level, high bool) *Op {
	if !in.busy.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("gpio%d: line %d wait already in flight", in.port.n, in.line))
	}
	// A level wait that is already satisfied has no interrupt to wait
	// for.
	if level && bool(in.Read()) == high {
		in.busy.Store(false)
		return &Op{zero: true}
	}
	return &Op{in: in, op: wake.Start(&in.cell, waitHardware{in: in, icr: icr, both: both})}
}

// Op is one in-flight wait.
type Op struct {
	in   *Input
	op   wake.Op
	zero bool
}

// Poll advances the wait, reporting completion.
func (o *Op) Poll(w wake.Waker) (done bool, err error) {
	if o.zero {
		return true, nil
	}
	done, err = o.op.Poll(w)
	if done {
		o.in.busy.Store(false)
	}
	return done, err
}

// Cancel tears the wait down, closing the line's interrupt mask
// before returning.
func (o *Op) Cancel() {
	if o.zero {
		return
	}
	o.op.Cancel()
	o.in.busy.Store(false)
}

type waitHardware struct {
	in   *Input
	icr  uint32
	both bool
}

func (h waitHardware) Arm() error {
	in := h.in
	p := in.port
	if h.both {
		p.regs.EDGESEL.SetBits(in.mask)
	} else {
		p.regs.EDGESEL.ClearBits(in.mask)
		pos := uint8(in.line % 16 * 2)
		if in.line < 16 {
			p.regs.ICR1.ReplaceBits(h.icr, 0b11, pos)
		} else {
			p.regs.ICR2.ReplaceBits(h.icr, 0b11, pos)
		}
	}
	p.regs.ISR.ClearBits(in.mask)
	p.cells[in.line].Store(&in.cell)
	p.regs.IMR.SetBits(in.mask)
	return nil
}

func (waitHardware) Finalize(uint32) error { return nil }

func (h waitHardware) Abandon() {
	in := h.in
	p := in.port
	p.regs.IMR.ClearBits(in.mask)
	p.cells[in.line].Store(nil)
	p.regs.ISR.ClearBits(in.mask)
}

// onInterrupt services a port's combined interrupt: latched lines are
// cleared, masked off, and their waiting cells completed.
func onInterrupt(n int) {
	p := ports[n].Load()
	if p == nil {
		return
	}
	isr := p.regs.ISR.Get() & p.regs.IMR.Get()
	if isr == 0 {
		return
	}
	p.regs.ISR.ClearBits(isr)
	p.regs.IMR.ClearBits(isr)
	for line := 0; line < 32; line++ {
		if isr&(1<<line) == 0 {
			continue
		}
		if cell := p.cells[line].Swap(nil); cell != nil {
			cell.Complete(0)
		}
	}
}

func init() {
	for i := 0; i < 4; i++ {
		n := i
		irq.Register(irq.GPIO1Combined+irq.Line(i), func() { onInterrupt(n) })
	}
}
