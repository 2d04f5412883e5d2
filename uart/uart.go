// Package uart is the asynchronous LPUART serial driver. Reads and
// writes run over a DMA channel bound to the instance's request
// signals; the driver suspends between arming and the channel's
// completion interrupt. Construction requires the enabled UART root
// clock token, so a driver can never come up on an unclocked
// peripheral.
package uart

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/ccm"
	"github.com/imxrt-rs/imxrt-async-hal/dma"
	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/iomuxc"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

// ErrConfig is returned when no usable timings exist for a requested
// baud rate under the current root clock.
var ErrConfig = errors.New("uart: no usable timings")

// Fault is a peripheral-reported data fault, captured from the status
// register when an operation finalizes.
type Fault uint32

func (f Fault) Parity() bool  { return f&ral.UART_STAT_PF != 0 }
func (f Fault) Framing() bool { return f&ral.UART_STAT_FE != 0 }
func (f Fault) Noise() bool   { return f&ral.UART_STAT_NF != 0 }
func (f Fault) Overrun() bool { return f&ral.UART_STAT_OR != 0 }

func (f Fault) Error() string {
	var names []string
	if f.Parity() {
		names = append(names, "parity")
	}
	if f.Framing() {
		names = append(names, "framing")
	}
	if f.Noise() {
		names = append(names, "noise")
	}
	if f.Overrun() {
		names = append(names, "overrun")
	}
	return "uart: " + strings.Join(names, "+") + " fault"
}

// DMA request signals per instance, LPUART1 through LPUART8.
var (
	rxSignals = [8]uint32{3, 67, 5, 69, 7, 71, 9, 73}
	txSignals = [8]uint32{2, 66, 4, 68, 6, 70, 8, 72}
)

// UART drives one LPUART instance. A driver permits one outstanding
// operation at a time.
type UART struct {
	regs  *ral.UARTRegs
	inst  int
	ch    *dma.Channel
	clock physic.Frequency
	cell  wake.Cell
	busy  atomic.Bool
}

// New builds the driver from its claimed instance, bound pads, DMA
// channel, and the enabled root clock. The caller gates the
// instance's clock on beforehand. The returned driver runs at 9600
// baud until SetBaud.
func New(u instance.UART, tx iomuxc.UARTTX, rx iomuxc.UARTRX, ch *dma.Channel, clk ccm.UARTClock) *UART {
	if tx.Instance() != u.Instance() || rx.Instance() != u.Instance() {
		panic(fmt.Sprintf("uart%d: pads bound to another instance", u.Instance()))
	}
	d := &UART{regs: u.Regs, inst: u.Instance(), ch: ch, clock: clk.Frequency()}
	if err := d.SetBaud(9600 * physic.Hertz); err != nil {
		panic(fmt.Sprintf("uart%d: %v", u.Instance(), err))
	}
	d.regs.CTRL.SetBits(ral.UART_CTRL_TE | ral.UART_CTRL_RE)
	return d
}

func (u *UART) String() string { return fmt.Sprintf("UART%d", u.inst) }

// SetBaud reconfigures the serial baud rate. The transmitter and
// receiver are flushed and held off while the divisors change.
func (u *UART) SetBaud(baud physic.Frequency) error {
	osr, sbr, bothEdge, err := timings(u.clock, baud)
	if err != nil {
		return err
	}
	u.whileDisabled(func() {
		u.regs.BAUD.ReplaceBits(uint32(osr-1), ral.UART_BAUD_OSR_Msk, ral.UART_BAUD_OSR_Pos)
		u.regs.BAUD.ReplaceBits(uint32(sbr), ral.UART_BAUD_SBR_Msk, ral.UART_BAUD_SBR_Pos)
		if bothEdge {
			u.regs.BAUD.SetBits(ral.UART_BAUD_BOTHEDGE)
		} else {
			u.regs.BAUD.ClearBits(ral.UART_BAUD_BOTHEDGE)
		}
	})
	return nil
}

func (u *UART) whileDisabled(act func()) {
	u.regs.FIFO.SetBits(ral.UART_FIFO_TXFLUSH | ral.UART_FIFO_RXFLUSH)
	enabled := u.regs.CTRL.Get() & (ral.UART_CTRL_TE | ral.UART_CTRL_RE)
	u.regs.CTRL.ClearBits(ral.UART_CTRL_TE | ral.UART_CTRL_RE)
	act()
	u.regs.CTRL.SetBits(enabled)
}

// timings searches the oversampling ratios for the divisor pair that
// lands closest to the requested baud rate.
//
//	baud = clock / (OSR * SBR)
func timings(clock, baud physic.Frequency) (osr, sbr uint32, bothEdge bool, err error) {
	clockHz := uint32(clock / physic.Hertz)
	baudHz := uint32(baud / physic.Hertz)
	if baudHz == 0 {
		return 0, 0, false, ErrConfig
	}
	base := clockHz / baudHz
	bestErr := ^uint32(0)
	osr, sbr = 16, 1
	for o := uint32(4); o <= 32; o++ {
		s := base / o
		if s < 1 {
			s = 1
		}
		if s > 8191 {
			s = 8191
		}
		effective := clockHz / (o * s)
		delta := effective - baudHz
		if baudHz > effective {
			delta = baudHz - effective
		}
		if delta < bestErr {
			osr, sbr = o, s
			bestErr = delta
		}
	}
	// Sampling on both edges is required below eight samples per bit.
	return osr, sbr, osr < 8, nil
}

// Read arms a DMA receive into buf and returns the pending operation.
// A zero-length buf completes on the first poll without touching the
// hardware.
func (u *UART) Read(buf []byte) *Op {
	return u.start(rxHardware{u: u, buf: buf}, len(buf))
}

// Write arms a DMA transmit of buf and returns the pending operation.
// buf must stay valid and unchanged until the operation completes or
// is cancelled.
func (u *UART) Write(buf []byte) *Op {
	return u.start(txHardware{u: u, buf: buf}, len(buf))
}

func (u *UART) start(hw wake.Hardware, n int) *Op {
	if n == 0 {
		return &Op{zero: true}
	}
	if !u.busy.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("uart%d: operation already in flight", u.inst))
	}
	return &Op{u: u, op: wake.Start(&u.cell, hw), n: n}
}

// Op is one in-flight read or write.
type Op struct {
	u    *UART
	op   wake.Op
	n    int
	zero bool
}

// Poll advances the operation. It reports completion and any captured
// fault. The waker runs from interrupt context when the transfer
// finishes.
func (o *Op) Poll(w wake.Waker) (done bool, err error) {
	if o.zero {
		return true, nil
	}
	done, err = o.op.Poll(w)
	if done {
		o.u.busy.Store(false)
	}
	return done, err
}

// N returns the number of bytes moved by a completed operation.
func (o *Op) N() int {
	if o.zero {
		return 0
	}
	return o.n
}

// Cancel tears the operation down: the DMA request is disabled and
// the channel aborted before Cancel returns.
func (o *Op) Cancel() {
	if o.zero {
		return
	}
	o.op.Cancel()
	o.u.busy.Store(false)
}

type rxHardware struct {
	u   *UART
	buf []byte
}

func (h rxHardware) Arm() error {
	u := h.u
	u.ch.Bind(rxSignals[u.inst-1])
	u.regs.STAT.ClearBits(ral.UART_STAT_ClearAllMask)
	u.regs.BAUD.SetBits(ral.UART_BAUD_RDMAE)
	return u.ch.Arm(dma.FromPeripheral(&u.regs.DATA, h.buf), &u.cell)
}

func (h rxHardware) Finalize(code uint32) error {
	u := h.u
	u.regs.BAUD.ClearBits(ral.UART_BAUD_RDMAE)
	if code != 0 {
		return fmt.Errorf("uart%d: %w (es %#08x)", u.inst, dma.ErrBus, u.ch.ErrorStatus())
	}
	if stat := u.regs.STAT.Get() & ral.UART_STAT_FaultMask; stat != 0 {
		u.regs.STAT.ClearBits(ral.UART_STAT_FaultMask)
		return Fault(stat)
	}
	return nil
}

func (h rxHardware) Abandon() {
	u := h.u
	u.regs.BAUD.ClearBits(ral.UART_BAUD_RDMAE)
	for u.ch.HardwareSignaling() {
	}
	u.ch.Abort()
}

type txHardware struct {
	u   *UART
	buf []byte
}

func (h txHardware) Arm() error {
	u := h.u
	u.ch.Bind(txSignals[u.inst-1])
	u.regs.BAUD.SetBits(ral.UART_BAUD_TDMAE)
	return u.ch.Arm(dma.ToPeripheral(h.buf, &u.regs.DATA), &u.cell)
}

func (h txHardware) Finalize(code uint32) error {
	u := h.u
	u.regs.BAUD.ClearBits(ral.UART_BAUD_TDMAE)
	if code != 0 {
		return fmt.Errorf("uart%d: %w (es %#08x)", u.inst, dma.ErrBus, u.ch.ErrorStatus())
	}
	return nil
}

func (h txHardware) Abandon() {
	u := h.u
	u.regs.BAUD.ClearBits(ral.UART_BAUD_TDMAE)
	for u.ch.HardwareSignaling() {
	}
	u.ch.Abort()
}
