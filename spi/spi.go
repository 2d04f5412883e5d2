// Package spi is the asynchronous LPSPI master driver. It owns two
// DMA channels, one per FIFO direction, so full-duplex transfers keep
// both request lines busy at once. Construction requires the enabled
// SPI root clock token.
package spi

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

// ErrConfig is returned when a serial clock speed cannot be derived
// from the root clock.
var ErrConfig = errors.New("spi: no usable clock divider")

// Fault is a peripheral-reported error captured at finalize.
type Fault uint32

func (f Fault) TransmitError() bool { return f&ral.SPI_SR_TEF != 0 }
func (f Fault) ReceiveError() bool  { return f&ral.SPI_SR_REF != 0 }
func (f Fault) DataMatch() bool     { return f&ral.SPI_SR_DMF != 0 }

func (f Fault) Error() string {
	var names []string
	if f.TransmitError() {
		names = append(names, "transmit underrun")
	}
	if f.ReceiveError() {
		names = append(names, "receive overflow")
	}
	if f.DataMatch() {
		names = append(names, "data match")
	}
	return "spi: " + strings.Join(names, "+") + " fault"
}

// DMA request signals per instance, LPSPI1 through LPSPI4.
var (
	rxSignals = [4]uint32{13, 77, 15, 79}
	txSignals = [4]uint32{14, 78, 16, 80}
)

const defaultClockSpeed = 8 * physic.MegaHertz

// Pins is the full set of bound master pins for one instance.
type Pins struct {
	SDO  iomuxc.SPISDO
	SDI  iomuxc.SPISDI
	SCK  iomuxc.SPISCK
	PCS0 iomuxc.SPIPCS0
}

// SPI drives one LPSPI instance in master mode. A driver permits one
// outstanding operation at a time.
type SPI struct {
	regs   *ral.SPIRegs
	inst   int
	tx, rx *dma.Channel
	root   physic.Frequency
	txCell wake.Cell
	rxCell wake.Cell
	busy   atomic.Bool
}

// New builds the driver from its claimed instance, bound pins, a
// (tx, rx) DMA channel pair, and the enabled root clock. The serial
// clock starts at 8MHz.
func New(s instance.SPI, pins Pins, tx, rx *dma.Channel, clk ccm.SPIClock) *SPI {
	for _, inst := range [...]int{pins.SDO.Instance(), pins.SDI.Instance(), pins.SCK.Instance(), pins.PCS0.Instance()} {
		if inst != s.Instance() {
			panic(fmt.Sprintf("spi%d: pads bound to another instance", s.Instance()))
		}
	}
	d := &SPI{regs: s.Regs, inst: s.Instance(), tx: tx, rx: rx, root: clk.Frequency()}
	d.regs.CR.Set(ral.SPI_CR_RST)
	d.regs.CR.Set(0)
	d.SetClockSpeed(defaultClockSpeed)
	d.regs.CFGR1.Set(ral.SPI_CFGR1_MASTER)
	d.regs.CR.Set(ral.SPI_CR_MEN)
	return d
}

func (s *SPI) String() string { return fmt.Sprintf("SPI%d", s.inst) }

// SetClockSpeed picks the divider closest to the requested serial
// clock without exceeding it. The master is held off while the
// divider changes.
func (s *SPI) SetClockSpeed(speed physic.Frequency) error {
	if speed <= 0 || speed > s.root {
		return fmt.Errorf("%w: %v from root %v", ErrConfig, speed, s.root)
	}
	base := uint32(s.root / physic.Hertz)
	hz := uint32(speed / physic.Hertz)
	div := base / hz
	if base/div > hz {
		div++
	}
	if div >= 2 {
		div -= 2
	} else {
		div = 0
	}
	if div > 255 {
		div = 255
	}
	s.withMasterDisabled(func() {
		s.regs.CCR.ReplaceBits(div, ral.SPI_CCR_SCKDIV, ral.SPI_CCR_SCKDIVPos)
	})
	return nil
}

func (s *SPI) withMasterDisabled(act func()) {
	men := s.regs.CR.Get() & ral.SPI_CR_MEN
	s.regs.CR.ClearBits(ral.SPI_CR_MEN)
	act()
	s.regs.CR.SetBits(men)
}

// Read receives frames into buf, clocking out idle frames.
func (s *SPI) Read(buf []byte) *Op { return read(s, buf) }

// Read16 receives 16-bit frames into buf.
func (s *SPI) Read16(buf []uint16) *Op { return read(s, buf) }

// Write clocks out the frames in buf, discarding received frames.
func (s *SPI) Write(buf []byte) *Op { return write(s, buf) }

// Write16 clocks out 16-bit frames from buf.
func (s *SPI) Write16(buf []uint16) *Op { return write(s, buf) }

// Transfer runs a full-duplex exchange: every frame clocked out of
// buf is replaced in place by the frame received with it. The receive
// completion finishes the operation.
func (s *SPI) Transfer(buf []byte) *Op { return transfer(s, buf) }

// Transfer16 runs a full-duplex exchange of 16-bit frames.
func (s *SPI) Transfer16(buf []uint16) *Op { return transfer(s, buf) }

func read[E dma.Element](s *SPI, buf []E) *Op {
	return s.start(rxHardware[E]{s: s, buf: buf}, &s.rxCell, len(buf))
}

func write[E dma.Element](s *SPI, buf []E) *Op {
	return s.start(txHardware[E]{s: s, buf: buf}, &s.txCell, len(buf))
}

func transfer[E dma.Element](s *SPI, buf []E) *Op {
	return s.start(duplexHardware[E]{s: s, buf: buf}, &s.rxCell, len(buf))
}

func (s *SPI) start(hw wake.Hardware, cell *wake.Cell, n int) *Op {
	if n == 0 {
		return &Op{zero: true}
	}
	if !s.busy.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("spi%d: operation already in flight", s.inst))
	}
	return &Op{s: s, op: wake.Start(cell, hw), n: n}
}

// Op is one in-flight SPI operation.
type Op struct {
	s    *SPI
	op   wake.Op
	n    int
	zero bool
}

// Poll advances the operation, reporting completion and any captured
// fault.
func (o *Op) Poll(w wake.Waker) (done bool, err error) {
	if o.zero {
		return true, nil
	}
	done, err = o.op.Poll(w)
	if done {
		o.s.busy.Store(false)
	}
	return done, err
}

// N returns the number of frames moved by a completed operation.
func (o *Op) N() int {
	if o.zero {
		return 0
	}
	return o.n
}

// Cancel tears the operation down, aborting its DMA channels before
// returning.
func (o *Op) Cancel() {
	if o.zero {
		return
	}
	o.op.Cancel()
	o.s.busy.Store(false)
}

func (s *SPI) setFrameSize(size dma.Size) {
	s.regs.TCR.ReplaceBits(size.Bytes()*8-1, ral.SPI_TCR_FRAMESZ, 0)
}

func (s *SPI) finalize(code uint32, ch *dma.Channel) error {
	if code != 0 {
		return fmt.Errorf("spi%d: %w (es %#08x)", s.inst, dma.ErrBus, ch.ErrorStatus())
	}
	if sr := s.regs.SR.Get() & ral.SPI_SR_FaultMask; sr != 0 {
		s.regs.SR.ClearBits(ral.SPI_SR_FaultMask)
		return Fault(sr)
	}
	return nil
}

type rxHardware[E dma.Element] struct {
	s   *SPI
	buf []E
}

func (h rxHardware[E]) Arm() error {
	s := h.s
	tr := dma.FromPeripheral(&s.regs.RDR, h.buf)
	s.setFrameSize(tr.Size)
	s.regs.SR.ClearBits(ral.SPI_SR_FaultMask)
	s.regs.FCR.Set(0)
	s.rx.Bind(rxSignals[s.inst-1])
	s.regs.DER.SetBits(ral.SPI_DER_RDDE)
	return s.rx.Arm(tr, &s.rxCell)
}

func (h rxHardware[E]) Finalize(code uint32) error {
	h.s.regs.DER.ClearBits(ral.SPI_DER_RDDE)
	return h.s.finalize(code, h.s.rx)
}

func (h rxHardware[E]) Abandon() {
	s := h.s
	s.regs.DER.ClearBits(ral.SPI_DER_RDDE)
	for s.rx.HardwareSignaling() {
	}
	s.rx.Abort()
}

type txHardware[E dma.Element] struct {
	s   *SPI
	buf []E
}

func (h txHardware[E]) Arm() error {
	s := h.s
	tr := dma.ToPeripheral(h.buf, &s.regs.TDR)
	s.setFrameSize(tr.Size)
	s.regs.SR.ClearBits(ral.SPI_SR_FaultMask)
	s.regs.FCR.Set(0)
	s.tx.Bind(txSignals[s.inst-1])
	s.regs.DER.SetBits(ral.SPI_DER_TDDE)
	return s.tx.Arm(tr, &s.txCell)
}

func (h txHardware[E]) Finalize(code uint32) error {
	h.s.regs.DER.ClearBits(ral.SPI_DER_TDDE)
	return h.s.finalize(code, h.s.tx)
}

func (h txHardware[E]) Abandon() {
	s := h.s
	s.regs.DER.ClearBits(ral.SPI_DER_TDDE)
	for s.tx.HardwareSignaling() {
	}
	s.tx.Abort()
}

// duplexHardware arms both directions over the same buffer. Each
// frame leaves the buffer before the received frame lands in its
// place, because every receive request follows the transmit that
// clocked it.
type duplexHardware[E dma.Element] struct {
	s   *SPI
	buf []E
}

func (h duplexHardware[E]) Arm() error {
	s := h.s
	rxTr := dma.FromPeripheral(&s.regs.RDR, h.buf)
	txTr := dma.ToPeripheral(h.buf, &s.regs.TDR)
	s.setFrameSize(rxTr.Size)
	s.regs.SR.ClearBits(ral.SPI_SR_FaultMask)
	s.regs.FCR.Set(0)
	s.rx.Bind(rxSignals[s.inst-1])
	s.tx.Bind(txSignals[s.inst-1])
	// The transmit side completes without waking the task; the
	// receive completion gates the operation.
	s.txCell.Arm(func() {})
	s.regs.DER.SetBits(ral.SPI_DER_RDDE | ral.SPI_DER_TDDE)
	if err := s.rx.Arm(rxTr, &s.rxCell); err != nil {
		return err
	}
	if err := s.tx.Arm(txTr, &s.txCell); err != nil {
		s.rx.Abort()
		return err
	}
	return nil
}

func (h duplexHardware[E]) Finalize(code uint32) error {
	s := h.s
	s.regs.DER.ClearBits(ral.SPI_DER_RDDE | ral.SPI_DER_TDDE)
	txCode, ok := s.txCell.Finish()
	if !ok {
		s.txCell.Reset()
	}
	if err := s.finalize(txCode, s.tx); err != nil {
		return err
	}
	return s.finalize(code, s.rx)
}

func (h duplexHardware[E]) Abandon() {
	s := h.s
	s.regs.DER.ClearBits(ral.SPI_DER_RDDE | ral.SPI_DER_TDDE)
	for s.rx.HardwareSignaling() || s.tx.HardwareSignaling() {
	}
	s.rx.Abort()
	s.tx.Abort()
	s.txCell.Reset()
}
