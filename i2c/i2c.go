// Package i2c is the asynchronous LPI2C master driver. The data phase
// of every transaction runs over a DMA channel bound to the
// instance's request line; bus faults reported by the controller
// (NACK, lost arbitration, pin-low timeout) arrive over the
// instance's own interrupt and complete the pending operation with a
// typed error.
package i2c

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/ccm"
	"github.com/imxrt-rs/imxrt-async-hal/dma"
	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/iomuxc"
	"github.com/imxrt-rs/imxrt-async-hal/irq"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

var (
	// ErrBusy is returned when the bus or the master is mid-transaction.
	// The caller should yield and retry.
	ErrBusy = errors.New("i2c: bus busy")
	// ErrNACK is a NACK while sending an address or data byte.
	ErrNACK = errors.New("i2c: unexpected NACK")
	// ErrArbitrationLost is a lost bus arbitration.
	ErrArbitrationLost = errors.New("i2c: lost bus arbitration")
	// ErrPinLowTimeout means SCL or SDA stayed low too long.
	ErrPinLowTimeout = errors.New("i2c: pin low timeout")
	// ErrFIFO is a FIFO command sequencing fault.
	ErrFIFO = errors.New("i2c: fifo error")
	// ErrTooMuchData rejects receives beyond one command's range.
	ErrTooMuchData = errors.New("i2c: receive exceeds command range")
	// ErrConfig is returned for an unachievable clock speed.
	ErrConfig = errors.New("i2c: no usable clock configuration")
)

// maxReceive is the longest receive one command word can request.
const maxReceive = 256

// DMA request signals per instance, LPI2C1 through LPI2C4.
var signals = [4]uint32{17, 81, 18, 82}

var active [4]atomic.Pointer[I2C]

// I2C drives one LPI2C instance in master mode. A driver permits one
// outstanding transaction at a time.
type I2C struct {
	regs *ral.I2CRegs
	inst int
	ch   *dma.Channel
	root physic.Frequency
	cell wake.Cell
	busy atomic.Bool
}

// New builds the driver from its claimed instance, bound pads, DMA
// channel, and the enabled root clock. The bus starts at 100kHz.
func New(i instance.I2C, scl iomuxc.I2CSCL, sda iomuxc.I2CSDA, ch *dma.Channel, clk ccm.I2CClock) *I2C {
	if scl.Instance() != i.Instance() || sda.Instance() != i.Instance() {
		panic(fmt.Sprintf("i2c%d: pads bound to another instance", i.Instance()))
	}
	d := &I2C{regs: i.Regs, inst: i.Instance(), ch: ch, root: clk.Frequency()}
	d.regs.MCR.Set(ral.I2C_MCR_RST)
	// Reset is sticky.
	d.regs.MCR.Set(0)
	d.SetClockSpeed(100 * physic.KiloHertz)
	d.regs.MCR.SetBits(ral.I2C_MCR_MEN)
	active[d.inst-1].Store(d)
	(irq.LPI2C1 + irq.Line(d.inst-1)).Enable()
	return d
}

func (d *I2C) String() string { return fmt.Sprintf("I2C%d", d.inst) }

// SetClockSpeed searches the prescaler and high-period combinations
// for the pair that lands closest to the requested bus speed.
//
// With CLKLO = 2*CLKHI and no glitch filters:
//
//	rate = (root / 2^prescale) / (3*CLKHI + 2 + 2/2^prescale)
func (d *I2C) SetClockSpeed(rate physic.Frequency) error {
	baud := uint32(rate / physic.Hertz)
	if baud == 0 {
		return fmt.Errorf("%w: %v", ErrConfig, rate)
	}
	base := uint32(d.root / physic.Hertz)

	bestErr := ^uint32(0)
	var bestPrescale, bestClkhi uint32
	for prescale := uint32(0); prescale < 8; prescale++ {
		divider := uint32(1) << prescale
		for clkhi := uint32(1); clkhi < 32; clkhi++ {
			var computed uint32
			if clkhi == 1 {
				computed = (base / divider) / (6 + 2/divider)
			} else {
				computed = (base / divider) / (3*clkhi + 2 + 2/divider)
			}
			delta := computed - baud
			if baud > computed {
				delta = baud - computed
			}
			if delta < bestErr {
				bestErr = delta
				bestPrescale, bestClkhi = prescale, clkhi
			}
		}
	}

	clklo, sethold, datavd := uint32(3), uint32(2), uint32(1)
	if bestClkhi >= 2 {
		clklo, sethold, datavd = bestClkhi*2, bestClkhi, bestClkhi/2
	}
	d.whileDisabled(func() {
		d.regs.MCFGR1.ReplaceBits(bestPrescale, ral.I2C_MCFGR1_PRESCALE_Msk, ral.I2C_MCFGR1_PRESCALE_Pos)
		d.regs.MCCR0.Set(clklo<<ral.I2C_MCCR0_CLKLO_Pos |
			bestClkhi<<ral.I2C_MCCR0_CLKHI_Pos |
			sethold<<ral.I2C_MCCR0_SETHOLD_Pos |
			datavd<<ral.I2C_MCCR0_DATAVD_Pos)
	})
	return nil
}

func (d *I2C) whileDisabled(act func()) {
	enabled := d.regs.MCR.Get() & ral.I2C_MCR_MEN
	d.regs.MCR.ClearBits(ral.I2C_MCR_MEN)
	act()
	d.regs.MCR.SetBits(enabled)
}

// Write sends buf to the device at address and issues a stop.
func (d *I2C) Write(address byte, buf []byte) *Op {
	if len(buf) == 0 {
		return &Op{zero: true}
	}
	return d.start(txPhase{d: d, address: address, buf: buf, stop: true})
}

// Read requests len(buf) bytes from the device at address.
func (d *I2C) Read(address byte, buf []byte) *Op {
	if len(buf) > maxReceive {
		return &Op{immediate: fmt.Errorf("%w: %d bytes", ErrTooMuchData, len(buf))}
	}
	if len(buf) == 0 {
		return &Op{zero: true}
	}
	return d.start(rxPhase{d: d, address: address, buf: buf})
}

// WriteRead sends out to the device at address, then receives into in
// after a repeated start.
func (d *I2C) WriteRead(address byte, out, in []byte) *Op {
	if len(in) > maxReceive {
		return &Op{immediate: fmt.Errorf("%w: %d bytes", ErrTooMuchData, len(in))}
	}
	switch {
	case len(out) == 0:
		return d.Read(address, in)
	case len(in) == 0:
		return d.Write(address, out)
	}
	return d.start(
		txPhase{d: d, address: address, buf: out},
		rxPhase{d: d, address: address, buf: in, repeated: true},
	)
}

func (d *I2C) start(first wake.Hardware, rest ...wake.Hardware) *Op {
	if !d.busy.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("i2c%d: transaction already in flight", d.inst))
	}
	return &Op{d: d, cur: wake.Start(&d.cell, first), rest: rest}
}

// Op is one in-flight bus transaction, possibly spanning a write
// phase and a read phase.
type Op struct {
	d         *I2C
	cur       wake.Op
	rest      []wake.Hardware
	zero      bool
	immediate error
	finished  bool
	err       error
}

// Poll advances the transaction. Each phase arms on its first poll
// and suspends until the DMA completion or a bus fault wakes it.
func (o *Op) Poll(w wake.Waker) (done bool, err error) {
	if o.zero {
		return true, nil
	}
	if o.immediate != nil {
		return true, o.immediate
	}
	if o.finished {
		return true, o.err
	}
	for {
		done, err := o.cur.Poll(w)
		if !done {
			return false, nil
		}
		if err != nil || len(o.rest) == 0 {
			o.finished = true
			o.err = err
			o.d.busy.Store(false)
			return true, err
		}
		o.cur = wake.Start(&o.d.cell, o.rest[0])
		o.rest = o.rest[1:]
	}
}

// Cancel tears the transaction down: the fault interrupts and the DMA
// request are disabled and the channel aborted before Cancel returns.
func (o *Op) Cancel() {
	if o.zero || o.immediate != nil || o.finished {
		return
	}
	o.cur.Cancel()
	o.finished = true
	o.d.busy.Store(false)
}

const errorInterrupts = ral.I2C_MIER_NDIE | ral.I2C_MIER_ALIE | ral.I2C_MIER_PLTIE

// checkBusy fails if either the bus or this master is mid-transfer.
// Either flag alone means busy.
func (d *I2C) checkBusy() error {
	if d.regs.MSR.Get()&(ral.I2C_MSR_MBF|ral.I2C_MSR_BBF) != 0 {
		return ErrBusy
	}
	return nil
}

func (d *I2C) prepare() {
	d.regs.MCR.SetBits(ral.I2C_MCR_RRF | ral.I2C_MCR_RTF)
	d.regs.MSR.ClearBits(ral.I2C_MSR_ClearAllMask)
	d.regs.MIER.SetBits(errorInterrupts)
}

func (d *I2C) teardown(derBits uint32) {
	d.regs.MIER.ClearBits(errorInterrupts)
	d.regs.MDER.ClearBits(derBits)
}

// faultError maps latched status bits to the bus error taxonomy,
// most specific condition first.
func faultError(msr uint32) error {
	switch {
	case msr&ral.I2C_MSR_PLTF != 0:
		return ErrPinLowTimeout
	case msr&ral.I2C_MSR_ALF != 0:
		return ErrArbitrationLost
	case msr&ral.I2C_MSR_NDF != 0:
		return ErrNACK
	case msr&ral.I2C_MSR_FEF != 0:
		return ErrFIFO
	default:
		return nil
	}
}

func (d *I2C) finalize(code uint32, derBits uint32) error {
	d.teardown(derBits)
	var err error
	switch {
	case code == 1:
		err = fmt.Errorf("i2c%d: %w (es %#08x)", d.inst, dma.ErrBus, d.ch.ErrorStatus())
	case code > 1:
		d.regs.MSR.ClearBits(ral.I2C_MSR_FaultMask)
		err = faultError(code)
	default:
		if msr := d.regs.MSR.Get() & ral.I2C_MSR_FaultMask; msr != 0 {
			d.regs.MSR.ClearBits(ral.I2C_MSR_FaultMask)
			err = faultError(msr)
		}
	}
	if err != nil {
		// A failed transaction leaves its data transfer unfinished.
		for d.ch.HardwareSignaling() {
		}
		d.ch.Abort()
	}
	return err
}

// txPhase sends a start, the address, and the data bytes. stop ends
// the transaction; a phase without stop leaves the bus held for a
// repeated start.
type txPhase struct {
	d       *I2C
	address byte
	buf     []byte
	stop    bool
}

func (p txPhase) Arm() error {
	d := p.d
	if err := d.checkBusy(); err != nil {
		return err
	}
	d.prepare()
	d.regs.MTDR.Set(ral.I2C_MTDR_CMD_Start | uint32(p.address)<<1)
	d.ch.Bind(signals[d.inst-1])
	d.regs.MDER.SetBits(ral.I2C_MDER_TDDE)
	return d.ch.Arm(dma.ToPeripheral(p.buf, &d.regs.MTDR), &d.cell)
}

func (p txPhase) Finalize(code uint32) error {
	err := p.d.finalize(code, ral.I2C_MDER_TDDE)
	if err == nil && p.stop {
		p.d.regs.MTDR.Set(ral.I2C_MTDR_CMD_Stop)
	}
	return err
}

func (p txPhase) Abandon() {
	d := p.d
	d.teardown(ral.I2C_MDER_TDDE)
	for d.ch.HardwareSignaling() {
	}
	d.ch.Abort()
}

// rxPhase issues the receive command and drains the data bytes. A
// repeated phase reuses the bus already held by a preceding write.
type rxPhase struct {
	d        *I2C
	address  byte
	buf      []byte
	repeated bool
}

func (p rxPhase) Arm() error {
	d := p.d
	if !p.repeated {
		if err := d.checkBusy(); err != nil {
			return err
		}
		d.prepare()
	}
	d.regs.MTDR.Set(ral.I2C_MTDR_CMD_Start | uint32(p.address)<<1 | 1)
	d.regs.MTDR.Set(ral.I2C_MTDR_CMD_Receive | uint32(len(p.buf)-1))
	d.ch.Bind(signals[d.inst-1])
	d.regs.MDER.SetBits(ral.I2C_MDER_RDDE)
	return d.ch.Arm(dma.FromPeripheral(&d.regs.MRDR, p.buf), &d.cell)
}

func (p rxPhase) Finalize(code uint32) error {
	err := p.d.finalize(code, ral.I2C_MDER_RDDE)
	if err == nil {
		p.d.regs.MTDR.Set(ral.I2C_MTDR_CMD_Stop)
	}
	return err
}

func (p rxPhase) Abandon() {
	d := p.d
	d.teardown(ral.I2C_MDER_RDDE)
	for d.ch.HardwareSignaling() {
	}
	d.ch.Abort()
}

// onInterrupt services one instance's fault interrupt. Data movement
// completes over DMA; only error conditions arrive here.
func onInterrupt(n int) {
	d := active[n].Load()
	if d == nil {
		return
	}
	msr := d.regs.MSR.Get() & ral.I2C_MSR_FaultMask
	if msr == 0 {
		return
	}
	d.regs.MIER.ClearBits(errorInterrupts)
	d.cell.Complete(msr)
}

func init() {
	for i := 0; i < 4; i++ {
		n := i
		irq.Register(irq.LPI2C1+irq.Line(i), func() { onInterrupt(n) })
	}
}
