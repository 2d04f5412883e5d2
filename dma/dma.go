// Package dma manages the 32-channel DMA controller and its request
// multiplexer. Channels are claimed from the manager one at a time,
// bound to a peripheral request source, and armed with a transfer
// descriptor. A single pair of controller interrupts per channel
// index reports major-loop completion or a bus error; the manager
// demultiplexes with a direct status-bit test and forwards the result
// to the channel's completion cell.
package dma

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/irq"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

// ChannelCount is the size of the channel pool.
const ChannelCount = ral.DMAChannelCount

// Completion codes forwarded to the channel's cell.
const (
	codeComplete uint32 = 0
	codeError    uint32 = 1
)

var (
	// ErrTaken is returned when the requested channel is already claimed.
	ErrTaken = errors.New("dma: channel already taken")
	// ErrTooLong is returned when a buffer exceeds the major loop count.
	ErrTooLong = errors.New("dma: transfer exceeds major loop range")
	// ErrBus wraps the error status captured after a failed transfer.
	ErrBus = errors.New("dma: bus error")
)

// maxIterations is the largest major loop count a TCD can carry with
// channel linking disabled.
const maxIterations = 0x7fff

// Manager owns the DMA controller and multiplexer register blocks.
// There is at most one, since construction consumes both instance
// claims.
type Manager struct {
	regs *ral.DMARegs
	mux  *ral.MuxRegs
	ch   [ChannelCount]Channel
}

// active is read by the interrupt handlers registered in init.
var active atomic.Pointer[Manager]

// New builds the channel pool. Call it once at startup, after gating
// the DMA controller clock on.
func New(d instance.DMA, m instance.Mux) *Manager {
	mgr := &Manager{regs: d.Regs, mux: m.Regs}
	for i := range mgr.ch {
		mgr.ch[i].mgr = mgr
		mgr.ch[i].index = i
	}
	active.Store(mgr)
	for i := 0; i < ChannelCount/2; i++ {
		(irq.DMA0_DMA16 + irq.Line(i)).Enable()
	}
	return mgr
}

// Channel claims channel n. The claim lasts until Release.
func (m *Manager) Channel(n int) (*Channel, error) {
	if n < 0 || n >= ChannelCount {
		return nil, fmt.Errorf("dma: no such channel %d", n)
	}
	c := &m.ch[n]
	if !c.claimed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("dma: channel %d: %w", n, ErrTaken)
	}
	return c, nil
}

// Channel is one claimed DMA channel. A channel serves one driver and
// one transfer at a time.
type Channel struct {
	mgr     *Manager
	index   int
	claimed atomic.Bool
	cell    atomic.Pointer[wake.Cell]
}

// Index returns the channel's position in the pool.
func (c *Channel) Index() int { return c.index }

func (c *Channel) tcd() *ral.TCD { return &c.mgr.regs.TCD[c.index] }

// Bind routes the peripheral request source to this channel.
func (c *Channel) Bind(source uint32) {
	c.mgr.mux.CHCFG[c.index].Set(ral.DMAMUX_CHCFG_ENBL | source&ral.DMAMUX_CHCFG_SOURCE_Msk)
}

// Unbind disconnects the channel from its request source.
func (c *Channel) Unbind() {
	c.mgr.mux.CHCFG[c.index].Set(0)
}

// Arm programs the TCD from the descriptor, attaches the completion
// cell, and enables the hardware request. The buffer behind the
// descriptor must stay valid until completion or Abort.
func (c *Channel) Arm(t Transfer, cell *wake.Cell) error {
	if t.Iterations < 0 || t.Iterations > maxIterations {
		return fmt.Errorf("%w: %d iterations", ErrTooLong, t.Iterations)
	}
	tcd := c.tcd()
	tcd.SADDR.Set(t.SourceAddr)
	tcd.SOFF.Set(uint32(uint16(t.SourceOff)))
	tcd.DADDR.Set(t.DestAddr)
	tcd.DOFF.Set(uint32(uint16(t.DestOff)))
	size := uint32(t.Size)
	tcd.ATTR.Set(size<<ral.DMA_ATTR_SSIZE_Pos | size<<ral.DMA_ATTR_DSIZE_Pos)
	tcd.NBYTES.Set(t.Size.Bytes())
	tcd.CITER.Set(uint32(t.Iterations))
	tcd.BITER.Set(uint32(t.Iterations))
	tcd.CSR.Set(ral.DMA_CSR_INTMAJOR | ral.DMA_CSR_DREQ)
	c.cell.Store(cell)
	c.mgr.regs.ERQ.SetBits(1 << c.index)
	return nil
}

// Start arms a software-triggered transfer, used for memory-to-memory
// copies that have no peripheral request source.
func (c *Channel) Start(t Transfer, cell *wake.Cell) error {
	if err := c.Arm(t, cell); err != nil {
		return err
	}
	c.mgr.regs.ERQ.ClearBits(1 << c.index)
	c.tcd().CSR.SetBits(ral.DMA_CSR_START)
	return nil
}

// Abort halts an in-flight transfer without completing it. The
// request line is disabled and any latched status for this channel is
// discarded, so a fresh Arm starts clean.
func (c *Channel) Abort() {
	c.mgr.regs.ERQ.ClearBits(1 << c.index)
	c.cell.Store(nil)
	tcd := c.tcd()
	tcd.CSR.ClearBits(ral.DMA_CSR_START | ral.DMA_CSR_ACTIVE)
	c.mgr.regs.INT.ClearBits(1 << c.index)
	c.mgr.regs.ERR.ClearBits(1 << c.index)
}

// HardwareSignaling reports whether the peripheral is still asserting
// the channel's request line.
func (c *Channel) HardwareSignaling() bool {
	return c.mgr.regs.HRS.HasBits(1 << c.index)
}

// ErrorStatus returns the controller's error status register, for
// describing a failed transfer.
func (c *Channel) ErrorStatus() uint32 {
	return c.mgr.regs.ES.Get()
}

// Release unbinds the channel and returns it to the pool.
func (c *Channel) Release() {
	c.Abort()
	c.Unbind()
	if !c.claimed.CompareAndSwap(true, false) {
		panic("dma: release of unclaimed channel")
	}
}

// onInterrupt services one channel from the shared controller
// interrupt. The status test is a direct bit probe on the channel
// index, never a scan.
func onInterrupt(m *Manager, idx int) {
	bit := uint32(1) << idx
	if !m.regs.INT.HasBits(bit) {
		return
	}
	m.regs.INT.ClearBits(bit)
	code := codeComplete
	if m.regs.ERR.HasBits(bit) {
		m.regs.ERR.ClearBits(bit)
		code = codeError
	}
	if cell := m.ch[idx].cell.Swap(nil); cell != nil {
		cell.Complete(code)
	}
}

func init() {
	for i := 0; i < ChannelCount/2; i++ {
		low := i
		irq.Register(irq.DMA0_DMA16+irq.Line(i), func() {
			if m := active.Load(); m != nil {
				onInterrupt(m, low)
				onInterrupt(m, low+16)
			}
		})
	}
}
