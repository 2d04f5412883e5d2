// Package ccm controls the clock tree feeding the peripherals. The
// Handle serializes every clock gate mutation, and each root clock
// starts disabled. Enabling a root consumes the Disabled token and
// returns an enabled token carrying the root's frequency, which the
// drivers require at construction time.
package ccm

import (
	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
)

// Oscillator is the crystal oscillator frequency.
const Oscillator = 24 * physic.MegaHertz

const (
	perClockDivider = 24
	spiClockDivider = 5
	i2cClockDivider = 3

	pll2 = 528 * physic.MegaHertz
)

// Activity is a clock gate setting, two bits per gate.
type Activity uint32

const (
	// Off gates the clock in all modes.
	Off Activity = 0b00
	// OnlyRun keeps the clock on in run mode only.
	OnlyRun Activity = 0b01
	// On keeps the clock on in all modes except stop.
	On Activity = 0b11
)

// Handle is the unique capability for mutating clock gates. All gate
// writes funnel through it, so no two call sites race on a CCGR
// register.
type Handle struct {
	regs *ral.CCMRegs
}

// gate identifies one 2-bit field in a CCGR register.
type gate struct {
	ccgr  int
	field int
}

func (h *Handle) setGate(g gate, a Activity) {
	pos := uint8(g.field * 2)
	h.regs.CCGR[g.ccgr].ReplaceBits(uint32(a), 0b11, pos)
}

// GateDMA sets the clock gate for the DMA controller.
func (h *Handle) GateDMA(a Activity) {
	h.setGate(gate{ccgr: 5, field: 3}, a)
}

// CCM bundles the Handle with every disabled root clock.
type CCM struct {
	Handle   Handle
	PerClock Disabled[PerClock]
	UART     Disabled[UARTClock]
	SPI      Disabled[SPIClock]
	I2C      Disabled[I2CClock]
}

// New consumes the CCM instance claim and returns the handle plus all
// root clocks in their disabled state.
func New(h instance.CCM) *CCM {
	return &CCM{
		Handle:   Handle{regs: h.Regs},
		PerClock: Disabled[PerClock]{clock: PerClock{}},
		UART:     Disabled[UARTClock]{clock: UARTClock{}},
		SPI:      Disabled[SPIClock]{clock: SPIClock{}},
		I2C:      Disabled[I2CClock]{clock: I2CClock{}},
	}
}

type rootClock interface {
	enable(h *Handle)
}

// Disabled wraps a root clock that has not been switched on yet.
type Disabled[C rootClock] struct {
	clock C
}

// Enable switches the root on and returns the enabled clock token.
func (d Disabled[C]) Enable(h *Handle) C {
	d.clock.enable(h)
	return d.clock
}

// PerClock is the periodic clock root, the input for GPT and PIT.
// It divides the oscillator down to 1MHz.
type PerClock struct{}

func (PerClock) enable(h *Handle) {
	h.regs.CSCMR1.ReplaceBits(perClockDivider-1, ral.CCM_CSCMR1_PERCLK_PODF_Msk, ral.CCM_CSCMR1_PERCLK_PODF_Pos)
	h.regs.CSCMR1.SetBits(ral.CCM_CSCMR1_PERCLK_CLK_SEL)
}

// Frequency returns the periodic clock frequency.
func (PerClock) Frequency() physic.Frequency { return Oscillator / perClockDivider }

var gptGates = [...]gate{{ccgr: 1, field: 10}, {ccgr: 0, field: 12}}

// GateGPT sets the clock gate for GPT instance n.
func (PerClock) GateGPT(h *Handle, gpt instance.GPT, a Activity) {
	h.setGate(gptGates[gpt.Instance()-1], a)
}

// GatePIT sets the clock gate for the PIT.
func (PerClock) GatePIT(h *Handle, _ instance.PIT, a Activity) {
	h.setGate(gate{ccgr: 1, field: 6}, a)
}

// UARTClock is the LPUART root clock, fed straight from the oscillator.
type UARTClock struct{}

func (UARTClock) enable(h *Handle) {
	h.regs.CSCDR1.ReplaceBits(0, ral.CCM_CSCDR1_UART_CLK_PODF_Msk, ral.CCM_CSCDR1_UART_CLK_PODF_Pos)
	h.regs.CSCDR1.SetBits(ral.CCM_CSCDR1_UART_CLK_SEL)
}

// Frequency returns the UART root clock frequency.
func (UARTClock) Frequency() physic.Frequency { return Oscillator }

var uartGates = [...]gate{
	{ccgr: 5, field: 12},
	{ccgr: 0, field: 14},
	{ccgr: 0, field: 6},
	{ccgr: 1, field: 12},
	{ccgr: 3, field: 1},
	{ccgr: 3, field: 3},
	{ccgr: 5, field: 13},
	{ccgr: 6, field: 7},
}

// GateUART sets the clock gate for the UART instance.
func (UARTClock) GateUART(h *Handle, u instance.UART, a Activity) {
	h.setGate(uartGates[u.Instance()-1], a)
}

// SPIClock is the LPSPI root clock, PLL2 divided by 5.
type SPIClock struct{}

func (SPIClock) enable(h *Handle) {
	h.regs.CBCMR.ReplaceBits(spiClockDivider-1, 0b111, ral.CCM_CBCMR_LPSPI_PODF_Pos)
	h.regs.CBCMR.ReplaceBits(0b10, 0b11, ral.CCM_CBCMR_LPSPI_CLK_SEL_Pos)
}

// Frequency returns the SPI root clock frequency.
func (SPIClock) Frequency() physic.Frequency { return pll2 / spiClockDivider }

// GateSPI sets the clock gate for the SPI instance. All four LPSPI
// gates live in CCGR1, fields 0 through 3.
func (SPIClock) GateSPI(h *Handle, s instance.SPI, a Activity) {
	h.setGate(gate{ccgr: 1, field: s.Instance() - 1}, a)
}

// I2CClock is the LPI2C root clock, the oscillator divided by 3.
type I2CClock struct{}

func (I2CClock) enable(h *Handle) {
	h.regs.CSCDR2.ReplaceBits(i2cClockDivider-1, 0x3f, ral.CCM_CSCDR2_LPI2C_CLK_PODF_Pos)
	h.regs.CSCDR2.ClearBits(ral.CCM_CSCDR2_LPI2C_CLK_SEL)
}

// Frequency returns the I2C root clock frequency.
func (I2CClock) Frequency() physic.Frequency { return Oscillator / i2cClockDivider }

var i2cGates = [...]gate{
	{ccgr: 2, field: 3},
	{ccgr: 2, field: 4},
	{ccgr: 2, field: 5},
	{ccgr: 6, field: 12},
}

// GateI2C sets the clock gate for the I2C instance.
func (I2CClock) GateI2C(h *Handle, i instance.I2C, a Activity) {
	h.setGate(i2cGates[i.Instance()-1], a)
}
