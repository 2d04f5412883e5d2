// Package instance enforces exclusive ownership of peripheral
// instances. Every driver is constructed from a handle taken here;
// taking an instance a second time fails until the first handle is
// released. The claim table is a fixed arena of atomic flags, so
// taking never blocks.
package instance

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/imxrt-rs/imxrt-async-hal/ral"
)

// ErrTaken is returned when the requested instance is already owned.
var ErrTaken = errors.New("instance already taken")

type kind uint8

const (
	kindUART kind = iota
	kindSPI
	kindI2C
	kindGPIO
	kindGPT
	kindPIT
	kindDMA
	kindMux
	kindCCM
	kindPads

	numKinds
)

const maxPerKind = 8

var claims [numKinds][maxPerKind]atomic.Bool

func take(k kind, n int) error {
	if !claims[k][n].CompareAndSwap(false, true) {
		return ErrTaken
	}
	return nil
}

func release(k kind, n int) {
	if !claims[k][n].CompareAndSwap(true, false) {
		panic("instance: release of unclaimed instance")
	}
}

// UART is an exclusive claim on one LPUART instance.
type UART struct {
	n    int
	Regs *ral.UARTRegs
}

// TakeUART claims LPUART instance n, in [1,8].
func TakeUART(n int) (UART, error) {
	if n < 1 || n > 8 {
		return UART{}, fmt.Errorf("no such UART instance %d", n)
	}
	if err := take(kindUART, n-1); err != nil {
		return UART{}, err
	}
	return UART{n: n, Regs: ral.UARTAt(n)}, nil
}

func (u UART) Instance() int { return u.n }

func (u UART) Release() { release(kindUART, u.n-1) }

// SPI is an exclusive claim on one LPSPI instance.
type SPI struct {
	n    int
	Regs *ral.SPIRegs
}

// TakeSPI claims LPSPI instance n, in [1,4].
func TakeSPI(n int) (SPI, error) {
	if n < 1 || n > 4 {
		return SPI{}, fmt.Errorf("no such SPI instance %d", n)
	}
	if err := take(kindSPI, n-1); err != nil {
		return SPI{}, err
	}
	return SPI{n: n, Regs: ral.SPIAt(n)}, nil
}

func (s SPI) Instance() int { return s.n }

func (s SPI) Release() { release(kindSPI, s.n-1) }

// I2C is an exclusive claim on one LPI2C instance.
type I2C struct {
	n    int
	Regs *ral.I2CRegs
}

// TakeI2C claims LPI2C instance n, in [1,4].
func TakeI2C(n int) (I2C, error) {
	if n < 1 || n > 4 {
		return I2C{}, fmt.Errorf("no such I2C instance %d", n)
	}
	if err := take(kindI2C, n-1); err != nil {
		return I2C{}, err
	}
	return I2C{n: n, Regs: ral.I2CAt(n)}, nil
}

func (i I2C) Instance() int { return i.n }

func (i I2C) Release() { release(kindI2C, i.n-1) }

// GPIO is an exclusive claim on one GPIO port.
type GPIO struct {
	n    int
	Regs *ral.GPIORegs
}

// TakeGPIO claims GPIO port n, in [1,4].
func TakeGPIO(n int) (GPIO, error) {
	if n < 1 || n > 4 {
		return GPIO{}, fmt.Errorf("no such GPIO port %d", n)
	}
	if err := take(kindGPIO, n-1); err != nil {
		return GPIO{}, err
	}
	return GPIO{n: n, Regs: ral.GPIOAt(n)}, nil
}

func (g GPIO) Port() int { return g.n }

func (g GPIO) Release() { release(kindGPIO, g.n-1) }

// GPT is an exclusive claim on one general purpose timer.
type GPT struct {
	n    int
	Regs *ral.GPTRegs
}

// TakeGPT claims GPT instance n, in [1,2].
func TakeGPT(n int) (GPT, error) {
	if n < 1 || n > 2 {
		return GPT{}, fmt.Errorf("no such GPT instance %d", n)
	}
	if err := take(kindGPT, n-1); err != nil {
		return GPT{}, err
	}
	return GPT{n: n, Regs: ral.GPTAt(n)}, nil
}

func (g GPT) Instance() int { return g.n }

func (g GPT) Release() { release(kindGPT, g.n-1) }

// PIT is an exclusive claim on the periodic interrupt timer.
type PIT struct {
	Regs *ral.PITRegs
}

func TakePIT() (PIT, error) {
	if err := take(kindPIT, 0); err != nil {
		return PIT{}, err
	}
	return PIT{Regs: ral.PIT}, nil
}

func (p PIT) Release() { release(kindPIT, 0) }

// DMA is an exclusive claim on the DMA controller.
type DMA struct {
	Regs *ral.DMARegs
}

func TakeDMA() (DMA, error) {
	if err := take(kindDMA, 0); err != nil {
		return DMA{}, err
	}
	return DMA{Regs: ral.DMA0}, nil
}

func (d DMA) Release() { release(kindDMA, 0) }

// Mux is an exclusive claim on the DMA request multiplexer.
type Mux struct {
	Regs *ral.MuxRegs
}

func TakeMux() (Mux, error) {
	if err := take(kindMux, 0); err != nil {
		return Mux{}, err
	}
	return Mux{Regs: ral.DMAMUX}, nil
}

func (m Mux) Release() { release(kindMux, 0) }

// CCM is an exclusive claim on the clock control module.
type CCM struct {
	Regs *ral.CCMRegs
}

func TakeCCM() (CCM, error) {
	if err := take(kindCCM, 0); err != nil {
		return CCM{}, err
	}
	return CCM{Regs: ral.CCM}, nil
}

func (c CCM) Release() { release(kindCCM, 0) }

// Pads is an exclusive claim on the pad mux controller.
type Pads struct {
	Regs *ral.PadRegs
}

func TakePads() (Pads, error) {
	if err := take(kindPads, 0); err != nil {
		return Pads{}, err
	}
	return Pads{Regs: ral.IOMUXC}, nil
}

func (p Pads) Release() { release(kindPads, 0) }
