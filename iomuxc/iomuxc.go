// Package iomuxc routes pads to peripheral functions. Each pad can be
// taken once from the controller, and bound to exactly one role. A pad
// handle that is bound twice indicates a wiring mistake in the program
// and panics at construction time.
package iomuxc

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
)

// ErrTaken is returned when the requested pad has already been handed out.
var ErrTaken = errors.New("pad already taken")

// Pad alternate function selectors written to MuxCtl.
const (
	altI2C  = 1
	altUART = 2
	altSPI  = 3
	altGPIO = 5
)

// Controller hands out pads. It consumes the process-wide pad mux claim,
// so there is at most one Controller.
type Controller struct {
	regs    *ral.PadRegs
	claimed [ral.PadBankCount][ral.PadsPerBank]atomic.Bool
}

func New(h instance.Pads) *Controller {
	return &Controller{regs: h.Regs}
}

// Pad takes pad (bank, index). Each pad can be taken once.
func (c *Controller) Pad(bank, index int) (*Pad, error) {
	if bank < 0 || bank >= ral.PadBankCount || index < 0 || index >= ral.PadsPerBank {
		return nil, fmt.Errorf("no such pad B%d_%02d", bank, index)
	}
	if !c.claimed[bank][index].CompareAndSwap(false, true) {
		return nil, fmt.Errorf("pad B%d_%02d: %w", bank, index, ErrTaken)
	}
	return &Pad{ctrl: c, bank: bank, index: index}, nil
}

// Pad is an unbound pad. Binding it to a role selects the alternate
// function and consumes the handle.
type Pad struct {
	ctrl        *Controller
	bank, index int
	bound       atomic.Bool
}

func (p *Pad) String() string { return fmt.Sprintf("B%d_%02d", p.bank, p.index) }

func (p *Pad) bind(alt uint32) {
	if !p.bound.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("iomuxc: pad %s bound twice", p))
	}
	p.ctrl.regs.MuxCtl[p.bank][p.index].Set(alt)
}

// SetPadCtl writes the electrical pad configuration.
func (p *Pad) SetPadCtl(v uint32) {
	p.ctrl.regs.PadCtl[p.bank][p.index].Set(v)
}

// UARTTX is a pad bound to the TX role of one LPUART instance.
type UARTTX struct {
	pad  *Pad
	inst int
}

// UARTRX is a pad bound to the RX role of one LPUART instance.
type UARTRX struct {
	pad  *Pad
	inst int
}

func BindUARTTX(p *Pad, uart int) UARTTX {
	p.bind(altUART)
	return UARTTX{pad: p, inst: uart}
}

func BindUARTRX(p *Pad, uart int) UARTRX {
	p.bind(altUART)
	return UARTRX{pad: p, inst: uart}
}

func (t UARTTX) Instance() int { return t.inst }
func (r UARTRX) Instance() int { return r.inst }

// SPI pin roles.
type (
	SPISDO struct {
		pad  *Pad
		inst int
	}
	SPISDI struct {
		pad  *Pad
		inst int
	}
	SPISCK struct {
		pad  *Pad
		inst int
	}
	SPIPCS0 struct {
		pad  *Pad
		inst int
	}
)

func BindSPISDO(p *Pad, spi int) SPISDO {
	p.bind(altSPI)
	return SPISDO{pad: p, inst: spi}
}

func BindSPISDI(p *Pad, spi int) SPISDI {
	p.bind(altSPI)
	return SPISDI{pad: p, inst: spi}
}

func BindSPISCK(p *Pad, spi int) SPISCK {
	p.bind(altSPI)
	return SPISCK{pad: p, inst: spi}
}

func BindSPIPCS0(p *Pad, spi int) SPIPCS0 {
	p.bind(altSPI)
	return SPIPCS0{pad: p, inst: spi}
}

func (s SPISDO) Instance() int  { return s.inst }
func (s SPISDI) Instance() int  { return s.inst }
func (s SPISCK) Instance() int  { return s.inst }
func (s SPIPCS0) Instance() int { return s.inst }

// I2C pin roles.
type (
	I2CSCL struct {
		pad  *Pad
		inst int
	}
	I2CSDA struct {
		pad  *Pad
		inst int
	}
)

func BindI2CSCL(p *Pad, i2c int) I2CSCL {
	p.bind(altI2C)
	return I2CSCL{pad: p, inst: i2c}
}

func BindI2CSDA(p *Pad, i2c int) I2CSDA {
	p.bind(altI2C)
	return I2CSDA{pad: p, inst: i2c}
}

func (s I2CSCL) Instance() int { return s.inst }
func (s I2CSDA) Instance() int { return s.inst }

// GPIOPin is a pad bound to a GPIO port line.
type GPIOPin struct {
	pad  *Pad
	port int
	line int
}

func BindGPIO(p *Pad, port, line int) GPIOPin {
	if line < 0 || line > 31 {
		panic(fmt.Sprintf("iomuxc: GPIO line %d out of range", line))
	}
	p.bind(altGPIO)
	return GPIOPin{pad: p, port: port, line: line}
}

func (g GPIOPin) Port() int { return g.port }
func (g GPIOPin) Line() int { return g.line }
