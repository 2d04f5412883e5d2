// Package irq models the interrupt controller lines used by the
// asynchronous drivers. Drivers register a handler for their line and
// enable it; hardware (or the simulator) pends the line to run the
// handler. A line pended while disabled stays pending and is delivered
// when the line is next enabled, matching NVIC behavior.
package irq

import (
	"sync"
	"sync/atomic"
)

// Line identifies one interrupt request line.
type Line uint8

// Interrupt assignments. The DMA controller shares each line between
// channel n and channel n+16, as the hardware does.
const (
	DMA0_DMA16 Line = iota
	DMA1_DMA17
	DMA2_DMA18
	DMA3_DMA19
	DMA4_DMA20
	DMA5_DMA21
	DMA6_DMA22
	DMA7_DMA23
	DMA8_DMA24
	DMA9_DMA25
	DMA10_DMA26
	DMA11_DMA27
	DMA12_DMA28
	DMA13_DMA29
	DMA14_DMA30
	DMA15_DMA31
	LPUART1
	LPUART2
	LPUART3
	LPUART4
	LPUART5
	LPUART6
	LPUART7
	LPUART8
	LPSPI1
	LPSPI2
	LPSPI3
	LPSPI4
	LPI2C1
	LPI2C2
	LPI2C3
	LPI2C4
	GPT1
	GPT2
	PIT
	GPIO1Combined
	GPIO2Combined
	GPIO3Combined
	GPIO4Combined

	numLines
)

var (
	regMu    sync.Mutex
	handlers [numLines]func()
	enabled  [numLines]atomic.Bool
	pending  [numLines]atomic.Bool
)

// Register installs the handler for a line. A line has exactly one
// handler, installed during driver package initialization, before any
// interrupt can be delivered.
func Register(l Line, h func()) {
	regMu.Lock()
	defer regMu.Unlock()
	if handlers[l] != nil {
		panic("irq: handler already registered")
	}
	handlers[l] = h
}

// Enable unmasks the line. A pending interrupt is delivered
// immediately.
func (l Line) Enable() {
	enabled[l].Store(true)
	if pending[l].CompareAndSwap(true, false) {
		dispatch(l)
	}
}

// Disable masks the line. Interrupts pended while masked are latched.
func (l Line) Disable() {
	enabled[l].Store(false)
}

// Enabled reports whether the line is unmasked.
func (l Line) Enabled() bool {
	return enabled[l].Load()
}

// Pend raises the line. If the line is enabled its handler runs before
// Pend returns, modeling interrupt preemption of the caller.
func Pend(l Line) {
	if !enabled[l].Load() {
		pending[l].Store(true)
		return
	}
	dispatch(l)
}

// ClearPending drops a latched, undelivered interrupt.
func (l Line) ClearPending() {
	pending[l].Store(false)
}

func dispatch(l Line) {
	regMu.Lock()
	h := handlers[l]
	regMu.Unlock()
	if h != nil {
		h()
	}
}
