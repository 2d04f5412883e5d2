package hwsim

import (
	"github.com/imxrt-rs/imxrt-async-hal/irq"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
)

// ExpirePIT fires periodic interrupt timer channel ch, if the channel
// is running with interrupts on. It reports whether the timer fired.
func ExpirePIT(ch int) bool {
	c := &ral.PIT.CH[ch]
	if !c.TCTRL.HasBits(ral.PIT_TCTRL_TEN | ral.PIT_TCTRL_TIE) {
		return false
	}
	c.TFLG.SetBits(ral.PIT_TFLG_TIF)
	irq.Pend(irq.PIT)
	return true
}

// ExpireGPT fires output compare cmp of GPT instance n, if that
// compare interrupt is enabled. It reports whether the timer fired.
func ExpireGPT(n, cmp int) bool {
	regs := ral.GPTAt(n)
	ie := uint32(ral.GPT_IR_OF1IE) << (cmp - 1)
	if !regs.IR.HasBits(ie) {
		return false
	}
	regs.SR.SetBits(uint32(ral.GPT_SR_OF1) << (cmp - 1))
	if n == 1 {
		irq.Pend(irq.GPT1)
	} else {
		irq.Pend(irq.GPT2)
	}
	return true
}

// RaiseGPIOEdge fires the edge interrupt for line of GPIO port n,
// if that line's interrupt mask is open.
func RaiseGPIOEdge(n, line int) bool {
	regs := ral.GPIOAt(n)
	bit := uint32(1) << line
	if !regs.IMR.HasBits(bit) {
		return false
	}
	regs.ISR.SetBits(bit)
	irq.Pend(irq.GPIO1Combined + irq.Line(n-1))
	return true
}
