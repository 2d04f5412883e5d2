package ccm

import (
	"testing"

	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
)

func newCCM(t *testing.T) *CCM {
	t.Helper()
	h, err := instance.TakeCCM()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Release)
	return New(h)
}

func TestSetGateEncoding(t *testing.T) {
	c := newCCM(t)
	reg := &ral.CCM.CCGR[1]
	reg.Set(0)

	c.Handle.setGate(gate{ccgr: 1, field: 3}, On)
	c.Handle.setGate(gate{ccgr: 1, field: 7}, On)
	if got, want := reg.Get(), uint32(0b11<<14|0b11<<6); got != want {
		t.Errorf("CCGR = %#x, want %#x", got, want)
	}

	c.Handle.setGate(gate{ccgr: 1, field: 3}, OnlyRun)
	if got, want := reg.Get(), uint32(0b11<<14|0b01<<6); got != want {
		t.Errorf("CCGR = %#x, want %#x", got, want)
	}

	c.Handle.setGate(gate{ccgr: 1, field: 3}, Off)
	if got, want := reg.Get(), uint32(0b11<<14); got != want {
		t.Errorf("CCGR = %#x, want %#x", got, want)
	}
}

func TestRootFrequencies(t *testing.T) {
	c := newCCM(t)
	per := c.PerClock.Enable(&c.Handle)
	if got := per.Frequency(); got != 1*physic.MegaHertz {
		t.Errorf("perclock = %v, want 1MHz", got)
	}
	uart := c.UART.Enable(&c.Handle)
	if got := uart.Frequency(); got != 24*physic.MegaHertz {
		t.Errorf("uart clock = %v, want 24MHz", got)
	}
	spi := c.SPI.Enable(&c.Handle)
	if got := spi.Frequency(); got != 528*physic.MegaHertz/5 {
		t.Errorf("spi clock = %v", got)
	}
	i2c := c.I2C.Enable(&c.Handle)
	if got := i2c.Frequency(); got != 8*physic.MegaHertz {
		t.Errorf("i2c clock = %v, want 8MHz", got)
	}
}

func TestPerClockEnableSelectsOscillator(t *testing.T) {
	c := newCCM(t)
	ral.CCM.CSCMR1.Set(0)
	c.PerClock.Enable(&c.Handle)
	v := ral.CCM.CSCMR1.Get()
	if v&ral.CCM_CSCMR1_PERCLK_CLK_SEL == 0 {
		t.Error("PERCLK_CLK_SEL not set")
	}
	if got := v & ral.CCM_CSCMR1_PERCLK_PODF_Msk; got != perClockDivider-1 {
		t.Errorf("PERCLK_PODF = %d, want %d", got, perClockDivider-1)
	}
}

func TestGateUART(t *testing.T) {
	c := newCCM(t)
	u, err := instance.TakeUART(2)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Release()
	uart := c.UART.Enable(&c.Handle)
	ral.CCM.CCGR[0].Set(0)
	uart.GateUART(&c.Handle, u, On)
	if got, want := ral.CCM.CCGR[0].Get(), uint32(0b11<<28); got != want {
		t.Errorf("CCGR0 = %#x, want %#x", got, want)
	}
}
