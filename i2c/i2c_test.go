package i2c

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/ccm"
	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/internal/hwsim"
	"github.com/imxrt-rs/imxrt-async-hal/iomuxc"
	"github.com/imxrt-rs/imxrt-async-hal/ral"

	"github.com/imxrt-rs/imxrt-async-hal/dma"
)

var rig struct {
	once   sync.Once
	pads   *iomuxc.Controller
	clocks *ccm.CCM
	i2cClk ccm.I2CClock
	mgr    *dma.Manager
	padIdx int
}

func setup(t *testing.T) {
	t.Helper()
	rig.once.Do(func() {
		p, err := instance.TakePads()
		if err != nil {
			t.Fatal(err)
		}
		rig.pads = iomuxc.New(p)
		c, err := instance.TakeCCM()
		if err != nil {
			t.Fatal(err)
		}
		rig.clocks = ccm.New(c)
		rig.i2cClk = rig.clocks.I2C.Enable(&rig.clocks.Handle)
		d, err := instance.TakeDMA()
		if err != nil {
			t.Fatal(err)
		}
		m, err := instance.TakeMux()
		if err != nil {
			t.Fatal(err)
		}
		rig.clocks.Handle.GateDMA(ccm.On)
		rig.mgr = dma.New(d, m)
	})
}

func pad(t *testing.T) *iomuxc.Pad {
	t.Helper()
	p, err := rig.pads.Pad(rig.padIdx/16, rig.padIdx%16)
	if err != nil {
		t.Fatal(err)
	}
	rig.padIdx++
	return p
}

func newI2C(t *testing.T, inst, channel int) *I2C {
	t.Helper()
	setup(t)
	hwsim.Reset()
	i, err := instance.TakeI2C(inst)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(i.Release)
	rig.i2cClk.GateI2C(&rig.clocks.Handle, i, ccm.On)
	ch, err := rig.mgr.Channel(channel)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ch.Release)
	scl := iomuxc.BindI2CSCL(pad(t), inst)
	sda := iomuxc.BindI2CSDA(pad(t), inst)
	return New(i, scl, sda, ch, rig.i2cClk)
}

func TestWrite(t *testing.T) {
	d := newI2C(t, 1, 6)
	hwsim.Capture(&d.regs.MTDR)
	op := d.Write(0x50, []byte{0xa0, 0x01, 0x02})
	if done, _ := op.Poll(func() {}); done {
		t.Fatal("completed before the transfer ran")
	}
	hwsim.RunChannel(6)
	done, err := op.Poll(func() {})
	if !done || err != nil {
		t.Fatalf("Poll = (%v, %v)", done, err)
	}
	if got := hwsim.SunkBytes(&d.regs.MTDR); !bytes.Equal(got, []byte{0xa0, 0x01, 0x02}) {
		t.Errorf("sent %x", got)
	}
	// The transaction ended with a stop command.
	if got := d.regs.MTDR.Get(); got != ral.I2C_MTDR_CMD_Stop {
		t.Errorf("last command = %#x, want stop", got)
	}
}

func TestRead(t *testing.T) {
	d := newI2C(t, 2, 10)
	buf := make([]byte, 4)
	op := d.Read(0x1e, buf)
	op.Poll(func() {})
	hwsim.FeedBytes(&d.regs.MRDR, []byte{4, 3, 2, 1})
	hwsim.RunChannel(10)
	done, err := op.Poll(func() {})
	if !done || err != nil {
		t.Fatalf("Poll = (%v, %v)", done, err)
	}
	if want := []byte{4, 3, 2, 1}; !bytes.Equal(buf, want) {
		t.Errorf("buf = %v, want %v", buf, want)
	}
}

func TestWriteRead(t *testing.T) {
	d := newI2C(t, 3, 18)
	hwsim.Capture(&d.regs.MTDR)
	in := make([]byte, 2)
	op := d.WriteRead(0x68, []byte{0x75}, in)

	if done, _ := op.Poll(func() {}); done {
		t.Fatal("completed before write phase ran")
	}
	hwsim.RunChannel(18)
	// The write phase finishes and the read phase arms in the same
	// poll.
	if done, _ := op.Poll(func() {}); done {
		t.Fatal("completed before read phase ran")
	}
	hwsim.FeedBytes(&d.regs.MRDR, []byte{0x12, 0x34})
	hwsim.RunChannel(18)
	done, err := op.Poll(func() {})
	if !done || err != nil {
		t.Fatalf("Poll = (%v, %v)", done, err)
	}
	if got := hwsim.SunkBytes(&d.regs.MTDR); !bytes.Equal(got, []byte{0x75}) {
		t.Errorf("sent %x, want 75", got)
	}
	if in[0] != 0x12 || in[1] != 0x34 {
		t.Errorf("in = %x", in)
	}
}

func TestNACK(t *testing.T) {
	d := newI2C(t, 4, 22)
	op := d.Write(0x0b, []byte{1, 2, 3})
	wakes := 0
	op.Poll(func() { wakes++ })

	// The device NACKs the address; the fault interrupt completes the
	// operation before any data moves.
	d.regs.MSR.SetBits(ral.I2C_MSR_NDF)
	onInterrupt(3)

	if wakes != 1 {
		t.Errorf("wakes = %d, want 1", wakes)
	}
	done, err := op.Poll(func() {})
	if !done || !errors.Is(err, ErrNACK) {
		t.Fatalf("Poll = (%v, %v), want NACK", done, err)
	}
	if hwsim.ChannelArmed(22) {
		t.Error("channel still armed after fault")
	}

	// The driver recovers for the next transaction.
	hwsim.Capture(&d.regs.MTDR)
	next := d.Write(0x0b, []byte{9})
	next.Poll(func() {})
	hwsim.RunChannel(22)
	if done, err := next.Poll(func() {}); !done || err != nil {
		t.Errorf("next Poll = (%v, %v)", done, err)
	}
}

func TestArbitrationLost(t *testing.T) {
	d := newI2C(t, 1, 6)
	op := d.Read(0x40, make([]byte, 1))
	op.Poll(func() {})
	d.regs.MSR.SetBits(ral.I2C_MSR_ALF)
	onInterrupt(0)
	done, err := op.Poll(func() {})
	if !done || !errors.Is(err, ErrArbitrationLost) {
		t.Fatalf("Poll = (%v, %v), want arbitration loss", done, err)
	}
}

func TestBusyBus(t *testing.T) {
	d := newI2C(t, 2, 10)
	for _, flag := range []uint32{ral.I2C_MSR_BBF, ral.I2C_MSR_MBF} {
		d.regs.MSR.SetBits(flag)
		op := d.Write(0x10, []byte{1})
		done, err := op.Poll(func() {})
		if !done || !errors.Is(err, ErrBusy) {
			t.Fatalf("flag %#x: Poll = (%v, %v), want ErrBusy", flag, done, err)
		}
		d.regs.MSR.ClearBits(flag)
	}
}

func TestTooMuchData(t *testing.T) {
	d := newI2C(t, 3, 18)
	op := d.Read(0x2a, make([]byte, 257))
	done, err := op.Poll(func() {})
	if !done || !errors.Is(err, ErrTooMuchData) {
		t.Fatalf("Poll = (%v, %v), want ErrTooMuchData", done, err)
	}
}

func TestCancelMidTransaction(t *testing.T) {
	d := newI2C(t, 4, 22)
	op := d.WriteRead(0x68, []byte{0x75}, make([]byte, 6))
	op.Poll(func() {})
	op.Cancel()
	if hwsim.ChannelArmed(22) {
		t.Error("channel still armed after cancel")
	}
	if d.regs.MIER.Get()&errorInterrupts != 0 {
		t.Error("fault interrupts still enabled after cancel")
	}

	buf := make([]byte, 2)
	next := d.Read(0x68, buf)
	next.Poll(func() {})
	hwsim.FeedBytes(&d.regs.MRDR, []byte{8, 9})
	hwsim.RunChannel(22)
	if done, err := next.Poll(func() {}); !done || err != nil {
		t.Errorf("next Poll = (%v, %v)", done, err)
	}
	if buf[0] != 8 || buf[1] != 9 {
		t.Errorf("buf = %v", buf)
	}
}

func TestZeroLengthWrite(t *testing.T) {
	d := newI2C(t, 1, 6)
	op := d.Write(0x33, nil)
	if done, err := op.Poll(func() {}); !done || err != nil {
		t.Fatalf("Poll = (%v, %v), want immediate completion", done, err)
	}
}

func TestSetClockSpeed(t *testing.T) {
	d := newI2C(t, 2, 10)
	if err := d.SetClockSpeed(400 * physic.KiloHertz); err != nil {
		t.Fatal(err)
	}
	mccr := d.regs.MCCR0.Get()
	clkhi := mccr >> ral.I2C_MCCR0_CLKHI_Pos & ral.I2C_MCCR0_Field_Msk
	clklo := mccr >> ral.I2C_MCCR0_CLKLO_Pos & ral.I2C_MCCR0_Field_Msk
	if clkhi < 2 || clklo != clkhi*2 {
		t.Errorf("CLKHI = %d, CLKLO = %d", clkhi, clklo)
	}
	if err := d.SetClockSpeed(0); !errors.Is(err, ErrConfig) {
		t.Errorf("zero rate: got %v, want ErrConfig", err)
	}
}
