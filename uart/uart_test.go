package uart

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"periph.io/x/conn/v3/physic"

	"github.com/imxrt-rs/imxrt-async-hal/ccm"
	"github.com/imxrt-rs/imxrt-async-hal/dma"
	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/internal/hwsim"
	"github.com/imxrt-rs/imxrt-async-hal/iomuxc"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

var rig struct {
	once    sync.Once
	pads    *iomuxc.Controller
	clocks  *ccm.CCM
	uartClk ccm.UARTClock
	mgr     *dma.Manager
	padIdx  int
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
		rig.uartClk = rig.clocks.UART.Enable(&rig.clocks.Handle)
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

// newUART wires a full driver: instance claim, bound pads, clock
// gate, and a DMA channel.
func newUART(t *testing.T, inst, channel int) *UART {
	t.Helper()
	setup(t)
	hwsim.Reset()
	u, err := instance.TakeUART(inst)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(u.Release)
	rig.uartClk.GateUART(&rig.clocks.Handle, u, ccm.On)
	ch, err := rig.mgr.Channel(channel)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ch.Release)
	tx := iomuxc.BindUARTTX(pad(t), inst)
	rx := iomuxc.BindUARTRX(pad(t), inst)
	return New(u, tx, rx, ch, rig.uartClk)
}

func TestNewConfiguresDefaultBaud(t *testing.T) {
	u := newUART(t, 5, 9)
	baud := u.regs.BAUD.Get()
	if osr := baud >> ral.UART_BAUD_OSR_Pos & ral.UART_BAUD_OSR_Msk; osr != 3 {
		t.Errorf("OSR field = %d, want 3", osr)
	}
	if sbr := baud >> ral.UART_BAUD_SBR_Pos & ral.UART_BAUD_SBR_Msk; sbr != 625 {
		t.Errorf("SBR field = %d, want 625", sbr)
	}
	if baud&ral.UART_BAUD_BOTHEDGE == 0 {
		t.Error("BOTHEDGE not set for OSR below 8")
	}
}

func TestReadOneByte(t *testing.T) {
	u := newUART(t, 2, 7)
	buf := make([]byte, 1)
	op := u.Read(buf)

	w := wake.Waker(func() {})
	if done, _ := op.Poll(w); done {
		t.Fatal("completed before data arrived")
	}
	hwsim.FeedBytes(&u.regs.DATA, []byte{0x5a})
	hwsim.RunChannel(7)
	done, err := op.Poll(w)
	if !done || err != nil {
		t.Fatalf("Poll = (%v, %v), want (true, nil)", done, err)
	}
	if buf[0] != 0x5a {
		t.Errorf("buf[0] = %#x, want 0x5a", buf[0])
	}
	if op.N() != 1 {
		t.Errorf("N = %d, want 1", op.N())
	}
}

func TestCancelThenFreshRead(t *testing.T) {
	u := newUART(t, 3, 5)
	op := u.Read(make([]byte, 100))
	if done, _ := op.Poll(func() {}); done {
		t.Fatal("completed before data arrived")
	}
	op.Cancel()

	if hwsim.ChannelArmed(5) {
		t.Error("channel still armed after cancel")
	}

	// The driver and channel carry no residual state.
	buf := make([]byte, 10)
	fresh := u.Read(buf)
	if done, _ := fresh.Poll(func() {}); done {
		t.Fatal("fresh read completed early")
	}
	want := []byte("oxidation!")
	hwsim.FeedBytes(&u.regs.DATA, want)
	hwsim.RunChannel(5)
	done, err := fresh.Poll(func() {})
	if !done || err != nil {
		t.Fatalf("fresh Poll = (%v, %v)", done, err)
	}
	if !bytes.Equal(buf, want) {
		t.Errorf("buf = %q, want %q", buf, want)
	}
}

func TestWrite(t *testing.T) {
	u := newUART(t, 4, 11)
	hwsim.Capture(&u.regs.DATA)
	op := u.Write([]byte("hello"))
	if done, _ := op.Poll(func() {}); done {
		t.Fatal("completed before the transfer ran")
	}
	hwsim.RunChannel(11)
	done, err := op.Poll(func() {})
	if !done || err != nil {
		t.Fatalf("Poll = (%v, %v)", done, err)
	}
	if got := hwsim.SunkBytes(&u.regs.DATA); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("wrote %q, want %q", got, "hello")
	}
	if op.N() != 5 {
		t.Errorf("N = %d, want 5", op.N())
	}
}

func TestZeroLengthRead(t *testing.T) {
	u := newUART(t, 5, 2)
	op := u.Read(nil)
	done, err := op.Poll(func() {})
	if !done || err != nil {
		t.Fatalf("Poll = (%v, %v), want immediate completion", done, err)
	}
	if op.N() != 0 {
		t.Errorf("N = %d, want 0", op.N())
	}
	if hwsim.ChannelArmed(2) {
		t.Error("zero-length read armed the channel")
	}
}

func TestOverrunFault(t *testing.T) {
	u := newUART(t, 6, 9)
	buf := make([]byte, 2)
	op := u.Read(buf)
	op.Poll(func() {})

	// The receiver overruns while the transfer is in flight.
	u.regs.STAT.SetBits(ral.UART_STAT_OR)
	hwsim.FeedBytes(&u.regs.DATA, []byte{1, 2})
	hwsim.RunChannel(9)

	done, err := op.Poll(func() {})
	if !done {
		t.Fatal("fault did not complete the operation")
	}
	var fault Fault
	if !errors.As(err, &fault) || !fault.Overrun() {
		t.Fatalf("err = %v, want overrun fault", err)
	}

	// The fault is consumed with the operation.
	next := u.Read(buf)
	next.Poll(func() {})
	hwsim.FeedBytes(&u.regs.DATA, []byte{3, 4})
	hwsim.RunChannel(9)
	if done, err := next.Poll(func() {}); !done || err != nil {
		t.Errorf("next Poll = (%v, %v), want clean completion", done, err)
	}
}

func TestBusError(t *testing.T) {
	u := newUART(t, 7, 14)
	op := u.Read(make([]byte, 4))
	op.Poll(func() {})
	hwsim.FailChannel(14, 0x8000_0000)
	done, err := op.Poll(func() {})
	if !done || !errors.Is(err, dma.ErrBus) {
		t.Fatalf("Poll = (%v, %v), want bus error", done, err)
	}
}

func TestSecondOperationPanics(t *testing.T) {
	u := newUART(t, 8, 20)
	op := u.Read(make([]byte, 1))
	op.Poll(func() {})
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
		op.Cancel()
	}()
	u.Write([]byte{1})
}

func TestTimings(t *testing.T) {
	tests := []struct {
		baud     physic.Frequency
		osr, sbr uint32
		bothEdge bool
	}{
		{9600 * physic.Hertz, 4, 625, true},
		{115200 * physic.Hertz, 4, 52, true},
		{1 * physic.MegaHertz, 4, 6, true},
	}
	for _, tt := range tests {
		osr, sbr, be, err := timings(ccm.Oscillator, tt.baud)
		if err != nil {
			t.Errorf("%v: %v", tt.baud, err)
			continue
		}
		if osr != tt.osr || sbr != tt.sbr || be != tt.bothEdge {
			t.Errorf("%v: got (%d, %d, %v), want (%d, %d, %v)",
				tt.baud, osr, sbr, be, tt.osr, tt.sbr, tt.bothEdge)
		}
	}
	if _, _, _, err := timings(ccm.Oscillator, 0); !errors.Is(err, ErrConfig) {
		t.Errorf("zero baud: got %v, want ErrConfig", err)
	}
}
