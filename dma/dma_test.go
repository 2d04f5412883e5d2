package dma

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/imxrt-rs/imxrt-async-hal/instance"
	"github.com/imxrt-rs/imxrt-async-hal/internal/hwsim"
	"github.com/imxrt-rs/imxrt-async-hal/mmio"
	"github.com/imxrt-rs/imxrt-async-hal/wake"
)

var (
	mgrOnce sync.Once
	mgr     *Manager
)

func manager(t *testing.T) *Manager {
	t.Helper()
	mgrOnce.Do(func() {
		d, err := instance.TakeDMA()
		if err != nil {
			t.Fatal(err)
		}
		m, err := instance.TakeMux()
		if err != nil {
			t.Fatal(err)
		}
		mgr = New(d, m)
	})
	return mgr
}

func claim(t *testing.T, n int) *Channel {
	t.Helper()
	c, err := manager(t).Channel(n)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Release)
	return c
}

func TestChannelClaim(t *testing.T) {
	m := manager(t)
	c, err := m.Channel(7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Channel(7); !errors.Is(err, ErrTaken) {
		t.Errorf("second claim: got %v, want ErrTaken", err)
	}
	c.Release()
	c, err = m.Channel(7)
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	c.Release()
	if _, err := m.Channel(32); err == nil {
		t.Error("out of range channel: expected error")
	}
}

func TestReceive(t *testing.T) {
	hwsim.Reset()
	c := claim(t, 7)
	c.Bind(3)

	var dataReg mmio.Register32
	buf := make([]byte, 4)
	var cell wake.Cell
	wakes := 0
	cell.Arm(func() { wakes++ })
	if err := c.Arm(FromPeripheral(&dataReg, buf), &cell); err != nil {
		t.Fatal(err)
	}
	if !hwsim.ChannelArmed(7) {
		t.Fatal("request not enabled")
	}

	hwsim.FeedBytes(&dataReg, []byte{0xde, 0xad, 0xbe, 0xef})
	hwsim.RunChannel(7)

	if wakes != 1 {
		t.Errorf("wakes = %d, want 1", wakes)
	}
	code, ok := cell.Finish()
	if !ok || code != 0 {
		t.Fatalf("Finish = (%d, %v), want (0, true)", code, ok)
	}
	if want := []byte{0xde, 0xad, 0xbe, 0xef}; !bytes.Equal(buf, want) {
		t.Errorf("buf = %x, want %x", buf, want)
	}
}

func TestTransmit(t *testing.T) {
	hwsim.Reset()
	c := claim(t, 3)
	c.Bind(5)

	var dataReg mmio.Register32
	hwsim.Capture(&dataReg)
	var cell wake.Cell
	cell.Arm(func() {})
	if err := c.Arm(ToPeripheral([]byte("ping"), &dataReg), &cell); err != nil {
		t.Fatal(err)
	}
	hwsim.RunChannel(3)

	if _, ok := cell.Finish(); !ok {
		t.Fatal("no completion")
	}
	if got := hwsim.SunkBytes(&dataReg); !bytes.Equal(got, []byte("ping")) {
		t.Errorf("sunk = %q, want %q", got, "ping")
	}
}

func TestMemcpy(t *testing.T) {
	hwsim.Reset()
	c := claim(t, 12)

	src := []uint32{1, 2, 3, 4, 5}
	dst := make([]uint32, 5)
	var cell wake.Cell
	cell.Arm(func() {})
	if err := c.Start(Memcpy(dst, src), &cell); err != nil {
		t.Fatal(err)
	}
	hwsim.RunChannel(12)

	if _, ok := cell.Finish(); !ok {
		t.Fatal("no completion")
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, dst[i], src[i])
		}
	}
}

func TestAbort(t *testing.T) {
	hwsim.Reset()
	c := claim(t, 9)
	c.Bind(2)

	var dataReg mmio.Register32
	buf := make([]byte, 16)
	var cell wake.Cell
	wakes := 0
	cell.Arm(func() { wakes++ })
	if err := c.Arm(FromPeripheral(&dataReg, buf), &cell); err != nil {
		t.Fatal(err)
	}
	c.Abort()
	cell.Reset()

	if hwsim.ChannelArmed(9) {
		t.Error("request still enabled after abort")
	}
	if wakes != 0 {
		t.Error("aborted transfer woke the task")
	}

	// The channel supports a fresh transfer with no residual state.
	small := make([]byte, 2)
	cell.Arm(func() { wakes++ })
	if err := c.Arm(FromPeripheral(&dataReg, small), &cell); err != nil {
		t.Fatal(err)
	}
	hwsim.FeedBytes(&dataReg, []byte{7, 8})
	hwsim.RunChannel(9)
	if code, ok := cell.Finish(); !ok || code != 0 {
		t.Fatalf("fresh transfer after abort: (%d, %v)", code, ok)
	}
	if small[0] != 7 || small[1] != 8 {
		t.Errorf("small = %v, want [7 8]", small)
	}
}

func TestBusError(t *testing.T) {
	hwsim.Reset()
	c := claim(t, 4)
	c.Bind(8)

	var dataReg mmio.Register32
	var cell wake.Cell
	cell.Arm(func() {})
	if err := c.Arm(FromPeripheral(&dataReg, make([]byte, 8)), &cell); err != nil {
		t.Fatal(err)
	}
	hwsim.FailChannel(4, 0x4000)
	code, ok := cell.Finish()
	if !ok || code != codeError {
		t.Fatalf("Finish = (%d, %v), want error code", code, ok)
	}
	if c.ErrorStatus() != 0x4000 {
		t.Errorf("ES = %#x, want 0x4000", c.ErrorStatus())
	}
}

func TestDuplicateInterruptIgnored(t *testing.T) {
	hwsim.Reset()
	c := claim(t, 15)
	c.Bind(1)

	var dataReg mmio.Register32
	var cell wake.Cell
	wakes := 0
	cell.Arm(func() { wakes++ })
	if err := c.Arm(FromPeripheral(&dataReg, make([]byte, 1)), &cell); err != nil {
		t.Fatal(err)
	}
	hwsim.FeedBytes(&dataReg, []byte{1})
	hwsim.RunChannel(15)
	// The controller glitches a second interrupt for the same major
	// loop completion.
	mgr.regs.INT.SetBits(1 << 15)
	onInterrupt(mgr, 15)

	if wakes != 1 {
		t.Errorf("wakes = %d, want 1", wakes)
	}
	if _, ok := cell.Finish(); !ok {
		t.Fatal("no completion")
	}
	if _, ok := cell.Finish(); ok {
		t.Error("duplicate completion observed")
	}
}

func TestArmTooLong(t *testing.T) {
	c := claim(t, 21)
	var cell wake.Cell
	tr := Transfer{Iterations: maxIterations + 1, Size: Size8}
	if err := c.Arm(tr, &cell); !errors.Is(err, ErrTooLong) {
		t.Errorf("got %v, want ErrTooLong", err)
	}
	if hwsim.ChannelArmed(21) {
		t.Error("rejected descriptor enabled the request")
	}
}
