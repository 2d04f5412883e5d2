package dma

import (
	"unsafe"

	"github.com/imxrt-rs/imxrt-async-hal/mmio"
)

// Size is a TCD element size.
type Size uint32

const (
	Size8  Size = 0b000
	Size16 Size = 0b001
	Size32 Size = 0b010
)

// Bytes returns the element width in bytes.
func (s Size) Bytes() uint32 { return 1 << s }

// Element is a type the DMA engine can move in one minor loop.
type Element interface {
	~uint8 | ~uint16 | ~uint32
}

// Transfer describes one major loop: where elements come from, where
// they go, how wide they are, and how many to move. The memory side
// increments by the element width per iteration; a peripheral data
// register keeps a zero offset.
type Transfer struct {
	SourceAddr uintptr
	SourceOff  int16
	DestAddr   uintptr
	DestOff    int16
	Size       Size
	Iterations int
}

func sizeOf[E Element]() Size {
	switch unsafe.Sizeof(*new(E)) {
	case 1:
		return Size8
	case 2:
		return Size16
	default:
		return Size32
	}
}

func sliceAddr[E Element](buf []E) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

func regAddr(reg *mmio.Register32) uintptr {
	return uintptr(unsafe.Pointer(reg))
}

// FromPeripheral describes a transfer reading each element from a
// peripheral data register into buf.
func FromPeripheral[E Element](reg *mmio.Register32, buf []E) Transfer {
	s := sizeOf[E]()
	return Transfer{
		SourceAddr: regAddr(reg),
		SourceOff:  0,
		DestAddr:   sliceAddr(buf),
		DestOff:    int16(s.Bytes()),
		Size:       s,
		Iterations: len(buf),
	}
}

// ToPeripheral describes a transfer writing each element of buf into
// a peripheral data register.
func ToPeripheral[E Element](buf []E, reg *mmio.Register32) Transfer {
	s := sizeOf[E]()
	return Transfer{
		SourceAddr: sliceAddr(buf),
		SourceOff:  int16(s.Bytes()),
		DestAddr:   regAddr(reg),
		DestOff:    0,
		Size:       s,
		Iterations: len(buf),
	}
}

// Memcpy describes a memory-to-memory copy of min(len(dst), len(src))
// elements.
func Memcpy[E Element](dst, src []E) Transfer {
	s := sizeOf[E]()
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	return Transfer{
		SourceAddr: sliceAddr(src),
		SourceOff:  int16(s.Bytes()),
		DestAddr:   sliceAddr(dst),
		DestOff:    int16(s.Bytes()),
		Size:       s,
		Iterations: n,
	}
}
