// Package hwsim plays the hardware side of the register blocks for
// tests and host demos. It executes armed DMA descriptors, injects
// peripheral data and faults, and pends the interrupt lines a real
// controller would raise. Driver code never imports this package;
// the only shared surface is the register blocks and the interrupt
// table.
package hwsim

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/imxrt-rs/imxrt-async-hal/irq"
	"github.com/imxrt-rs/imxrt-async-hal/mmio"
	"github.com/imxrt-rs/imxrt-async-hal/ral"
)

var (
	mu    sync.Mutex
	feeds = map[uintptr][]uint32{}
	sinks = map[uintptr][]uint32{}
)

// Reset drops all fed data and captured writes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	feeds = map[uintptr][]uint32{}
	sinks = map[uintptr][]uint32{}
}

func regAddr(reg *mmio.Register32) uintptr {
	return uintptr(unsafe.Pointer(reg))
}

// Feed queues inbound elements behind a peripheral data register. A
// DMA transfer sourcing from that register consumes them in order.
func Feed(reg *mmio.Register32, elems ...uint32) {
	mu.Lock()
	defer mu.Unlock()
	a := regAddr(reg)
	feeds[a] = append(feeds[a], elems...)
}

// FeedBytes queues inbound bytes behind a peripheral data register.
func FeedBytes(reg *mmio.Register32, data []byte) {
	elems := make([]uint32, len(data))
	for i, b := range data {
		elems[i] = uint32(b)
	}
	Feed(reg, elems...)
}

// Capture marks a peripheral data register as a write sink. Elements
// a DMA transfer writes to it are recorded for Sunk.
func Capture(reg *mmio.Register32) {
	mu.Lock()
	defer mu.Unlock()
	sinks[regAddr(reg)] = []uint32{}
}

// Sunk returns the elements written to a captured register, oldest
// first.
func Sunk(reg *mmio.Register32) []uint32 {
	mu.Lock()
	defer mu.Unlock()
	return append([]uint32(nil), sinks[regAddr(reg)]...)
}

// SunkBytes returns the captured writes truncated to bytes.
func SunkBytes(reg *mmio.Register32) []byte {
	elems := Sunk(reg)
	data := make([]byte, len(elems))
	for i, e := range elems {
		data[i] = byte(e)
	}
	return data
}

func loadElem(addr uintptr, size uint32) uint32 {
	switch size {
	case 1:
		return uint32(*(*uint8)(unsafe.Pointer(addr)))
	case 2:
		return uint32(*(*uint16)(unsafe.Pointer(addr)))
	default:
		return *(*uint32)(unsafe.Pointer(addr))
	}
}

func storeElem(addr uintptr, size, v uint32) {
	switch size {
	case 1:
		*(*uint8)(unsafe.Pointer(addr)) = uint8(v)
	case 2:
		*(*uint16)(unsafe.Pointer(addr)) = uint16(v)
	default:
		*(*uint32)(unsafe.Pointer(addr)) = v
	}
}

func dmaLine(ch int) irq.Line {
	return irq.DMA0_DMA16 + irq.Line(ch%16)
}

// RunChannel executes channel ch's descriptor: it moves every element
// of the major loop, clears the request, latches the channel's
// interrupt status, and pends the controller interrupt. It panics if
// the channel is not armed, which in a test means the driver under
// test never enabled the request.
func RunChannel(ch int) {
	bit := uint32(1) << ch
	tcd := &ral.DMA0.TCD[ch]
	armed := ral.DMA0.ERQ.HasBits(bit) || tcd.CSR.HasBits(ral.DMA_CSR_START)
	if !armed {
		panic(fmt.Sprintf("hwsim: channel %d not armed", ch))
	}

	mu.Lock()
	src := tcd.SADDR.Get()
	dst := tcd.DADDR.Get()
	soff := uintptr(int16(tcd.SOFF.Get()))
	doff := uintptr(int16(tcd.DOFF.Get()))
	size := tcd.NBYTES.Get()
	n := int(tcd.CITER.Get())

	srcFeed, feeding := feeds[src]
	_, sinking := sinks[dst]
	for i := 0; i < n; i++ {
		var v uint32
		if feeding {
			if len(srcFeed) == 0 {
				break
			}
			v, srcFeed = srcFeed[0], srcFeed[1:]
		} else {
			v = loadElem(src, size)
		}
		if sinking {
			sinks[dst] = append(sinks[dst], v)
		} else {
			storeElem(dst, size, v)
		}
		src += soff
		dst += doff
	}
	if feeding {
		feeds[tcd.SADDR.Get()] = srcFeed
	}
	mu.Unlock()

	tcd.CITER.Set(tcd.BITER.Get())
	tcd.CSR.ClearBits(ral.DMA_CSR_START)
	tcd.CSR.SetBits(ral.DMA_CSR_DONE)
	ral.DMA0.ERQ.ClearBits(bit)
	ral.DMA0.INT.SetBits(bit)
	irq.Pend(dmaLine(ch))
}

// FailChannel aborts channel ch's transfer with a bus error. The
// error status register takes es, and the channel's error and
// interrupt bits pend the controller interrupt.
func FailChannel(ch int, es uint32) {
	bit := uint32(1) << ch
	ral.DMA0.ES.Set(es)
	ral.DMA0.ERQ.ClearBits(bit)
	ral.DMA0.ERR.SetBits(bit)
	ral.DMA0.INT.SetBits(bit)
	irq.Pend(dmaLine(ch))
}

// ChannelArmed reports whether channel ch has its hardware request
// enabled.
func ChannelArmed(ch int) bool {
	return ral.DMA0.ERQ.HasBits(1 << ch)
}
