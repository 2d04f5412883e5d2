// Package mmio provides the register cells the register access
// layer is built from. Reads and writes are atomic, matching the
// access semantics of memory-mapped peripheral registers.
package mmio

import "sync/atomic"

// Register32 is a 32-bit peripheral register.
type Register32 struct {
	v atomic.Uint32
}

func (r *Register32) Get() uint32 {
	return r.v.Load()
}

func (r *Register32) Set(v uint32) {
	r.v.Store(v)
}

func (r *Register32) SetBits(mask uint32) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func (r *Register32) ClearBits(mask uint32) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

func (r *Register32) XorBits(mask uint32) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old^mask) {
			return
		}
	}
}

// ReplaceBits writes val into the field selected by mask and pos.
func (r *Register32) ReplaceBits(val, mask uint32, pos uint8) {
	for {
		old := r.v.Load()
		new := old&^(mask<<pos) | (val&mask)<<pos
		if r.v.CompareAndSwap(old, new) {
			return
		}
	}
}

// HasBits reports whether all bits in mask are set.
func (r *Register32) HasBits(mask uint32) bool {
	return r.v.Load()&mask == mask
}

// RegisterPtr is an address-holding peripheral register, such as a DMA
// transfer-control address field. It is pointer-width so the simulated
// register map can hold host addresses; on a 32-bit target it coincides
// with a 32-bit register.
type RegisterPtr struct {
	v atomic.Uintptr
}

func (r *RegisterPtr) Get() uintptr {
	return r.v.Load()
}

func (r *RegisterPtr) Set(v uintptr) {
	r.v.Store(v)
}
