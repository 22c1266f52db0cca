// Package soc models the memory mapped peripherals of the SAM3 family. All
// register accesses go through a Bus, which is either the real memory bus of
// the running chip or a simulation of it.
package soc

// Bus performs 32-bit accesses to memory mapped registers. The driver that
// owns a peripheral owns its address range on the bus exclusively.
type Bus interface {
	Load32(addr uintptr) uint32
	Store32(addr uintptr, v uint32)
}

type T32 interface{ ~uint32 }

// R32 is a 32-bit register holding values of type T.
type R32[T T32] struct {
	bus  Bus
	addr uintptr
}

type U32 = R32[uint32]

func NewR32[T T32](bus Bus, addr uintptr) R32[T] {
	return R32[T]{bus: bus, addr: addr}
}

func (r R32[T]) Load() T {
	return T(r.bus.Load32(r.addr))
}

func (r R32[T]) Store(v T) {
	r.bus.Store32(r.addr, uint32(v))
}

// LoadBits returns the register value masked by mask.
func (r R32[T]) LoadBits(mask T) T {
	return r.Load() & mask
}

// SetBits sets the bits in mask using read-modify-write.
func (r R32[T]) SetBits(mask T) {
	r.Store(r.Load() | mask)
}

// ClearBits clears the bits in mask using read-modify-write.
func (r R32[T]) ClearBits(mask T) {
	r.Store(r.Load() &^ mask)
}

// StoreBits replaces the bits in mask with the corresponding bits of v.
func (r R32[T]) StoreBits(mask, v T) {
	r.Store(r.Load()&^mask | v&mask)
}

// Addr returns the bus address of the register.
func (r R32[T]) Addr() uintptr {
	return r.addr
}
