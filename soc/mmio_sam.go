//go:build sam

package soc

import (
	"embedded/mmio"
	"unsafe"
)

type direct struct{}

// Direct accesses the registers of the running chip.
var Direct Bus = direct{}

//go:nosplit
func (direct) Load32(addr uintptr) uint32 {
	return (*mmio.U32)(unsafe.Pointer(addr)).Load()
}

//go:nosplit
func (direct) Store32(addr uintptr, v uint32) {
	(*mmio.U32)(unsafe.Pointer(addr)).Store(v)
}
