// Package cpu provides the memory ordering primitives needed when sharing
// memory with bus masters like the DMA controller.
//
// The Cortex-M3 has no data cache, but stores may still be buffered and
// reordered with respect to accesses by other bus masters. Before handing
// memory to the DMA controller, and before reading memory the DMA controller
// has written, a data memory barrier is required.
package cpu

import "sync/atomic"

var fence atomic.Uint32

// DMABarrier orders all memory accesses issued before the call before any
// access issued after it, as observed by the DMA controller.
//
// Atomic read-modify-write operations are implemented with DMB on both sides
// on arm, so no assembly is needed.
func DMABarrier() {
	fence.Add(1)
}
