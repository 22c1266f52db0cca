// Package pmc controls the peripheral clocks of the Power Management
// Controller. Peripherals are addressed by their peripheral identifier.
package pmc

import (
	"github.com/clktmr/sam3x/debug"
	"github.com/clktmr/sam3x/soc"
)

// Register offsets from the PMC base
const (
	PCER0 = 0x10
	PCDR0 = 0x14
	PCSR0 = 0x18
	PCER1 = 0x100
	PCDR1 = 0x104
	PCSR1 = 0x108
)

type Registers struct {
	pcer [2]soc.U32
	pcdr [2]soc.U32
	pcsr [2]soc.U32
}

func New(bus soc.Bus, base uintptr) *Registers {
	return &Registers{
		pcer: [2]soc.U32{soc.NewR32[uint32](bus, base+PCER0), soc.NewR32[uint32](bus, base+PCER1)},
		pcdr: [2]soc.U32{soc.NewR32[uint32](bus, base+PCDR0), soc.NewR32[uint32](bus, base+PCDR1)},
		pcsr: [2]soc.U32{soc.NewR32[uint32](bus, base+PCSR0), soc.NewR32[uint32](bus, base+PCSR1)},
	}
}

func (r *Registers) EnablePeriphClock(id uint8) {
	debug.Assert(id < 64, "invalid peripheral id")
	r.pcer[id/32].Store(1 << (id % 32))
}

func (r *Registers) DisablePeriphClock(id uint8) {
	debug.Assert(id < 64, "invalid peripheral id")
	r.pcdr[id/32].Store(1 << (id % 32))
}

func (r *Registers) PeriphClockEnabled(id uint8) bool {
	debug.Assert(id < 64, "invalid peripheral id")
	return r.pcsr[id/32].LoadBits(1<<(id%32)) != 0
}
