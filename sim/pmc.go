package sim

import "github.com/clktmr/sam3x/soc/pmc"

// PMC simulates the peripheral clock registers of the power management
// controller.
type PMC struct {
	enabled [2]uint32
}

func newPMC() *PMC {
	return &PMC{}
}

// Enabled reports whether the clock of peripheral id runs.
func (p *PMC) Enabled(id uint8) bool {
	return p.enabled[id/32]&(1<<(id%32)) != 0
}

func (p *PMC) load(off uintptr) uint32 {
	switch off {
	case pmc.PCSR0:
		return p.enabled[0]
	case pmc.PCSR1:
		return p.enabled[1]
	}
	return 0
}

func (p *PMC) store(off uintptr, v uint32) {
	switch off {
	case pmc.PCER0:
		p.enabled[0] |= v
	case pmc.PCER1:
		p.enabled[1] |= v
	case pmc.PCDR0:
		p.enabled[0] &^= v
	case pmc.PCDR1:
		p.enabled[1] &^= v
	}
}
