// Package sim simulates the peripherals of a SAM3 chip used for SD card
// access, with a card attached to the HSMCI slot.
//
// The simulation advances only when the status register of the HSMCI is read,
// which is what a polling driver does between steps. Every read ticks the DMAC,
// the data phase, the card's busy signaling and the command phase, in this
// order. Timing tells how many reads each of them takes.
package sim

import (
	"fmt"
	"log/slog"

	"github.com/clktmr/sam3x/debug"
	"github.com/clktmr/sam3x/soc"
	"github.com/clktmr/sam3x/soc/hsmci"
)

const BlockSize = 512

// pmcSize is the part of the PMC address range the simulation decodes.
const pmcSize = 0x200

// Timing is the number of status register reads an operation takes to
// complete. Operations never complete during the read that started them, so
// zero behaves like one.
type Timing struct {
	CmdReads  int // command and response on the bus
	DataReads int // data phase after the response
	DMAReads  int // DMAC finishing the chain after the data phase

	// Number of Enabled calls a disabled DMA channel still reports being
	// enabled
	DisableSpins int
}

var DefaultTiming = Timing{
	CmdReads:     1,
	DataReads:    1,
	DMAReads:     1,
	DisableSpins: 1,
}

// Faults injects errors into the simulation. They apply to every command until
// cleared.
type Faults struct {
	CmdStatus  hsmci.Status // added to the status when a command completes
	DataStatus hsmci.Status // added to the status when a data phase completes

	NoResponse         bool // card doesn't respond
	CorruptCommandCRC  bool // card receives commands with a bad CRC and ignores them
	CorruptResponseCRC bool
	WrongResponseIndex bool
	BusyStuck          bool // card never releases busy
	DataTimeout        bool // card never sends or acknowledges data
	DMAStall           bool // DMAC never finishes the chain
}

// Access is a register access on the bus.
type Access struct {
	Write bool
	Addr  uintptr
	Value uint32
}

func (a Access) String() string {
	if a.Write {
		return fmt.Sprintf("W %#08x = %#08x", a.Addr, a.Value)
	}
	return fmt.Sprintf("R %#08x : %#08x", a.Addr, a.Value)
}

// Machine is a simulated chip. It implements soc.Bus for the HSMCI and the PMC.
// The DMAC is driven directly through its channel methods.
type Machine struct {
	Chip   soc.Chip
	Timing Timing
	Faults Faults
	Card   *Card

	MCI  *MCI
	DMAC *DMAC
	PMC  *PMC

	// Trace records every bus access in Accesses
	Trace    bool
	Accesses []Access

	// Accesses to the HSMCI while its peripheral clock was disabled
	Unclocked int

	log *slog.Logger
}

// New returns a machine of the given chip variant with card in the slot. A nil
// card simulates an empty slot.
func New(chip soc.Chip, card *Card) *Machine {
	m := &Machine{
		Chip:   chip,
		Timing: DefaultTiming,
		Card:   card,
		log:    debug.Logger(debug.ComponentSim),
	}
	m.PMC = newPMC()
	m.DMAC = newDMAC(m)
	m.MCI = newMCI(m)
	return m
}

func (m *Machine) Load32(addr uintptr) uint32 {
	var v uint32
	switch {
	case m.inMCI(addr):
		m.checkClock()
		v = m.MCI.load(addr - m.Chip.HSMCIBase)
	case m.inPMC(addr):
		v = m.PMC.load(addr - m.Chip.PMCBase)
	default:
		panic(fmt.Sprintf("sim: load from unmapped address %#x", addr))
	}
	if m.Trace {
		m.Accesses = append(m.Accesses, Access{Addr: addr, Value: v})
	}
	return v
}

func (m *Machine) Store32(addr uintptr, v uint32) {
	if m.Trace {
		m.Accesses = append(m.Accesses, Access{Write: true, Addr: addr, Value: v})
	}
	switch {
	case m.inMCI(addr):
		m.checkClock()
		m.MCI.store(addr-m.Chip.HSMCIBase, v)
	case m.inPMC(addr):
		m.PMC.store(addr-m.Chip.PMCBase, v)
	default:
		panic(fmt.Sprintf("sim: store to unmapped address %#x", addr))
	}
}

// Writes returns the recorded store accesses.
func (m *Machine) Writes() []Access {
	var w []Access
	for _, a := range m.Accesses {
		if a.Write {
			w = append(w, a)
		}
	}
	return w
}

func (m *Machine) inMCI(addr uintptr) bool {
	return addr >= m.Chip.HSMCIBase && addr < m.Chip.HSMCIBase+hsmci.Size
}

func (m *Machine) inPMC(addr uintptr) bool {
	return addr >= m.Chip.PMCBase && addr < m.Chip.PMCBase+pmcSize
}

func (m *Machine) checkClock() {
	if !m.PMC.Enabled(m.Chip.HSMCIID) {
		m.Unclocked++
	}
}

// tick advances the simulation by one status register read.
func (m *Machine) tick() {
	m.DMAC.tick()
	m.MCI.tickData()
	m.MCI.tickBusy()
	m.MCI.tickCmd()
}

// countdown is a number of ticks until something happens. Negative values
// never expire.
type countdown struct {
	active bool
	left   int
}

func (c *countdown) start(n int) {
	c.active = true
	c.left = n
}

func (c *countdown) stop() {
	c.active = false
}

// tick reports whether the countdown expired.
func (c *countdown) tick() bool {
	if !c.active || c.left < 0 {
		return false
	}
	if c.left > 0 {
		c.left--
	}
	if c.left == 0 {
		c.active = false
		return true
	}
	return false
}
