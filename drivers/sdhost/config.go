package sdhost

import (
	"time"

	"github.com/clktmr/sam3x/debug"
	"github.com/clktmr/sam3x/soc"
	"github.com/clktmr/sam3x/soc/hsmci"
)

type Slot uint8

const (
	SlotA Slot = iota
	SlotB
)

// Config selects the hardware and the capabilities of a Host.
type Config struct {
	Chip soc.Chip
	Slot Slot

	// WideMode allows the 4-bit bus. Without it only the 1-bit bus is
	// available.
	WideMode bool

	// MaxIoDescriptors is the maximum number of buffers in the data vector of
	// a single command.
	MaxIoDescriptors int

	// BusyTimeout limits how long the card may signal busy after a command
	// with ResponseShortBusy. Defaults to DefaultBusyTimeout.
	BusyTimeout time.Duration

	// MasterClock is the peripheral clock frequency in Hz. Defaults to
	// DefaultMasterClock.
	MasterClock float64

	// ConfigurePins, if set, is called on Init to route the card pins to the
	// HSMCI.
	ConfigurePins func(pins []soc.Pin)
}

const (
	DefaultBusyTimeout = time.Second
	DefaultMasterClock = 84e6

	// DMATimeout limits how long the DMA may lag behind the end of the data
	// phase on the card bus.
	DMATimeout = 500 * time.Millisecond

	powerOnTimeout = 10 * time.Millisecond
)

func (cfg Config) withDefaults() Config {
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.MasterClock == 0 {
		cfg.MasterClock = DefaultMasterClock
	}
	debug.Assert(cfg.Slot == SlotA || cfg.Slot == SlotB, "invalid slot")
	debug.Assert(cfg.MaxIoDescriptors > 0, "MaxIoDescriptors must be positive")
	debug.Assert(cfg.BusyTimeout > 0, "negative busy timeout")
	debug.Assert(cfg.MasterClock > 0, "negative master clock")
	return cfg
}

func (cfg *Config) sdcr(busWidth int) hsmci.SDCard {
	v := hsmci.SlotA
	if cfg.Slot == SlotB {
		v = hsmci.SlotB
	}
	if busWidth == 4 {
		v |= hsmci.Bus4
	} else {
		v |= hsmci.Bus1
	}
	return v
}

func (cfg *Config) clkdiv(fullSpeed bool) uint32 {
	if fullSpeed {
		return hsmci.ClockDivider(cfg.MasterClock, hsmci.FullSpeed)
	}
	return hsmci.ClockDivider(cfg.MasterClock, hsmci.InitSpeed)
}
