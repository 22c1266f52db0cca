// Package dmac drives the AHB DMA controller. Only linked list (multi buffer)
// transfers with descriptors fetched from memory are supported.
package dmac

import (
	"unsafe"

	"github.com/clktmr/sam3x/debug"
	"github.com/clktmr/sam3x/soc"
)

// Descriptor is a linked list item of a multi buffer transfer. The DMAC
// fetches descriptors from memory on its own, so the layout matches the
// hardware on 32-bit targets and descriptors must not be modified while the
// channel is enabled.
type Descriptor struct {
	Src   unsafe.Pointer
	Dst   unsafe.Pointer
	CtrlA CtrlA
	CtrlB CtrlB
	Next  *Descriptor // nil terminates the chain
}

// Controller is one DMAC instance.
type Controller struct {
	regs registers
	bus  soc.Bus
	base uintptr
}

func New(bus soc.Bus, base uintptr) *Controller {
	return &Controller{
		regs: registers{
			en:     soc.NewR32[uint32](bus, base+OffEN),
			ebcisr: soc.NewR32[uint32](bus, base+OffEBCISR),
			cher:   soc.NewR32[uint32](bus, base+OffCHER),
			chdr:   soc.NewR32[uint32](bus, base+OffCHDR),
			chsr:   soc.NewR32[uint32](bus, base+OffCHSR),
		},
		bus:  bus,
		base: base,
	}
}

// Enable enables the controller. Channels can't transfer before.
func (c *Controller) Enable() {
	c.regs.en.Store(ENABLE)
}

func (c *Controller) Enabled() bool {
	return c.regs.en.LoadBits(ENABLE) != 0
}

// Channel returns channel n of the controller.
func (c *Controller) Channel(n int) *Channel {
	debug.Assert(n >= 0 && n < NumChannels, "invalid dma channel")
	base := c.base + OffChannel + uintptr(n)*ChannelStride
	return &Channel{
		ctrl: c,
		mask: 1 << n,
		regs: channelRegisters{
			saddr: soc.NewR32[uint32](c.bus, base+OffSADDR),
			daddr: soc.NewR32[uint32](c.bus, base+OffDADDR),
			dscr:  soc.NewR32[uint32](c.bus, base+OffDSCR),
			ctrla: soc.NewR32[CtrlA](c.bus, base+OffCTRLA),
			ctrlb: soc.NewR32[CtrlB](c.bus, base+OffCTRLB),
			cfg:   soc.NewR32[Config](c.bus, base+OffCFG),
		},
	}
}

// Channel is a single DMA channel. It must be owned by exactly one driver.
type Channel struct {
	ctrl *Controller
	mask uint32
	regs channelRegisters
}

func (ch *Channel) EnableController() {
	ch.ctrl.Enable()
}

// Configure sets the handshaking and protection configuration of the channel.
// The channel must be disabled.
func (ch *Channel) Configure(cfg Config) {
	debug.Assert(!ch.Enabled(), "configuring enabled dma channel")
	ch.regs.cfg.Store(cfg)
}

// Start loads the first descriptor of a chain. The transfer begins once the
// channel is enabled. The caller is responsible for a memory barrier between
// writing the descriptors and enabling the channel.
func (ch *Channel) Start(first *Descriptor) {
	debug.Assert(first != nil, "empty descriptor chain")
	debug.Assert(!ch.Enabled(), "starting enabled dma channel")

	ch.ctrl.regs.ebcisr.Load() // clears pending buffer transfer flags
	ch.regs.saddr.Store(0)
	ch.regs.daddr.Store(0)
	ch.regs.dscr.Store(uint32(uintptr(unsafe.Pointer(first))))
	ch.regs.ctrlb.Store(0)
}

func (ch *Channel) Enable() {
	ch.ctrl.regs.cher.Store(ch.mask)
}

// Disable requests the channel to stop. The hardware might need some time to
// finish the current burst, see Enabled.
func (ch *Channel) Disable() {
	ch.ctrl.regs.chdr.Store(ch.mask)
}

func (ch *Channel) Enabled() bool {
	return ch.ctrl.regs.chsr.LoadBits(ch.mask) != 0
}

// TransferDone reports whether the channel completed the last descriptor of
// the chain, after which the hardware disables it.
func (ch *Channel) TransferDone() bool {
	return !ch.Enabled()
}
