package sim

import (
	"fmt"
	"unsafe"

	"github.com/clktmr/sam3x/soc/dmac"
	"github.com/clktmr/sam3x/soc/hsmci"
)

// DMAC simulates the DMA channel wired to the HSMCI. It has the method set of
// a dmac.Channel and walks the descriptor chain in host memory.
type DMAC struct {
	m *Machine

	controller bool
	enabled    bool
	cfg        dmac.Config
	first      *dmac.Descriptor

	done      countdown
	disabling int // Enabled calls until a requested disable takes effect

	// Chain is a copy of the descriptors as they were when the channel was
	// last enabled.
	Chain []dmac.Descriptor

	Transfers int // chains moved completely
}

func newDMAC(m *Machine) *DMAC {
	return &DMAC{m: m}
}

func (d *DMAC) EnableController() {
	d.controller = true
}

func (d *DMAC) Configure(cfg dmac.Config) {
	if d.enabled {
		panic("sim: configuring enabled dma channel")
	}
	d.cfg = cfg
}

func (d *DMAC) Start(first *dmac.Descriptor) {
	if d.enabled {
		panic("sim: starting enabled dma channel")
	}
	d.first = first
}

func (d *DMAC) Enable() {
	if !d.controller {
		panic("sim: enabling channel of disabled dma controller")
	}
	if d.first == nil {
		panic("sim: enabling dma channel without descriptors")
	}
	d.Chain = d.Chain[:0]
	for desc := d.first; desc != nil; desc = desc.Next {
		d.Chain = append(d.Chain, *desc)
	}
	d.enabled = true
	d.disabling = 0
	d.done.stop()
}

func (d *DMAC) Disable() {
	if !d.enabled || d.disabling > 0 {
		return
	}
	d.done.stop()
	d.disabling = d.m.Timing.DisableSpins
	if d.disabling == 0 {
		d.enabled = false
	}
}

func (d *DMAC) Enabled() bool {
	if d.disabling > 0 {
		d.disabling--
		if d.disabling == 0 {
			d.enabled = false
			d.first = nil
		}
	}
	return d.enabled
}

func (d *DMAC) TransferDone() bool {
	return !d.enabled
}

// Busy reports whether the channel is enabled and not stopping.
func (d *DMAC) Busy() bool {
	return d.enabled && d.disabling == 0
}

func (d *DMAC) tick() {
	if d.done.tick() {
		d.enabled = false
		d.first = nil
		d.Transfers++
	}
}

// finish completes the chain after the configured time.
func (d *DMAC) finish() {
	if d.m.Faults.DMAStall {
		d.done.start(-1)
		return
	}
	d.done.start(d.m.Timing.DMAReads)
}

// receive moves words read from the card into the buffers of the chain. It
// reports false if the channel isn't ready to take the data.
func (d *DMAC) receive(words []uint32) bool {
	fifo := d.m.Chip.HSMCIBase + hsmci.OffRDR
	bufs, ok := d.buffers(dmac.SrcH2SEL|dmac.SrcPer(d.m.Chip.DMAHandshake), dmac.FCPer2Mem, fifo, len(words))
	if !ok {
		return false
	}
	for _, buf := range bufs {
		words = words[copy(buf, words):]
	}
	d.finish()
	return true
}

// send gathers n words from the buffers of the chain to write to the card.
func (d *DMAC) send(n int) ([]uint32, bool) {
	fifo := d.m.Chip.HSMCIBase + hsmci.OffTDR
	bufs, ok := d.buffers(dmac.DstH2SEL|dmac.DstPer(d.m.Chip.DMAHandshake), dmac.FCMem2Per, fifo, n)
	if !ok {
		return nil, false
	}
	words := make([]uint32, 0, n)
	for _, buf := range bufs {
		words = append(words, buf...)
	}
	d.finish()
	return words, true
}

// buffers checks the channel setup for a transfer of n words from or to the
// peripheral at fifo and returns the memory side of each descriptor.
func (d *DMAC) buffers(handshake dmac.Config, fc dmac.CtrlB, fifo uintptr, n int) ([][]uint32, bool) {
	if !d.Busy() {
		d.m.log.Warn("dma channel not ready")
		return nil, false
	}
	if d.cfg&handshake != handshake {
		d.m.log.Warn("dma handshake not configured", "cfg", fmt.Sprintf("%#x", d.cfg))
		return nil, false
	}

	var bufs [][]uint32
	total := 0
	for desc := d.first; desc != nil; desc = desc.Next {
		if desc.CtrlB&dmac.FCMask != fc {
			d.m.log.Warn("dma flow control mismatch")
			return nil, false
		}
		mem, per := desc.Dst, desc.Src
		if fc == dmac.FCMem2Per {
			mem, per = desc.Src, desc.Dst
		}
		if uintptr(per) != fifo {
			d.m.log.Warn("dma descriptor doesn't address the fifo", "addr", fmt.Sprintf("%#x", uintptr(per)))
			return nil, false
		}
		size := int(desc.CtrlA & dmac.BTSizeMask)
		bufs = append(bufs, unsafe.Slice((*uint32)(mem), size))
		total += size
	}
	if total != n {
		d.m.log.Warn("dma chain size mismatch", "words", total, "want", n)
		return nil, false
	}
	return bufs, true
}
