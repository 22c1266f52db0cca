package dmac

import (
	"testing"
	"unsafe"
)

const base = 0x400c_4000

type access struct {
	write bool
	addr  uintptr
	value uint32
}

// recBus records accesses. CHSR reflects CHER and CHDR writes.
type recBus struct {
	regs map[uintptr]uint32
	log  []access
}

func newRecBus() *recBus {
	return &recBus{regs: map[uintptr]uint32{}}
}

func (b *recBus) Load32(addr uintptr) uint32 {
	v := b.regs[addr]
	b.log = append(b.log, access{addr: addr, value: v})
	return v
}

func (b *recBus) Store32(addr uintptr, v uint32) {
	b.log = append(b.log, access{write: true, addr: addr, value: v})
	switch addr {
	case base + OffCHER:
		b.regs[base+OffCHSR] |= v
	case base + OffCHDR:
		b.regs[base+OffCHSR] &^= v
	default:
		b.regs[addr] = v
	}
}

func TestChannel(t *testing.T) {
	bus := newRecBus()
	c := New(bus, base)
	ch := c.Channel(2)
	chBase := uintptr(base + OffChannel + 2*ChannelStride)

	ch.EnableController()
	if !c.Enabled() {
		t.Fatal("controller not enabled")
	}

	cfg := SrcH2SEL | SrcPer(0) | SOD | AHBProt(1)
	ch.Configure(cfg)
	if got := Config(bus.regs[chBase+OffCFG]); got != cfg {
		t.Errorf("CFG %#x, want %#x", got, cfg)
	}

	var d Descriptor
	bus.log = nil
	ch.Start(&d)
	want := []access{
		{false, base + OffEBCISR, 0},
		{true, chBase + OffSADDR, 0},
		{true, chBase + OffDADDR, 0},
		{true, chBase + OffDSCR, uint32(uintptr(unsafe.Pointer(&d)))},
		{true, chBase + OffCTRLB, 0},
	}
	// Start checks the channel state first.
	if len(bus.log) != len(want)+1 {
		t.Fatalf("got %d accesses, want %d", len(bus.log), len(want)+1)
	}
	for i, a := range bus.log[1:] {
		if a != want[i] {
			t.Errorf("access %d: got %+v, want %+v", i, a, want[i])
		}
	}

	ch.Enable()
	if bus.regs[base+OffCHER] != 0 || bus.regs[base+OffCHSR] != 1<<2 {
		t.Errorf("CHSR %#x after enable", bus.regs[base+OffCHSR])
	}
	if !ch.Enabled() || ch.TransferDone() {
		t.Error("channel not enabled")
	}

	ch.Disable()
	if ch.Enabled() || !ch.TransferDone() {
		t.Error("channel not disabled")
	}
}

func TestChannelMask(t *testing.T) {
	bus := newRecBus()
	c := New(bus, base)
	bus.regs[base+OffCHSR] = 1 << 1 // another channel busy
	ch := c.Channel(0)
	if ch.Enabled() {
		t.Error("channel reports state of another channel")
	}
}

func TestFields(t *testing.T) {
	if got := BTSize(0x1_0080); got != 0x80 {
		t.Errorf("BTSize not masked: %#x", got)
	}
	if got := DstPer(3); got != 0x30 {
		t.Errorf("DstPer %#x", got)
	}
	if got := SrcPer(0x13); got != 0x3 {
		t.Errorf("SrcPer not masked: %#x", got)
	}
	if got := AHBProt(1); got != 1<<24 {
		t.Errorf("AHBProt %#x", got)
	}
}
