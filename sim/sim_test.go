package sim

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/clktmr/sam3x/soc"
	"github.com/clktmr/sam3x/soc/dmac"
	"github.com/clktmr/sam3x/soc/hsmci"
	"github.com/clktmr/sam3x/soc/pmc"
)

type rig struct {
	m    *Machine
	regs *hsmci.Registers
}

func newRig(t *testing.T, card *Card) *rig {
	t.Helper()
	m := New(soc.SAM3X8E, card)
	pmc.New(m, m.Chip.PMCBase).EnablePeriphClock(m.Chip.HSMCIID)
	regs := hsmci.New(m, m.Chip.HSMCIBase)
	regs.CR.Store(hsmci.SWRST)
	regs.CR.Store(hsmci.MCIEN)
	return &rig{m: m, regs: regs}
}

// poll reads the status until one of the bits in mask is set.
func (r *rig) poll(t *testing.T, mask hsmci.Status) hsmci.Status {
	t.Helper()
	for range 100 {
		if sr := r.regs.SR.Load(); sr&mask != 0 {
			return sr
		}
	}
	t.Fatalf("status %#x never set", mask)
	return 0
}

func (r *rig) command(t *testing.T, cmdr hsmci.Cmd, arg uint32) hsmci.Status {
	t.Helper()
	r.regs.ARGR.Store(arg)
	r.regs.CMDR.Store(cmdr)
	return r.poll(t, hsmci.CMDRDY)
}

func TestResetState(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	if !r.m.MCI.Enabled() {
		t.Fatal("interface not enabled")
	}
	want := hsmci.CMDRDY | hsmci.TXRDY | hsmci.NOTBUSY
	if sr := r.regs.SR.Load(); sr != want {
		t.Errorf("status after reset %#x, want %#x", sr, want)
	}
	if r.m.Unclocked != 0 {
		t.Errorf("%d unclocked accesses", r.m.Unclocked)
	}
}

func TestUnclockedAccess(t *testing.T) {
	m := New(soc.SAM3X8E, nil)
	hsmci.New(m, m.Chip.HSMCIBase).CR.Store(hsmci.SWRST)
	if m.Unclocked != 1 {
		t.Errorf("got %d unclocked accesses, want 1", m.Unclocked)
	}
}

func TestShortResponse(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	sr := r.command(t, hsmci.Cmdnb(8)|hsmci.Rsptyp48|hsmci.MAXLAT, 0x1aa)
	if sr&hsmci.CmdErrors != 0 {
		t.Fatalf("unexpected errors %#x", sr&hsmci.CmdErrors)
	}
	if rsp := r.regs.RSPR.Load(); rsp != 0x1aa {
		t.Errorf("response %#x, want 0x1aa", rsp)
	}
}

func TestResponseTiming(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	r.m.Timing.CmdReads = 3
	r.regs.CMDR.Store(hsmci.Cmdnb(13) | hsmci.Rsptyp48)
	for i := range 2 {
		if r.regs.SR.Load()&hsmci.CMDRDY != 0 {
			t.Fatalf("command ready after %d reads", i+1)
		}
	}
	if r.regs.SR.Load()&hsmci.CMDRDY == 0 {
		t.Fatal("command not ready after 3 reads")
	}
}

func TestLongResponse(t *testing.T) {
	card := NewMemCard(8)
	r := newRig(t, card)
	sr := r.command(t, hsmci.Cmdnb(9)|hsmci.Rsptyp136|hsmci.MAXLAT, uint32(card.RCA)<<16)
	if sr&hsmci.CmdErrors != 0 {
		t.Fatalf("unexpected errors %#x", sr&hsmci.CmdErrors)
	}
	var got [16]byte
	for i := range 4 {
		binary.BigEndian.PutUint32(got[4*i:], r.regs.RSPR.Load())
	}
	if got != card.CSD {
		t.Errorf("got CSD % x, want % x", got, card.CSD)
	}
}

func TestResponseErrors(t *testing.T) {
	tests := map[string]struct {
		faults Faults
		card   *Card
		cmdr   hsmci.Cmd
		want   hsmci.Status
	}{
		"NoCard":        {card: nil, cmdr: hsmci.Cmdnb(13) | hsmci.Rsptyp48, want: hsmci.RTOE},
		"NoResponse":    {faults: Faults{NoResponse: true}, cmdr: hsmci.Cmdnb(13) | hsmci.Rsptyp48, want: hsmci.RTOE},
		"CommandCRC":    {faults: Faults{CorruptCommandCRC: true}, cmdr: hsmci.Cmdnb(13) | hsmci.Rsptyp48, want: hsmci.RTOE},
		"ResponseCRC":   {faults: Faults{CorruptResponseCRC: true}, cmdr: hsmci.Cmdnb(13) | hsmci.Rsptyp48, want: hsmci.RCRCE},
		"ResponseIndex": {faults: Faults{WrongResponseIndex: true}, cmdr: hsmci.Cmdnb(13) | hsmci.Rsptyp48, want: hsmci.RINDE},
		"R3":            {cmdr: hsmci.Cmdnb(41) | hsmci.Rsptyp48, want: hsmci.RINDE | hsmci.RCRCE},
		"NoLong":        {cmdr: hsmci.Cmdnb(13) | hsmci.Rsptyp136, want: hsmci.RTOE},
		"Injected":      {faults: Faults{CmdStatus: hsmci.RENDE}, cmdr: hsmci.Cmdnb(13) | hsmci.Rsptyp48, want: hsmci.RENDE},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			card := tc.card
			if name != "NoCard" {
				card = NewMemCard(8)
			}
			r := newRig(t, card)
			r.m.Faults = tc.faults
			sr := r.command(t, tc.cmdr, 0)
			if got := sr & hsmci.CmdErrors; got != tc.want {
				t.Errorf("got errors %#x, want %#x", got, tc.want)
			}
		})
	}
}

func TestErrorsClearedByCommand(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	r.m.Faults.NoResponse = true
	if sr := r.command(t, hsmci.Cmdnb(13)|hsmci.Rsptyp48, 0); sr&hsmci.RTOE == 0 {
		t.Fatal("no response timeout")
	}
	r.m.Faults = Faults{}
	if sr := r.command(t, hsmci.Cmdnb(13)|hsmci.Rsptyp48, 0); sr&hsmci.CmdErrors != 0 {
		t.Errorf("errors %#x not cleared", sr&hsmci.CmdErrors)
	}
}

func TestBusy(t *testing.T) {
	card := NewMemCard(8)
	card.BusyReads = 3
	r := newRig(t, card)

	sr := r.command(t, hsmci.Cmdnb(12)|hsmci.RsptypR1B|hsmci.MAXLAT, 0)
	if sr&hsmci.NOTBUSY != 0 {
		t.Fatal("card not busy after R1b response")
	}
	reads := 0
	for r.regs.SR.Load()&hsmci.NOTBUSY == 0 {
		reads++
		if reads > 10 {
			t.Fatal("card stays busy")
		}
	}
	if reads != 2 {
		t.Errorf("busy for %d more reads, want 2", reads)
	}
}

func TestBusyStuck(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	r.m.Faults.BusyStuck = true
	r.command(t, hsmci.Cmdnb(12)|hsmci.RsptypR1B, 0)
	for range 50 {
		if r.regs.SR.Load()&hsmci.NOTBUSY != 0 {
			t.Fatal("stuck card released busy")
		}
	}
}

func TestInitSequence(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	card := r.m.Card
	r.command(t, hsmci.RsptypNone|hsmci.SpcmdInit|hsmci.OPDCMD, 0)
	if r.m.MCI.InitSequences != 1 {
		t.Errorf("got %d init sequences, want 1", r.m.MCI.InitSequences)
	}
	if card.Commands != 0 {
		t.Errorf("card received %d commands", card.Commands)
	}
}

func TestClockAndWidth(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	r.regs.MR.Store(hsmci.Clkdiv(104))
	r.regs.SDCR.Store(hsmci.Bus4)
	if got := r.m.MCI.BusClock(84e6); got != 84e6/210 {
		t.Errorf("bus clock %v, want %v", got, 84e6/210)
	}
	if got := r.m.MCI.BusWidth(); got != 4 {
		t.Errorf("bus width %d, want 4", got)
	}
}

// chain builds descriptors for bufs in the way a driver does.
func chain(m *Machine, bufs [][]uint32, read bool) []dmac.Descriptor {
	descs := make([]dmac.Descriptor, len(bufs))
	rdr := unsafe.Pointer(m.Chip.HSMCIBase + hsmci.OffRDR)
	tdr := unsafe.Pointer(m.Chip.HSMCIBase + hsmci.OffTDR)
	for i, buf := range bufs {
		d := &descs[i]
		mem := unsafe.Pointer(unsafe.SliceData(buf))
		if read {
			d.Src, d.Dst = rdr, mem
			d.CtrlB = dmac.FCPer2Mem
		} else {
			d.Src, d.Dst = mem, tdr
			d.CtrlB = dmac.FCMem2Per
		}
		d.CtrlA = dmac.BTSize(len(buf))
		if i+1 < len(bufs) {
			d.Next = &descs[i+1]
		}
	}
	return descs
}

func (r *rig) startDMA(descs []dmac.Descriptor, cfg dmac.Config) {
	d := r.m.DMAC
	d.EnableController()
	d.Configure(cfg)
	d.Start(&descs[0])
	d.Enable()
}

func TestReadTransfer(t *testing.T) {
	card := NewMemCard(8)
	r := newRig(t, card)

	want := make([]byte, 2*BlockSize)
	for i := range want {
		want[i] = byte(i * 7)
	}
	card.storage.WriteAt(want, 3*BlockSize)

	bufs := [][]uint32{make([]uint32, 100), make([]uint32, 156)}
	descs := chain(r.m, bufs, true)
	r.startDMA(descs, dmac.SrcH2SEL)

	r.regs.DMA.Store(hsmci.DMAEN)
	r.regs.BLKR.Store(hsmci.Block(BlockSize, 2))
	sr := r.command(t, hsmci.Cmdnb(18)|hsmci.Rsptyp48|hsmci.TrcmdStart|hsmci.TrdirRead|hsmci.TrtypMulti, 3)
	if sr&hsmci.XFRDONE != 0 {
		t.Fatal("transfer done with response")
	}
	sr = r.poll(t, hsmci.XFRDONE|hsmci.DataErrors)
	if sr&hsmci.DataErrors != 0 {
		t.Fatalf("data errors %#x", sr&hsmci.DataErrors)
	}
	if r.m.DMAC.TransferDone() {
		t.Error("dma done with data phase")
	}
	r.regs.SR.Load()
	if !r.m.DMAC.TransferDone() {
		t.Error("dma not done")
	}

	var got []byte
	for _, buf := range bufs {
		got = append(got, unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), 4*len(buf))...)
	}
	if !bytes.Equal(got, want) {
		t.Error("read data mismatch")
	}
	if len(r.m.DMAC.Chain) != 2 || r.m.DMAC.Transfers != 1 {
		t.Errorf("got chain of %d, %d transfers", len(r.m.DMAC.Chain), r.m.DMAC.Transfers)
	}
}

func TestWriteTransfer(t *testing.T) {
	card := NewMemCard(8)
	r := newRig(t, card)

	buf := make([]uint32, BlockSize/4)
	for i := range buf {
		buf[i] = uint32(i) * 0x01010101
	}
	r.startDMA(chain(r.m, [][]uint32{buf}, false), dmac.DstH2SEL)

	r.regs.DMA.Store(hsmci.DMAEN)
	r.regs.BLKR.Store(hsmci.Block(BlockSize, 1))
	r.command(t, hsmci.Cmdnb(24)|hsmci.Rsptyp48|hsmci.TrcmdStart|hsmci.TrdirWrite, 5)
	if sr := r.poll(t, hsmci.XFRDONE|hsmci.DataErrors); sr&hsmci.DataErrors != 0 {
		t.Fatalf("data errors %#x", sr&hsmci.DataErrors)
	}

	got := make([]byte, BlockSize)
	card.storage.ReadAt(got, 5*BlockSize)
	for i := range buf {
		if w := binary.LittleEndian.Uint32(got[4*i:]); w != buf[i] {
			t.Fatalf("word %d: got %#x, want %#x", i, w, buf[i])
		}
	}
}

func TestDataErrors(t *testing.T) {
	tests := map[string]struct {
		faults Faults
		dmaen  bool
		arg    uint32
		want   hsmci.Status
	}{
		"Overrun":     {dmaen: false, want: hsmci.OVRE},
		"OutOfRange":  {dmaen: true, arg: 100, want: hsmci.DTOE},
		"DataTimeout": {dmaen: true, faults: Faults{DataTimeout: true}, want: hsmci.DTOE},
		"Injected":    {dmaen: true, faults: Faults{DataStatus: hsmci.DCRCE}, want: hsmci.DCRCE},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newRig(t, NewMemCard(8))
			r.m.Faults = tc.faults
			buf := make([]uint32, BlockSize/4)
			r.startDMA(chain(r.m, [][]uint32{buf}, true), dmac.SrcH2SEL)
			if tc.dmaen {
				r.regs.DMA.Store(hsmci.DMAEN)
			}
			r.regs.BLKR.Store(hsmci.Block(BlockSize, 1))
			r.command(t, hsmci.Cmdnb(17)|hsmci.Rsptyp48|hsmci.TrcmdStart|hsmci.TrdirRead, tc.arg)
			sr := r.poll(t, hsmci.XFRDONE|hsmci.DataErrors)
			if got := sr & hsmci.DataErrors; got != tc.want {
				t.Errorf("got data errors %#x, want %#x", got, tc.want)
			}
		})
	}
}

func TestDMAStallAndDisable(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	r.m.Faults.DMAStall = true
	r.m.Timing.DisableSpins = 3
	buf := make([]uint32, BlockSize/4)
	r.startDMA(chain(r.m, [][]uint32{buf}, true), dmac.SrcH2SEL)
	r.regs.DMA.Store(hsmci.DMAEN)
	r.regs.BLKR.Store(hsmci.Block(BlockSize, 1))
	r.command(t, hsmci.Cmdnb(17)|hsmci.Rsptyp48|hsmci.TrcmdStart|hsmci.TrdirRead, 0)
	r.poll(t, hsmci.XFRDONE)
	for range 20 {
		r.regs.SR.Load()
	}
	if r.m.DMAC.TransferDone() {
		t.Fatal("stalled dma finished")
	}

	r.m.DMAC.Disable()
	spins := 0
	for r.m.DMAC.Enabled() {
		spins++
	}
	if spins != 2 {
		t.Errorf("channel disabled after %d spins, want 2", spins)
	}
	if r.m.DMAC.Transfers != 0 {
		t.Error("aborted transfer counted")
	}
}

func TestTrace(t *testing.T) {
	r := newRig(t, NewMemCard(8))
	r.m.Trace = true
	r.regs.ARGR.Store(0x42)
	r.regs.SR.Load()
	if len(r.m.Accesses) != 2 {
		t.Fatalf("got %d accesses, want 2", len(r.m.Accesses))
	}
	w := r.m.Writes()
	if len(w) != 1 || w[0].Addr != r.m.Chip.HSMCIBase+hsmci.OffARGR || w[0].Value != 0x42 {
		t.Errorf("unexpected writes %v", w)
	}
}
