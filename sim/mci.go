package sim

import (
	"encoding/binary"

	"github.com/clktmr/sam3x/soc/hsmci"
)

// MCI simulates the HSMCI and the bus to the card.
type MCI struct {
	m *Machine

	regs    [hsmci.Size / 4]uint32 // plain read/write registers
	enabled bool
	status  hsmci.Status

	cmdr    hsmci.Cmd
	arg     uint32
	resp    response
	accept  bool
	cmd     countdown
	rsp     [4]uint32
	rspNext int

	data   countdown
	busy   countdown
	words  int // size of the data phase
	noData bool

	InitSequences int // initialization clock sequences sent
	Commands      int // commands sent, excluding initialization
}

func newMCI(m *Machine) *MCI {
	c := &MCI{m: m}
	c.reset()
	return c
}

func (c *MCI) reset() {
	clear(c.regs[:])
	c.enabled = false
	c.status = hsmci.CMDRDY | hsmci.TXRDY | hsmci.NOTBUSY
	c.cmd.stop()
	c.data.stop()
	c.busy.stop()
	c.rspNext = 0
}

// Enabled reports whether the interface is enabled by the control register.
func (c *MCI) Enabled() bool {
	return c.enabled
}

func (c *MCI) Status() hsmci.Status {
	return c.status
}

func (c *MCI) reg(off uintptr) uint32 {
	return c.regs[off/4]
}

// ClockDivider returns the CLKDIV field of the mode register.
func (c *MCI) ClockDivider() uint32 {
	return uint32(hsmci.Mode(c.reg(hsmci.OffMR)) & hsmci.ClkdivMask)
}

// BusClock returns the card clock for the master clock mck.
func (c *MCI) BusClock(mck float64) float64 {
	return mck / float64(2*(c.ClockDivider()+1))
}

// BusWidth returns the number of data lines selected by the SD card register.
func (c *MCI) BusWidth() int {
	switch hsmci.SDCard(c.reg(hsmci.OffSDCR)) & hsmci.BusMask {
	case hsmci.Bus4:
		return 4
	case hsmci.Bus8:
		return 8
	}
	return 1
}

func (c *MCI) load(off uintptr) uint32 {
	switch off {
	case hsmci.OffCR, hsmci.OffCMDR, hsmci.OffARGR, hsmci.OffTDR, hsmci.OffIER, hsmci.OffIDR:
		return 0 // write only
	case hsmci.OffSR:
		c.m.tick()
		sr := c.status
		c.status &^= hsmci.OVRE | hsmci.UNRE
		return uint32(sr)
	case hsmci.OffRSPR, hsmci.OffRSPR + 4, hsmci.OffRSPR + 8, hsmci.OffRSPR + 12:
		v := c.rsp[c.rspNext]
		c.rspNext = (c.rspNext + 1) % len(c.rsp)
		return v
	case hsmci.OffRDR:
		return 0
	}
	return c.reg(off)
}

func (c *MCI) store(off uintptr, v uint32) {
	switch off {
	case hsmci.OffCR:
		c.control(hsmci.Control(v))
	case hsmci.OffCMDR:
		c.regs[off/4] = v
		c.command(hsmci.Cmd(v))
	case hsmci.OffIER:
		c.regs[hsmci.OffIMR/4] |= v
	case hsmci.OffIDR:
		c.regs[hsmci.OffIMR/4] &^= v
	case hsmci.OffSR, hsmci.OffIMR, hsmci.OffRDR, hsmci.OffTDR:
		// read only or unused with DMA
	default:
		c.regs[off/4] = v
	}
}

func (c *MCI) control(v hsmci.Control) {
	if v&hsmci.SWRST != 0 {
		c.reset()
	}
	if v&hsmci.MCIEN != 0 {
		c.enabled = true
	}
	if v&hsmci.MCIDIS != 0 {
		c.enabled = false
		c.cmd.stop()
		c.data.stop()
		c.busy.stop()
	}
}

func (c *MCI) command(cmdr hsmci.Cmd) {
	if !c.enabled {
		c.m.log.Warn("command while interface disabled", "cmdr", uint32(cmdr))
		return
	}

	c.cmdr = cmdr
	c.arg = c.reg(hsmci.OffARGR)
	c.rspNext = 0
	c.status &^= hsmci.CMDRDY | hsmci.CmdErrors | hsmci.DataErrors | hsmci.XFRDONE
	c.cmd.start(c.m.Timing.CmdReads)
	c.data.stop()

	if cmdr&hsmci.SpcmdMask == hsmci.SpcmdInit {
		c.InitSequences++
		c.resp, c.accept = response{}, false
		return
	}
	c.Commands++

	var frame [6]byte
	frame[0] = 0x40 | byte(cmdr&hsmci.CmdnbMask)
	binary.BigEndian.PutUint32(frame[1:5], c.arg)
	frame[5] = crcByte(frame[:5])
	if c.m.Faults.CorruptCommandCRC {
		frame[5] ^= 0x02
	}

	c.resp, c.accept = response{}, false
	if c.m.Card != nil && !c.m.Faults.NoResponse {
		c.resp, c.accept = c.m.Card.command(frame)
	}
	c.m.log.Debug("command", "cmd", frame[0]&0x3f, "arg", c.arg, "accepted", c.accept)
}

func (c *MCI) tickCmd() {
	if !c.cmd.tick() {
		return
	}
	cmdr := c.cmdr
	if cmdr&hsmci.SpcmdMask == hsmci.SpcmdInit {
		c.status |= hsmci.CMDRDY
		return
	}

	rsptyp := cmdr & hsmci.RsptypMask
	if rsptyp != hsmci.RsptypNone {
		c.status |= c.response(rsptyp)
	}
	c.status |= c.m.Faults.CmdStatus | hsmci.CMDRDY

	failed := c.status&hsmci.RTOE != 0
	if !failed && rsptyp == hsmci.RsptypR1B && c.resp.busy {
		c.status &^= hsmci.NOTBUSY
		if c.m.Faults.BusyStuck {
			c.busy.start(-1)
		} else {
			c.busy.start(c.m.Card.BusyReads)
		}
	}
	if cmdr&hsmci.TrcmdMask == hsmci.TrcmdStart {
		blkr := c.reg(hsmci.OffBLKR)
		c.words = int(blkr>>16) * int(blkr&0xffff) / 4
		c.noData = failed
		c.data.start(c.m.Timing.DataReads)
	}
}

// response latches the card's response into RSPR and returns the error flags
// the controller derives from it.
func (c *MCI) response(rsptyp hsmci.Cmd) (errs hsmci.Status) {
	c.rsp = [4]uint32{}
	token := c.resp.token
	long := rsptyp == hsmci.Rsptyp136
	if !c.accept || token == nil || long != (len(token) == 17) {
		return hsmci.RTOE
	}

	if long {
		for i := range c.rsp {
			c.rsp[i] = binary.BigEndian.Uint32(token[1+4*i:])
		}
		if token[16] != crcByte(token[1:16]) {
			errs |= hsmci.RCRCE
		}
	} else {
		c.rsp[0] = binary.BigEndian.Uint32(token[1:5])
		if token[0]&0x3f != byte(c.cmdr&hsmci.CmdnbMask) {
			errs |= hsmci.RINDE
		}
		if token[5] != crcByte(token[:5]) {
			errs |= hsmci.RCRCE
		}
	}
	if c.m.Faults.WrongResponseIndex {
		errs |= hsmci.RINDE
	}
	if c.m.Faults.CorruptResponseCRC {
		errs |= hsmci.RCRCE
	}
	return errs
}

func (c *MCI) tickBusy() {
	if c.busy.tick() {
		c.status |= hsmci.NOTBUSY
	}
}

func (c *MCI) tickData() {
	if !c.data.tick() {
		return
	}

	// A card that missed the command doesn't send data either.
	if c.m.Faults.DataTimeout || c.noData || c.m.Card == nil {
		c.status |= hsmci.DTOE
		return
	}

	dmaEnabled := hsmci.DMAFlags(c.reg(hsmci.OffDMA))&hsmci.DMAEN != 0
	idx := uint8(c.cmdr & hsmci.CmdnbMask)
	if c.cmdr&hsmci.TrdirRead != 0 {
		data, err := c.m.Card.readData(idx, c.arg, c.words*4)
		if err != nil {
			c.m.log.Debug("read failed", "cmd", idx, "err", err)
			c.status |= hsmci.DTOE
			return
		}
		words := make([]uint32, c.words)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(data[4*i:])
		}
		if !dmaEnabled || !c.m.DMAC.receive(words) {
			c.status |= hsmci.OVRE
			return
		}
	} else {
		var words []uint32
		ok := dmaEnabled
		if ok {
			words, ok = c.m.DMAC.send(c.words)
		}
		if !ok {
			c.status |= hsmci.UNRE
			return
		}
		data := make([]byte, 4*len(words))
		for i, w := range words {
			binary.LittleEndian.PutUint32(data[4*i:], w)
		}
		if err := c.m.Card.writeData(idx, c.arg, data); err != nil {
			c.m.log.Debug("write failed", "cmd", idx, "err", err)
			c.status |= hsmci.DCRCE
			return
		}
	}

	c.status |= c.m.Faults.DataStatus | hsmci.XFRDONE
}
