// Package sdhost drives the HSMCI peripheral as an SD/MMC host controller.
//
// A Host transports single commands and their data phase to the card. It
// doesn't know about the SD protocol itself, which is up to the client. All
// methods must be called from the event loop the Host was created with, and
// the completion callback is invoked from there as well.
//
// Calling a method in the wrong state or with invalid parameters is a defect
// of the client and traps in debug builds. Hardware errors are reported
// through the completion callback.
package sdhost

import (
	"log/slog"
	"unsafe"

	"github.com/clktmr/sam3x/clock"
	"github.com/clktmr/sam3x/cpu"
	"github.com/clktmr/sam3x/debug"
	"github.com/clktmr/sam3x/drivers/sdio"
	"github.com/clktmr/sam3x/eventloop"
	"github.com/clktmr/sam3x/soc"
	"github.com/clktmr/sam3x/soc/dmac"
	"github.com/clktmr/sam3x/soc/hsmci"
	"github.com/clktmr/sam3x/soc/pmc"
)

// DMA is the DMA channel wired to the HSMCI. The channel is owned exclusively
// by the Host.
type DMA interface {
	EnableController()
	Configure(cfg dmac.Config)
	Start(first *dmac.Descriptor)
	Enable()
	Disable()
	Enabled() bool
	TransferDone() bool
}

// PeriphClock switches peripheral clocks on and off.
type PeriphClock interface {
	EnablePeriphClock(id uint8)
	DisablePeriphClock(id uint8)
}

// Hardware bundles the peripherals used by a Host.
type Hardware struct {
	Regs *hsmci.Registers
	PMC  PeriphClock
	DMA  DMA
}

type initState uint8

const (
	initOff initState = iota
	initPowerOn
	initOn
)

type cmdState uint8

const (
	cmdReady cmdState = iota
	cmdBusy
	cmdWaitBusy
)

type dataState uint8

const (
	dataReady dataState = iota
	dataWaitXfrDone
	dataWaitDMA
)

// Host is an HSMCI host controller driver.
type Host struct {
	cfg  Config
	regs *hsmci.Registers
	pmc  PeriphClock
	dma  DMA
	clk  clock.Clock
	loop *eventloop.Loop
	done sdio.CompletionFunc
	log  *slog.Logger

	event *eventloop.Event
	live  bool

	initState initState
	cmdState  cmdState
	dataState dataState
	pending   bool

	cmdIndex     uint8
	responseType sdio.ResponseType
	flags        sdio.CmdFlags
	dataDir      sdio.Direction
	results      sdio.CommandResults
	dataErr      sdio.DataError

	powerOnTimer clock.PollTimer
	busyTimer    clock.PollTimer
	dmaTimer     clock.PollTimer

	descriptors []dmac.Descriptor
	chainLen    int
}

// New returns a Host using hw. The done callback receives the results of every
// command started with StartCommand.
func New(cfg Config, hw Hardware, clk clock.Clock, loop *eventloop.Loop, done sdio.CompletionFunc) *Host {
	cfg = cfg.withDefaults()
	debug.Assert(hw.Regs != nil && hw.PMC != nil && hw.DMA != nil, "incomplete hardware")
	debug.Assert(done != nil, "nil completion callback")
	return &Host{
		cfg:         cfg,
		regs:        hw.Regs,
		pmc:         hw.PMC,
		dma:         hw.DMA,
		clk:         clk,
		loop:        loop,
		done:        done,
		log:         debug.Logger(debug.ComponentSDHost),
		descriptors: make([]dmac.Descriptor, cfg.MaxIoDescriptors),
	}
}

// Open returns a Host using the peripherals of cfg.Chip on bus.
func Open(cfg Config, bus soc.Bus, clk clock.Clock, loop *eventloop.Loop, done sdio.CompletionFunc) *Host {
	chip := &cfg.Chip
	hw := Hardware{
		Regs: hsmci.New(bus, chip.HSMCIBase),
		PMC:  pmc.New(bus, chip.PMCBase),
		DMA:  dmac.New(bus, chip.DMACBase).Channel(chip.DMAChannel),
	}
	return New(cfg, hw, clk, loop, done)
}

func (h *Host) IsWideMode() bool {
	return h.cfg.WideMode
}

func (h *Host) MaxIoDescriptors() int {
	return h.cfg.MaxIoDescriptors
}

// Pending reports whether a command is in flight.
func (h *Host) Pending() bool {
	return h.pending
}

// Init registers the Host with its event loop. The controller stays off.
func (h *Host) Init() {
	debug.Assert(!h.live, "host already initialized")

	if h.cfg.ConfigurePins != nil {
		h.cfg.ConfigurePins(h.cfg.Chip.MCIPins[:])
	}
	h.event = h.loop.NewEvent(h.handleEvent)
	h.initState = initOff
	h.cmdState = cmdReady
	h.dataState = dataReady
	h.pending = false
	h.live = true
}

// Deinit turns the controller off and unregisters the Host from its event
// loop.
func (h *Host) Deinit() {
	debug.Assert(h.live, "host not initialized")

	h.resetInternal()
	h.event.Release()
	h.initState = initOff
	h.live = false
}

// Reset turns the controller off from any state, aborting a command in
// flight without calling the completion callback.
func (h *Host) Reset() {
	debug.Assert(h.live, "host not initialized")

	h.resetInternal()
	h.initState = initOff
}

// StartPowerOn powers the controller and starts sending the initialization
// clocks to the card. Call CompletePowerOn after the card's power up time.
func (h *Host) StartPowerOn(p sdio.InterfaceParams) {
	debug.Assert(h.live, "host not initialized")
	debug.Assert(h.initState == initOff, "power on while not off")
	h.checkInterfaceParams(p)

	h.pmc.EnablePeriphClock(h.cfg.Chip.HSMCIID)
	h.pmc.EnablePeriphClock(h.cfg.Chip.DMACID)

	r := h.regs
	r.CR.Store(hsmci.SWRST)
	r.DTOR.Store(hsmci.TimeoutMul1M | hsmci.TimeoutCyc(2))
	r.CSTOR.Store(hsmci.TimeoutMul1M | hsmci.TimeoutCyc(2))
	r.CFG.Store(hsmci.FIFOMODE | hsmci.FERRCTRL)
	r.MR.Store(hsmci.PwsdivMask)
	r.CR.Store(hsmci.MCIEN | hsmci.PWSEN)

	h.configureInterface(p)

	// The controller has a special command that sends the 74 initialization
	// clocks to the card. CompletePowerOn waits for it to finish.
	r.MR.ClearBits(hsmci.WRPROOF | hsmci.RDPROOF | hsmci.FBYTE)
	r.ARGR.Store(0)
	r.CMDR.Store(hsmci.RsptypNone | hsmci.SpcmdInit | hsmci.OPDCMD)
	h.powerOnTimer.SetAfter(h.clk, powerOnTimeout)

	h.initState = initPowerOn
	h.log.Info("power on", "chip", h.cfg.Chip.Name, "fullspeed", p.ClockFullSpeed, "buswidth", p.BusWidth)
}

// CompletePowerOn makes the Host ready for commands.
func (h *Host) CompletePowerOn() {
	debug.Assert(h.live, "host not initialized")
	debug.Assert(h.initState == initPowerOn, "power on not started")

	// Bounded by hardware: 74 clocks at the init speed are less than 200µs.
	for h.regs.SR.LoadBits(hsmci.CMDRDY) == 0 {
		if h.powerOnTimer.Expired(h.clk) {
			h.log.Warn("initialization clocks not finished")
			break
		}
	}

	h.initState = initOn
	h.pending = false
	h.cmdState = cmdReady
	h.dataState = dataReady
}

// ReconfigureInterface changes bus speed and width between commands.
func (h *Host) ReconfigureInterface(p sdio.InterfaceParams) {
	debug.Assert(h.live, "host not initialized")
	debug.Assert(h.initState == initOn, "host not on")
	debug.Assert(!h.pending, "reconfigure while command pending")
	debug.Assert(h.cmdState == cmdReady && h.dataState == dataReady, "reconfigure while busy")
	h.checkInterfaceParams(p)

	h.configureInterface(p)
	h.log.Debug("reconfigure", "fullspeed", p.ClockFullSpeed, "buswidth", p.BusWidth)
}

func (h *Host) checkInterfaceParams(p sdio.InterfaceParams) {
	debug.Assert(p.BusWidth == 1 || p.BusWidth == 4, "invalid bus width")
	debug.Assert(p.BusWidth == 1 || h.cfg.WideMode, "4-bit bus without wide mode")
}

func (h *Host) configureInterface(p sdio.InterfaceParams) {
	h.regs.MR.StoreBits(hsmci.ClkdivMask, hsmci.Clkdiv(h.cfg.clkdiv(p.ClockFullSpeed)))
	h.regs.SDCR.Store(h.cfg.sdcr(p.BusWidth))
}

func (h *Host) resetInternal() {
	if h.initState != initOff {
		if h.dataState != dataReady {
			h.stopDMA()
		}
		h.regs.CR.Store(hsmci.MCIDIS)
		h.pmc.DisablePeriphClock(h.cfg.Chip.HSMCIID)
		h.log.Info("power off")
	}
	h.releaseChain()
	h.pending = false
	h.cmdState = cmdReady
	h.dataState = dataReady

	h.event.Reset()
}

// stopDMA disables the channel and waits until the hardware has finished
// the current burst.
func (h *Host) stopDMA() {
	h.dma.Disable()
	for h.dma.Enabled() {
	}
}

// releaseChain drops the references to the client's buffers.
func (h *Host) releaseChain() {
	clear(h.descriptors[:h.chainLen])
	h.chainLen = 0
}

// StartCommand sends a command to the card. The completion callback is called
// once the command, any busy signaling and the data phase have finished.
func (h *Host) StartCommand(p *sdio.CommandParams) {
	debug.Assert(h.live, "host not initialized")
	debug.Assert(h.initState == initOn, "host not on")
	debug.Assert(!h.pending, "command already pending")
	debug.Assert(h.cmdState == cmdReady && h.dataState == dataReady, "state machines not idle")

	cmdr := hsmci.Cmdnb(p.CmdIndex) | hsmci.SpcmdStd

	switch p.ResponseType {
	case sdio.ResponseNone:
	case sdio.ResponseShort:
		cmdr |= hsmci.MAXLAT | hsmci.Rsptyp48
	case sdio.ResponseShortBusy:
		cmdr |= hsmci.MAXLAT | hsmci.RsptypR1B
	case sdio.ResponseLong:
		cmdr |= hsmci.MAXLAT | hsmci.Rsptyp136
	default:
		debug.Unreachable("invalid response type")
	}

	r := h.regs
	if p.HasData() {
		cmdr |= h.startData(p)

		r.DMA.Store(hsmci.DMAEN)
		r.MR.SetBits(hsmci.WRPROOF | hsmci.RDPROOF)
		r.MR.ClearBits(hsmci.FBYTE)
		r.BLKR.Store(hsmci.Block(sdio.BlockSize, p.NumBlocks))
	} else {
		r.DMA.Store(0)
		r.MR.ClearBits(hsmci.WRPROOF | hsmci.RDPROOF | hsmci.FBYTE)
		r.BLKR.Store(0)
	}

	// Writing CMDR starts the command on the bus.
	r.ARGR.Store(p.Argument)
	r.CMDR.Store(cmdr)

	h.cmdState = cmdBusy
	h.cmdIndex = p.CmdIndex
	h.responseType = p.ResponseType
	h.flags = p.Flags
	h.pending = true
	h.results = sdio.CommandResults{ErrorCode: sdio.CmdErrorNone}
	h.dataErr = sdio.DataErrorNone

	h.log.Debug("start command", "cmd", p.CmdIndex, "arg", p.Argument,
		"response", p.ResponseType, "dir", p.Direction, "blocks", p.NumBlocks)

	h.event.Trigger()
}

// startData validates the data vector, builds the descriptor chain and starts
// the DMA channel. It returns the transfer bits for the command register.
func (h *Host) startData(p *sdio.CommandParams) (cmdr hsmci.Cmd) {
	debug.Assert(p.Direction == sdio.DirRead || p.Direction == sdio.DirWrite, "invalid data direction")
	debug.Assert(p.NumBlocks >= 1 && int(p.NumBlocks) <= sdio.MaxIoBlocks, "invalid block count")
	debug.Assert(len(p.DataVector) >= 1, "empty data vector")
	debug.Assert(len(p.DataVector) <= len(h.descriptors), "too many data descriptors")
	debug.Assert(sdio.CheckTransferVector(p.DataVector, int(p.NumBlocks)*(sdio.BlockSize/4)), "data vector doesn't match block count")

	isRead := p.Direction == sdio.DirRead
	hwid := h.cfg.Chip.DMAHandshake

	h.dma.EnableController()
	debug.Assert(!h.dma.Enabled(), "dma channel busy")

	cfg := dmac.SOD | dmac.AHBProt(1) | dmac.FIFOCfgALAP
	if isRead {
		cfg |= dmac.SrcH2SEL | dmac.SrcPer(hwid)
		cmdr |= hsmci.TrdirRead
	} else {
		cfg |= dmac.DstH2SEL | dmac.DstPer(hwid)
		cmdr |= hsmci.TrdirWrite
	}

	cmdr |= hsmci.TrcmdStart
	if p.NumBlocks == 1 {
		cmdr |= hsmci.TrtypSingle
	} else {
		cmdr |= hsmci.TrtypMulti
	}

	h.dma.Configure(cfg)

	ctrlb := dmac.SrcDscrFetchFromMem | dmac.DstDscrFetchFromMem | dmac.IEN
	var fifo unsafe.Pointer
	if isRead {
		ctrlb |= dmac.FCPer2Mem | dmac.SrcIncrFixed | dmac.DstIncrIncrementing
		fifo = unsafe.Pointer(h.regs.RDR.Addr())
	} else {
		ctrlb |= dmac.FCMem2Per | dmac.SrcIncrIncrementing | dmac.DstIncrFixed
		fifo = unsafe.Pointer(h.regs.TDR.Addr())
	}

	n := len(p.DataVector)
	for i, buf := range p.DataVector {
		debug.Assert(len(buf) > 0 && len(buf) <= int(dmac.BTSizeMask), "invalid buffer size")

		d := &h.descriptors[i]
		mem := unsafe.Pointer(unsafe.SliceData(buf))
		if isRead {
			d.Src, d.Dst = fifo, mem
		} else {
			d.Src, d.Dst = mem, fifo
		}
		d.CtrlA = dmac.BTSize(len(buf)) | dmac.SrcWidthWord | dmac.DstWidthWord
		d.CtrlB = ctrlb
		if i+1 < n {
			d.Next = &h.descriptors[i+1]
		} else {
			d.Next = nil
		}
	}
	h.chainLen = n

	// The DMAC fetches the descriptors from memory.
	cpu.DMABarrier()

	h.dma.Start(&h.descriptors[0])
	h.dma.Enable()

	h.dataState = dataWaitXfrDone
	h.dataDir = p.Direction

	return cmdr
}

func (h *Host) handleEvent() {
	debug.Assert(h.initState == initOn, "event while host not on")
	debug.Assert(h.pending, "event without pending command")
	debug.Assert(h.cmdState != cmdReady || h.dataState != dataReady, "event while idle")

	// Both state machines see the same snapshot.
	status := h.regs.SR.Load()
	h.workCmd(status)
	h.workData(status)

	if h.cmdState != cmdReady || h.dataState != dataReady {
		h.event.Trigger()
		return
	}

	h.pending = false

	if err := h.results.Err(h.dataErr); err != nil {
		h.log.Warn("command failed", "cmd", h.cmdIndex, "cmderr", h.results.ErrorCode, "dataerr", h.dataErr)
	}

	h.done(h.results, h.dataErr)
}

func (h *Host) workCmd(status hsmci.Status) {
	for h.cmdState != cmdReady {
		switch h.cmdState {
		case cmdBusy:
			if status&hsmci.CMDRDY == 0 {
				return
			}

			if h.responseType != sdio.ResponseNone {
				h.results.ErrorCode = h.responseError(status)
				if h.results.ErrorCode == sdio.CmdErrorNone {
					// RSPR returns the next response word on each read.
					h.results.Response[0] = h.regs.RSPR.Load()
					if h.responseType == sdio.ResponseLong {
						h.results.Response[1] = h.regs.RSPR.Load()
						h.results.Response[2] = h.regs.RSPR.Load()
						h.results.Response[3] = h.regs.RSPR.Load()
					}

					if h.responseType == sdio.ResponseShortBusy {
						h.cmdState = cmdWaitBusy
						h.busyTimer.SetAfter(h.clk, h.cfg.BusyTimeout)
						continue
					}
				}
			}

			h.cmdState = cmdReady

		case cmdWaitBusy:
			if status&hsmci.NOTBUSY == 0 {
				if !h.busyTimer.Expired(h.clk) {
					return
				}
				h.results.ErrorCode = sdio.CmdErrorBusyTimeout
			}
			h.cmdState = cmdReady

		default:
			debug.Unreachable("invalid command state")
			return
		}
	}
}

// responseError returns the first error flagged in status, in order of
// precedence.
func (h *Host) responseError(status hsmci.Status) sdio.CmdError {
	if h.flags&sdio.NoCRCCheck == 0 && status&hsmci.RCRCE != 0 {
		return sdio.CmdErrorResponseChecksum
	}
	if status&hsmci.RTOE != 0 {
		return sdio.CmdErrorResponseTimeout
	}
	if h.flags&sdio.NoCmdNumCheck == 0 && status&hsmci.RINDE != 0 {
		return sdio.CmdErrorBadResponseCmd
	}
	if status&(hsmci.CSTOE|hsmci.RENDE|hsmci.RDIRE) != 0 {
		return sdio.CmdErrorOther
	}
	return sdio.CmdErrorNone
}

func (h *Host) workData(status hsmci.Status) {
	if h.dataState == dataReady {
		return
	}

	if h.dataState == dataWaitXfrDone {
		switch {
		case status&hsmci.DCRCE != 0:
			h.dataErr = sdio.DataErrorChecksum
		case status&hsmci.DTOE != 0:
			h.dataErr = sdio.DataErrorTimeout
		case status&hsmci.OVRE != 0:
			h.dataErr = sdio.DataErrorRxOverrun
		case status&hsmci.UNRE != 0:
			h.dataErr = sdio.DataErrorTxOverrun
		case status&hsmci.XFRDONE == 0:
			return
		}

		h.dataState = dataWaitDMA
		h.dmaTimer.SetAfter(h.clk, DMATimeout)
	}

	if h.dataState == dataWaitDMA {
		if h.dataErr == sdio.DataErrorNone && !h.dma.TransferDone() {
			if !h.dmaTimer.Expired(h.clk) {
				return
			}
			h.dataErr = sdio.DataErrorDMA
		}

		h.stopDMA()

		// Make the memory written by the DMAC visible.
		if h.dataDir == sdio.DirRead {
			cpu.DMABarrier()
		}

		h.releaseChain()
		h.dataState = dataReady
	}
}
