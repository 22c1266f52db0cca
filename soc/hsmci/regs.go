// Package hsmci describes the registers of the High Speed MultiMedia Card
// Interface.
package hsmci

import (
	"github.com/clktmr/sam3x/soc"
)

// Register offsets from the HSMCI base
const (
	OffCR    = 0x00
	OffMR    = 0x04
	OffDTOR  = 0x08
	OffSDCR  = 0x0c
	OffARGR  = 0x10
	OffCMDR  = 0x14
	OffBLKR  = 0x18
	OffCSTOR = 0x1c
	OffRSPR  = 0x20 // 4 registers, reading any of them returns the next word
	OffRDR   = 0x30
	OffTDR   = 0x34
	OffSR    = 0x40
	OffIER   = 0x44
	OffIDR   = 0x48
	OffIMR   = 0x4c
	OffDMA   = 0x50
	OffCFG   = 0x54
	OffWPMR  = 0xe4

	Size = 0x400
)

type Control uint32

const (
	MCIEN  Control = 1 << 0
	MCIDIS Control = 1 << 1
	PWSEN  Control = 1 << 2
	PWSDIS Control = 1 << 3
	SWRST  Control = 1 << 7
)

type Mode uint32

const (
	ClkdivMask Mode = 0xff
	PwsdivMask Mode = 0x7 << 8
	RDPROOF    Mode = 1 << 11
	WRPROOF    Mode = 1 << 12
	FBYTE      Mode = 1 << 13
	PADV       Mode = 1 << 14
)

func Clkdiv(div uint32) Mode {
	return Mode(div) & ClkdivMask
}

type Timeout uint32

const (
	TimeoutCycMask Timeout = 0xf
	TimeoutMul1    Timeout = 0 << 4
	TimeoutMul16   Timeout = 1 << 4
	TimeoutMul128  Timeout = 2 << 4
	TimeoutMul256  Timeout = 3 << 4
	TimeoutMul1K   Timeout = 4 << 4
	TimeoutMul4K   Timeout = 5 << 4
	TimeoutMul64K  Timeout = 6 << 4
	TimeoutMul1M   Timeout = 7 << 4
)

func TimeoutCyc(n uint32) Timeout {
	return Timeout(n) & TimeoutCycMask
}

type SDCard uint32

const (
	SlotA    SDCard = 0
	SlotB    SDCard = 1
	SlotMask SDCard = 0x3

	Bus1    SDCard = 0 << 6
	Bus4    SDCard = 2 << 6
	Bus8    SDCard = 3 << 6
	BusMask SDCard = 0x3 << 6
)

type Cmd uint32

const (
	CmdnbMask Cmd = 0x3f

	RsptypNone  Cmd = 0 << 6
	Rsptyp48    Cmd = 1 << 6
	Rsptyp136   Cmd = 2 << 6
	RsptypR1B   Cmd = 3 << 6
	RsptypMask  Cmd = 3 << 6
	SpcmdStd    Cmd = 0 << 8
	SpcmdInit   Cmd = 1 << 8
	SpcmdMask   Cmd = 7 << 8
	OPDCMD      Cmd = 1 << 11
	MAXLAT      Cmd = 1 << 12
	TrcmdNoData Cmd = 0 << 16
	TrcmdStart  Cmd = 1 << 16
	TrcmdStop   Cmd = 2 << 16
	TrcmdMask   Cmd = 3 << 16
	TrdirWrite  Cmd = 0 << 18
	TrdirRead   Cmd = 1 << 18
	TrtypSingle Cmd = 0 << 19
	TrtypMulti  Cmd = 1 << 19
	TrtypMask   Cmd = 7 << 19
)

func Cmdnb(index uint8) Cmd {
	return Cmd(index) & CmdnbMask
}

// Block packs the block length and block count of the BLKR register.
func Block(length uint32, count uint16) uint32 {
	return length<<16 | uint32(count)
}

type Status uint32

const (
	CMDRDY    Status = 1 << 0
	RXRDY     Status = 1 << 1
	TXRDY     Status = 1 << 2
	BLKE      Status = 1 << 3
	DTIP      Status = 1 << 4
	NOTBUSY   Status = 1 << 5
	SDIOIRQA  Status = 1 << 8
	SDIOWAIT  Status = 1 << 12
	CSRCV     Status = 1 << 13
	RINDE     Status = 1 << 16 // response index error
	RDIRE     Status = 1 << 17 // response direction error
	RCRCE     Status = 1 << 18 // response CRC error
	RENDE     Status = 1 << 19 // response end bit error
	RTOE      Status = 1 << 20 // response timeout
	DCRCE     Status = 1 << 21 // data CRC error
	DTOE      Status = 1 << 22 // data timeout
	CSTOE     Status = 1 << 23 // completion signal timeout
	BLKOVRE   Status = 1 << 24
	DMADONE   Status = 1 << 25
	FIFOEMPTY Status = 1 << 26
	XFRDONE   Status = 1 << 27
	ACKRCV    Status = 1 << 28
	ACKRCVE   Status = 1 << 29
	OVRE      Status = 1 << 30 // receive overrun
	UNRE      Status = 1 << 31 // transmit underrun

	CmdErrors  = RINDE | RDIRE | RCRCE | RENDE | RTOE | CSTOE
	DataErrors = DCRCE | DTOE | OVRE | UNRE
)

type DMAFlags uint32

const (
	DMAOffsetMask DMAFlags = 0x3
	DMAEN         DMAFlags = 1 << 8
	ROPT          DMAFlags = 1 << 12
)

type Config uint32

const (
	FIFOMODE Config = 1 << 0
	FERRCTRL Config = 1 << 4
	HSMODE   Config = 1 << 8
	LSYNC    Config = 1 << 12
)

// Registers of one HSMCI instance.
type Registers struct {
	CR    soc.R32[Control]
	MR    soc.R32[Mode]
	DTOR  soc.R32[Timeout]
	SDCR  soc.R32[SDCard]
	ARGR  soc.U32
	CMDR  soc.R32[Cmd]
	BLKR  soc.U32
	CSTOR soc.R32[Timeout]
	RSPR  soc.U32
	RDR   soc.U32
	TDR   soc.U32
	SR    soc.R32[Status]
	IER   soc.R32[Status]
	IDR   soc.R32[Status]
	IMR   soc.R32[Status]
	DMA   soc.R32[DMAFlags]
	CFG   soc.R32[Config]
}

func New(bus soc.Bus, base uintptr) *Registers {
	return &Registers{
		CR:    soc.NewR32[Control](bus, base+OffCR),
		MR:    soc.NewR32[Mode](bus, base+OffMR),
		DTOR:  soc.NewR32[Timeout](bus, base+OffDTOR),
		SDCR:  soc.NewR32[SDCard](bus, base+OffSDCR),
		ARGR:  soc.NewR32[uint32](bus, base+OffARGR),
		CMDR:  soc.NewR32[Cmd](bus, base+OffCMDR),
		BLKR:  soc.NewR32[uint32](bus, base+OffBLKR),
		CSTOR: soc.NewR32[Timeout](bus, base+OffCSTOR),
		RSPR:  soc.NewR32[uint32](bus, base+OffRSPR),
		RDR:   soc.NewR32[uint32](bus, base+OffRDR),
		TDR:   soc.NewR32[uint32](bus, base+OffTDR),
		SR:    soc.NewR32[Status](bus, base+OffSR),
		IER:   soc.NewR32[Status](bus, base+OffIER),
		IDR:   soc.NewR32[Status](bus, base+OffIDR),
		IMR:   soc.NewR32[Status](bus, base+OffIMR),
		DMA:   soc.NewR32[DMAFlags](bus, base+OffDMA),
		CFG:   soc.NewR32[Config](bus, base+OffCFG),
	}
}
