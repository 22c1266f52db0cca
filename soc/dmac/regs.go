package dmac

import "github.com/clktmr/sam3x/soc"

// Register offsets from the DMAC base
const (
	OffGCFG   = 0x00
	OffEN     = 0x04
	OffSREQ   = 0x08
	OffCREQ   = 0x0c
	OffLAST   = 0x10
	OffEBCIER = 0x18
	OffEBCIDR = 0x1c
	OffEBCIMR = 0x20
	OffEBCISR = 0x24
	OffCHER   = 0x28
	OffCHDR   = 0x2c
	OffCHSR   = 0x30

	// Per channel registers start at OffChannel + n*ChannelStride
	OffChannel    = 0x3c
	ChannelStride = 0x28

	OffSADDR = 0x00
	OffDADDR = 0x04
	OffDSCR  = 0x08
	OffCTRLA = 0x0c
	OffCTRLB = 0x10
	OffCFG   = 0x14

	NumChannels = 6
)

const ENABLE = 1 << 0

// CtrlA is the CTRLA field of a channel or a descriptor.
type CtrlA uint32

const (
	BTSizeMask CtrlA = 0xffff

	SrcWidthByte     CtrlA = 0 << 24
	SrcWidthHalfWord CtrlA = 1 << 24
	SrcWidthWord     CtrlA = 2 << 24
	DstWidthByte     CtrlA = 0 << 28
	DstWidthHalfWord CtrlA = 1 << 28
	DstWidthWord     CtrlA = 2 << 28
	DONE             CtrlA = 1 << 31
)

// BTSize returns the buffer transfer size field for n transfers of the source
// width.
func BTSize(n int) CtrlA {
	return CtrlA(n) & BTSizeMask
}

// CtrlB is the CTRLB field of a channel or a descriptor.
type CtrlB uint32

const (
	SrcDscrFetchFromMem CtrlB = 0 << 16
	SrcDscrFetchDisable CtrlB = 1 << 16
	DstDscrFetchFromMem CtrlB = 0 << 20
	DstDscrFetchDisable CtrlB = 1 << 20

	FCMem2Mem CtrlB = 0 << 21
	FCMem2Per CtrlB = 1 << 21
	FCPer2Mem CtrlB = 2 << 21
	FCPer2Per CtrlB = 3 << 21
	FCMask    CtrlB = 7 << 21

	SrcIncrIncrementing CtrlB = 0 << 24
	SrcIncrFixed        CtrlB = 2 << 24
	SrcIncrMask         CtrlB = 3 << 24
	DstIncrIncrementing CtrlB = 0 << 28
	DstIncrFixed        CtrlB = 2 << 28
	DstIncrMask         CtrlB = 3 << 28

	IEN CtrlB = 1 << 30
)

// Config is the CFG register of a channel.
type Config uint32

const (
	SrcPerMask Config = 0xf
	DstPerMask Config = 0xf << 4
	SrcH2SEL   Config = 1 << 9
	DstH2SEL   Config = 1 << 13
	SOD        Config = 1 << 16 // stop on done
	LockIF     Config = 1 << 20
	LockB      Config = 1 << 21
	LockIFL    Config = 1 << 22

	AHBProtMask Config = 7 << 24

	FIFOCfgALAP Config = 0 << 28
	FIFOCfgHalf Config = 1 << 28
	FIFOCfgASAP Config = 2 << 28
	FIFOCfgMask Config = 3 << 28
)

func SrcPer(id uint8) Config {
	return Config(id) & SrcPerMask
}

func DstPer(id uint8) Config {
	return Config(id) << 4 & DstPerMask
}

func AHBProt(p uint8) Config {
	return Config(p) << 24 & AHBProtMask
}

type registers struct {
	en     soc.U32
	ebcisr soc.U32
	cher   soc.U32
	chdr   soc.U32
	chsr   soc.U32
}

type channelRegisters struct {
	saddr soc.U32
	daddr soc.U32
	dscr  soc.U32
	ctrla soc.R32[CtrlA]
	ctrlb soc.R32[CtrlB]
	cfg   soc.R32[Config]
}
