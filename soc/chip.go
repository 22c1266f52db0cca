package soc

// Pin identifies an I/O line by its PIO controller and line number.
type Pin struct {
	Port byte // 'A', 'B', ...
	Line uint8
}

// Chip describes where a SAM3 variant places the peripherals used for SD card
// access.
type Chip struct {
	Name string

	HSMCIBase uintptr
	DMACBase  uintptr
	PMCBase   uintptr

	// Peripheral identifiers as used by the PMC
	HSMCIID uint8
	DMACID  uint8

	// DMA channel and hardware handshake interface wired to the HSMCI
	DMAChannel   int
	DMAHandshake uint8

	// MCCK, MCCDA, MCDA0..MCDA3, all on peripheral function A
	MCIPins [6]Pin
}

var SAM3X8E = Chip{
	Name:         "SAM3X8E",
	HSMCIBase:    0x4000_0000,
	DMACBase:     0x400c_4000,
	PMCBase:      0x400e_0600,
	HSMCIID:      21,
	DMACID:       39,
	DMAChannel:   0,
	DMAHandshake: 0,
	MCIPins: [6]Pin{
		{'A', 19}, {'A', 20}, {'A', 21}, {'A', 22}, {'A', 23}, {'A', 24},
	},
}

var SAM3U4E = Chip{
	Name:         "SAM3U4E",
	HSMCIBase:    0x4000_0000,
	DMACBase:     0x400b_0000,
	PMCBase:      0x400e_0400,
	HSMCIID:      17,
	DMACID:       28,
	DMAChannel:   0,
	DMAHandshake: 0,
	MCIPins: [6]Pin{
		{'A', 3}, {'A', 4}, {'A', 5}, {'A', 6}, {'A', 7}, {'A', 8},
	},
}
