// Package sdio defines the interface between SD/MMC host controller drivers
// and the protocol layer using them.
//
// A command is started with its CommandParams and completes asynchronously by
// a single call of the CompletionFunc, which carries the outcome of the
// command and of its data phase separately.
package sdio

import "github.com/clktmr/sam3x/debug"

const (
	BlockSize   = 512
	MaxIoBlocks = 65535
)

// InterfaceParams configure the bus for the following operations.
type InterfaceParams struct {
	ClockFullSpeed bool
	BusWidth       int // 1 or 4
}

type ResponseType uint8

const (
	ResponseNone      ResponseType = iota
	ResponseShort                  // 48 bit
	ResponseShortBusy              // 48 bit, card signals busy on DAT0 afterwards
	ResponseLong                   // 136 bit
)

func (r ResponseType) String() string {
	switch r {
	case ResponseNone:
		return "none"
	case ResponseShort:
		return "short"
	case ResponseShortBusy:
		return "short+busy"
	case ResponseLong:
		return "long"
	}
	return "invalid"
}

type Direction uint8

const (
	DirNone Direction = iota
	DirRead
	DirWrite
)

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirRead:
		return "read"
	case DirWrite:
		return "write"
	}
	return "invalid"
}

type CmdFlags uint8

const (
	NoCRCCheck    CmdFlags = 1 << iota // ignore response CRC errors, e.g. for R3
	NoCmdNumCheck                      // ignore response index errors, e.g. for R2, R3
)

// Buffer is one element of a data vector. Its length is the number of 32-bit
// words to transfer.
type Buffer []uint32

type CommandParams struct {
	CmdIndex     uint8
	ResponseType ResponseType
	Direction    Direction
	Argument     uint32
	NumBlocks    uint16
	DataVector   []Buffer
	Flags        CmdFlags
}

// HasData reports whether the command has a data phase.
func (p *CommandParams) HasData() bool {
	return p.Direction != DirNone
}

type CommandResults struct {
	ErrorCode CmdError
	Response  [4]uint32
}

// Err returns the first error of the command or its data phase, nil if both
// succeeded.
func (r *CommandResults) Err(dataErr DataError) error {
	if r.ErrorCode != CmdErrorNone {
		return r.ErrorCode
	}
	if dataErr != DataErrorNone {
		return dataErr
	}
	return nil
}

// CompletionFunc is called exactly once per started command, after the command
// and its data phase have both finished.
type CompletionFunc func(results CommandResults, dataErr DataError)

// CheckTransferVector reports whether the vector holds exactly numWords words.
func CheckTransferVector(vec []Buffer, numWords int) bool {
	total := 0
	for _, buf := range vec {
		total += len(buf)
	}
	return total == numWords
}

// NewTransferVector splits numBlocks blocks into at most maxDescriptors
// buffers of whole blocks.
func NewTransferVector(numBlocks int, maxDescriptors int) []Buffer {
	debug.Assert(numBlocks > 0 && maxDescriptors > 0, "invalid transfer vector size")
	n := min(numBlocks, maxDescriptors)
	vec := make([]Buffer, n)
	words := BlockSize / 4
	for i := range vec {
		blocks := numBlocks / n
		if i < numBlocks%n {
			blocks++
		}
		vec[i] = make(Buffer, blocks*words)
	}
	return vec
}
