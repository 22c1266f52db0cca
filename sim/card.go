package sim

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrOutOfRange = errors.New("block address out of range")
	ErrNoData     = errors.New("command has no data phase")
)

// Storage holds the card's blocks.
type Storage interface {
	io.ReaderAt
	io.WriterAt
}

// MemStorage is a Storage in memory.
type MemStorage []byte

func (s MemStorage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(s)) {
		return 0, io.EOF
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s MemStorage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(s)) {
		return 0, io.ErrShortWrite
	}
	n := copy(s[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Card status bits of R1 responses
const (
	StatusAppCmd       uint32 = 1 << 5
	StatusReadyForData uint32 = 1 << 8
	StatusStateTran    uint32 = 4 << 9
	StatusOutOfRange   uint32 = 1 << 31
)

const ocrBusy = 1 << 31

// Card models a block addressed SD card. It answers every command with a
// plausible response but doesn't track the card state machine.
type Card struct {
	storage Storage
	blocks  int64

	Status uint32
	OCR    uint32
	RCA    uint16
	CID    [16]byte
	CSD    [16]byte

	// Number of SR reads the card signals busy after an R1b command
	BusyReads int

	Commands int // commands received with a valid CRC
}

type response struct {
	token []byte // 6 bytes for short, 17 bytes for long responses, nil for none
	busy  bool
}

// NewCard returns a card backed by storage of the given size in bytes, which
// is truncated to whole blocks.
func NewCard(storage Storage, size int64) *Card {
	c := &Card{
		storage:   storage,
		blocks:    size / BlockSize,
		Status:    StatusReadyForData | StatusStateTran,
		OCR:       ocrBusy | 0x40ff_8000, // CCS, 2.7-3.6V
		RCA:       0x1234,
		BusyReads: 1,
	}
	copy(c.CID[:15], "\x03SDSAM3X\x10\x00\x00\x00\x01\x01\x4a")
	c.CID[15] = crcByte(c.CID[:15])

	// CSD version 2.0, C_SIZE in units of 512KiB
	csize := uint32(max(c.blocks/1024, 1) - 1)
	c.CSD[0] = 0x40
	c.CSD[1] = 0x0e
	c.CSD[3] = 0x32
	c.CSD[4] = 0x5b
	c.CSD[5] = 0x59
	c.CSD[7] = byte(csize >> 16 & 0x3f)
	c.CSD[8] = byte(csize >> 8)
	c.CSD[9] = byte(csize)
	c.CSD[10] = 0x7f
	c.CSD[11] = 0x80
	c.CSD[12] = 0x0a
	c.CSD[13] = 0x40
	c.CSD[15] = crcByte(c.CSD[:15])
	return c
}

// NewMemCard returns a card with the given number of zeroed blocks.
func NewMemCard(blocks int) *Card {
	return NewCard(make(MemStorage, blocks*BlockSize), int64(blocks*BlockSize))
}

func (c *Card) Blocks() int64 {
	return c.blocks
}

// command processes a 48-bit command token. ok is false if the card didn't
// accept the token and won't respond.
func (c *Card) command(frame [6]byte) (resp response, ok bool) {
	if frame[0]&0xc0 != 0x40 || frame[5] != crcByte(frame[:5]) {
		return response{}, false
	}
	c.Commands++

	idx := frame[0] & 0x3f
	arg := binary.BigEndian.Uint32(frame[1:5])

	switch idx {
	case 0: // GO_IDLE_STATE
		return response{}, true
	case 2, 10: // ALL_SEND_CID, SEND_CID
		return longResponse(c.CID), true
	case 9: // SEND_CSD
		return longResponse(c.CSD), true
	case 3: // SEND_RELATIVE_ADDR, R6
		return shortResponse(idx, uint32(c.RCA)<<16|c.Status&0x1fff), true
	case 8: // SEND_IF_COND, R7
		return shortResponse(idx, arg&0xfff), true
	case 41: // SD_SEND_OP_COND, R3 has no index and no CRC
		token := []byte{0x3f, 0, 0, 0, 0, 0xff}
		binary.BigEndian.PutUint32(token[1:5], c.OCR)
		return response{token: token}, true
	case 7, 12, 28, 29, 38: // R1b
		resp = shortResponse(idx, c.Status)
		resp.busy = true
		return resp, true
	case 17, 18, 24, 25:
		status := c.Status
		if int64(arg) >= c.blocks {
			status |= StatusOutOfRange
		}
		return shortResponse(idx, status), true
	case 55: // APP_CMD
		return shortResponse(idx, c.Status|StatusAppCmd), true
	}
	return shortResponse(idx, c.Status), true
}

func shortResponse(idx uint8, payload uint32) response {
	token := make([]byte, 6)
	token[0] = idx
	binary.BigEndian.PutUint32(token[1:5], payload)
	token[5] = crcByte(token[:5])
	return response{token: token}
}

func longResponse(reg [16]byte) response {
	token := make([]byte, 17)
	token[0] = 0x3f
	copy(token[1:], reg[:])
	return response{token: token}
}

// readData returns the data the card sends for a read command.
func (c *Card) readData(idx uint8, arg uint32, n int) ([]byte, error) {
	data := make([]byte, n)
	switch idx {
	case 17, 18:
		if int64(arg)+int64(n/BlockSize) > c.blocks {
			return nil, ErrOutOfRange
		}
		_, err := c.storage.ReadAt(data, int64(arg)*BlockSize)
		if err != nil && err != io.EOF {
			return nil, err
		}
	case 9, 10:
		copy(data, c.CSD[:])
		if idx == 10 {
			copy(data, c.CID[:])
		}
	}
	// Other data commands like SWITCH_FUNC or SEND_SCR return zeros.
	return data, nil
}

// writeData stores the data received for a write command.
func (c *Card) writeData(idx uint8, arg uint32, data []byte) error {
	switch idx {
	case 24, 25:
		if int64(arg)+int64(len(data)/BlockSize) > c.blocks {
			return ErrOutOfRange
		}
		_, err := c.storage.WriteAt(data, int64(arg)*BlockSize)
		return err
	}
	return ErrNoData
}
