package sim

import "github.com/sigurn/crc8"

// CRC-7/MMC computed as an 8-bit CRC with the polynomial shifted left by one.
// The CRC ends up in the upper 7 bits.
var crc7Table = crc8.MakeTable(crc8.Params{Poly: 0x12, Init: 0x00, RefIn: false, RefOut: false, XorOut: 0x00, Check: 0xea, Name: "CRC-7/MMC"})

func crc7(data []byte) uint8 {
	csum := crc8.Init(crc7Table)
	csum = crc8.Update(csum, data, crc7Table)
	csum = crc8.Complete(csum, crc7Table)
	return csum >> 1
}

// crcByte returns the last byte of a token: the CRC followed by the end bit.
func crcByte(data []byte) byte {
	return crc7(data)<<1 | 1
}
