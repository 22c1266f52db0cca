package hsmci

// Bus frequencies for card identification and data transfer
const (
	InitSpeed = 400e3
	FullSpeed = 25e6
)

// ClockDivider returns the CLKDIV value for the card clock nearest to but not
// above hz, given the master clock mck. The card clock is mck/(2*(CLKDIV+1)).
func ClockDivider(mck, hz float64) uint32 {
	div := mck/(2*hz) - 0.001
	if div < 0 {
		return 0
	}
	if div > float64(ClkdivMask) {
		return uint32(ClkdivMask)
	}
	return uint32(div)
}
