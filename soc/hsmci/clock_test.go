package hsmci

import "testing"

func TestClockDivider(t *testing.T) {
	tests := map[string]struct {
		mck, hz float64
		want    uint32
	}{
		"Init84MHz":  {84e6, InitSpeed, 104},
		"Full84MHz":  {84e6, FullSpeed, 1},
		"Init96MHz":  {96e6, InitSpeed, 119},
		"Full96MHz":  {96e6, FullSpeed, 1},
		"Exact":      {100e6, FullSpeed, 1},
		"TooFast":    {84e6, 84e6, 0},
		"TooSlow":    {84e6, 1e3, 255},
		"HalfMaster": {84e6, 42e6, 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := ClockDivider(tc.mck, tc.hz)
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
			if f := tc.mck / float64(2*(got+1)); f > tc.hz && got < 255 {
				t.Errorf("card clock %v above %v", f, tc.hz)
			}
		})
	}
}

func TestBlock(t *testing.T) {
	if got := Block(512, 3); got != 0x0200_0003 {
		t.Errorf("got %#x", got)
	}
	if got := Cmdnb(0x7f); got != 0x3f {
		t.Errorf("Cmdnb not masked: %#x", got)
	}
}
