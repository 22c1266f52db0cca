package pmc_test

import (
	"testing"

	"github.com/clktmr/sam3x/sim"
	"github.com/clktmr/sam3x/soc"
	"github.com/clktmr/sam3x/soc/pmc"
)

func TestPeriphClocks(t *testing.T) {
	for _, chip := range []soc.Chip{soc.SAM3X8E, soc.SAM3U4E} {
		t.Run(chip.Name, func(t *testing.T) {
			m := sim.New(chip, nil)
			r := pmc.New(m, chip.PMCBase)

			for _, id := range []uint8{chip.HSMCIID, chip.DMACID} {
				if r.PeriphClockEnabled(id) {
					t.Fatalf("clock %d enabled after reset", id)
				}
				r.EnablePeriphClock(id)
				if !r.PeriphClockEnabled(id) || !m.PMC.Enabled(id) {
					t.Errorf("clock %d not enabled", id)
				}
			}
			r.DisablePeriphClock(chip.HSMCIID)
			if r.PeriphClockEnabled(chip.HSMCIID) {
				t.Error("clock not disabled")
			}
			if !r.PeriphClockEnabled(chip.DMACID) {
				t.Error("disabling one clock affected another")
			}
		})
	}
}
