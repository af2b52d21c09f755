package testutil

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/emergingrobotics/go-gem/pkg/phy"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// QuietLogger returns a logger that discards everything, for tests that
// only care about behavior.
func QuietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewGEMHW returns a FakeHW seeded to look like a GEM-flavored
// controller: module ID, 32-bit bus width, 64-bit DMA capable, four
// hardware queues.
func NewGEMHW(t *testing.T) *FakeHW {
	t.Helper()
	f := NewFakeHW()
	f.Regs[regs.MID] = 0x00020000
	f.Regs[regs.DCFG1] = 1 << 25
	f.Regs[regs.DCFG6] = regs.DCFG6DAW64 | 0xe // queues 1-3 plus implicit 0
	return f
}

// NewMACBHW returns a FakeHW whose module ID reads as the small MACB
// flavor.
func NewMACBHW(t *testing.T) *FakeHW {
	t.Helper()
	f := NewFakeHW()
	f.Regs[regs.MID] = 0x00010000
	return f
}

// LinkUpPHY returns a PHY register file describing a completed
// 100BASE-TX full-duplex negotiation with link up.
func LinkUpPHY(addr uint8) *FakePHY {
	return &FakePHY{
		Addr: addr,
		Regs: map[uint8]uint16{
			phy.RegPhysID1:   0x0022,
			phy.RegPhysID2:   0x1611,
			phy.RegBMSR:      phy.BMSRLinkStatus | phy.BMSRANegComplete,
			phy.RegAdvertise: phy.AdvCSMA | phy.AdvAll,
			phy.RegLPA:       phy.AdvCSMA | phy.AdvAll,
		},
	}
}

// GigabitPHY extends LinkUpPHY with a 1000BASE-T full-duplex partner.
func GigabitPHY(addr uint8) *FakePHY {
	p := LinkUpPHY(addr)
	p.Regs[phy.RegStat1000] = phy.LPA1000Full
	return p
}
