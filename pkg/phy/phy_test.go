package phy

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/emergingrobotics/go-gem/pkg/hw"
)

// mapBus is an in-memory MDIO bus with one PHY.
type mapBus struct {
	addr   uint8
	regs   map[uint8]uint16
	onRead func(reg uint8)
}

func (b *mapBus) Read(phyAddr, reg uint8) (uint16, error) {
	if phyAddr != b.addr {
		return 0xffff, nil
	}
	if b.onRead != nil {
		b.onRead(reg)
	}
	return b.regs[reg], nil
}

func (b *mapBus) Write(phyAddr, reg uint8, value uint16) error {
	if phyAddr == b.addr {
		b.regs[reg] = value
	}
	return nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("rgmii-id")
	if err != nil || m != ModeRGMIIID {
		t.Errorf("ParseMode(rgmii-id) = %v, %v", m, err)
	}
	if _, err := ParseMode("xaui"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("ParseMode(xaui) error = %v", err)
	}
}

func TestGigabitCapable(t *testing.T) {
	for _, m := range []InterfaceMode{ModeGMII, ModeSGMII, ModeRGMII, ModeRGMIITxID} {
		if !m.GigabitCapable() {
			t.Errorf("%s should be gigabit capable", m)
		}
	}
	for _, m := range []InterfaceMode{ModeMII, ModeRMII} {
		if m.GigabitCapable() {
			t.Errorf("%s should not be gigabit capable", m)
		}
	}
}

func TestDiscoverPinned(t *testing.T) {
	bus := &mapBus{addr: 5, regs: map[uint8]uint16{RegPhysID1: 0x0022}}
	addr, err := Discover(bus, 5)
	if err != nil || addr != 5 {
		t.Errorf("Discover = %d, %v", addr, err)
	}
}

func TestDiscoverScans(t *testing.T) {
	bus := &mapBus{addr: 12, regs: map[uint8]uint16{RegPhysID1: 0x0141}}
	addr, err := Discover(bus, 0)
	if err != nil || addr != 12 {
		t.Errorf("Discover = %d, %v", addr, err)
	}
}

func TestDiscoverNotFound(t *testing.T) {
	bus := &mapBus{addr: 40, regs: map[uint8]uint16{}} // unreachable address
	if _, err := Discover(bus, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Discover error = %v, want ErrNotFound", err)
	}
}

func TestResolvePriority(t *testing.T) {
	cases := []struct {
		adv, lpa uint16
		want     Link
	}{
		{AdvAll, AdvAll, Link{Speed: Speed100, FullDuplex: true}},
		{AdvAll, Adv100Half | Adv10Full, Link{Speed: Speed100}},
		{AdvAll, Adv10Full | Adv10Half, Link{Speed: Speed10, FullDuplex: true}},
		{AdvAll, Adv10Half, Link{Speed: Speed10}},
		{Adv10Full | Adv10Half, AdvAll, Link{Speed: Speed10, FullDuplex: true}},
	}
	for _, c := range cases {
		if got := Resolve(c.adv, c.lpa); got != c.want {
			t.Errorf("Resolve(%#x, %#x) = %+v, want %+v", c.adv, c.lpa, got, c.want)
		}
	}
}

func TestRunLinkAlreadyUp(t *testing.T) {
	bus := &mapBus{addr: 1, regs: map[uint8]uint16{
		RegBMSR:      BMSRLinkStatus | BMSRANegComplete,
		RegAdvertise: AdvCSMA | AdvAll,
		RegLPA:       AdvCSMA | Adv100Full | Adv100Half,
	}}
	n := &Negotiator{Bus: bus, Addr: 1, Poll: hw.Poller{MaxAttempts: 10}, Log: quiet()}
	link, err := n.Run(false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if link.Speed != Speed100 || !link.FullDuplex {
		t.Errorf("link = %+v", link)
	}
}

func TestRunGigabitPartner(t *testing.T) {
	bus := &mapBus{addr: 1, regs: map[uint8]uint16{
		RegBMSR:      BMSRLinkStatus | BMSRANegComplete,
		RegStat1000:  LPA1000Full,
		RegAdvertise: AdvCSMA | AdvAll,
		RegLPA:       AdvCSMA | AdvAll,
	}}
	n := &Negotiator{Bus: bus, Addr: 1, Poll: hw.Poller{MaxAttempts: 10}, Log: quiet()}

	link, err := n.Run(true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if link.Speed != Speed1000 || !link.FullDuplex {
		t.Errorf("gigabit link = %+v", link)
	}

	// Same partner resolved without the gigabit path falls back to 100F.
	link, err = n.Run(false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if link.Speed != Speed100 {
		t.Errorf("non-gigabit link = %+v", link)
	}
}

func TestRunRestartsWhenDown(t *testing.T) {
	// Link comes up only after autonegotiation is restarted.
	bus := &mapBus{addr: 1, regs: map[uint8]uint16{
		RegAdvertise: AdvCSMA | AdvAll,
		RegLPA:       AdvCSMA | Adv10Full | Adv10Half,
	}}
	bus.onRead = func(reg uint8) {
		if reg == RegBMSR && bus.regs[RegBMCR]&BMCRANRestart != 0 {
			bus.regs[RegBMSR] = BMSRLinkStatus | BMSRANegComplete
		}
	}
	n := &Negotiator{Bus: bus, Addr: 1, Poll: hw.Poller{MaxAttempts: 10}, Log: quiet()}

	link, err := n.Run(false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if link.Speed != Speed10 || !link.FullDuplex {
		t.Errorf("link = %+v", link)
	}
	if bus.regs[RegAdvertise] != AdvCSMA|AdvAll {
		t.Errorf("advertisement = %#x", bus.regs[RegAdvertise])
	}
}

func TestRunLinkStaysDown(t *testing.T) {
	bus := &mapBus{addr: 1, regs: map[uint8]uint16{}}
	n := &Negotiator{Bus: bus, Addr: 1, Poll: hw.Poller{MaxAttempts: 5}, Log: quiet()}
	if _, err := n.Run(false); !errors.Is(err, ErrLinkDown) {
		t.Errorf("Run error = %v, want ErrLinkDown", err)
	}
}
