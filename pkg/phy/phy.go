// Package phy discovers Ethernet PHYs over MDIO and negotiates link
// parameters: autonegotiation restart, bounded completion wait, and
// speed/duplex resolution from the advertisement registers.
package phy

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/mdio"
)

// IEEE 802.3 Clause 22 register addresses.
const (
	RegBMCR      = 0x00 // basic mode control
	RegBMSR      = 0x01 // basic mode status
	RegPhysID1   = 0x02
	RegPhysID2   = 0x03
	RegAdvertise = 0x04 // autonegotiation advertisement (ANAR)
	RegLPA       = 0x05 // link partner ability (ANLPAR)
	RegCtrl1000  = 0x09
	RegStat1000  = 0x0a
)

// BMCR bits.
const (
	BMCRSpeed1000 = 0x0040
	BMCRFullDplx  = 0x0100
	BMCRANRestart = 0x0200
	BMCRANEnable  = 0x1000
	BMCRSpeed100  = 0x2000
	BMCRReset     = 0x8000
)

// BMSR bits.
const (
	BMSRLinkStatus   = 0x0004
	BMSRANegComplete = 0x0020
)

// Advertisement / link partner ability bits.
const (
	AdvCSMA    = 0x0001
	Adv10Half  = 0x0020
	Adv10Full  = 0x0040
	Adv100Half = 0x0080
	Adv100Full = 0x0100
	AdvAll     = Adv10Half | Adv10Full | Adv100Half | Adv100Full
)

// 1000BASE-T status (register 0x0a) link partner bits.
const (
	LPA1000Half  = 0x0400
	LPA1000Full  = 0x0800
	LPA1000XHalf = 0x4000
	LPA1000XFull = 0x8000
)

// Speed is a negotiated link speed in Mb/s.
type Speed int

const (
	Speed10   Speed = 10
	Speed100  Speed = 100
	Speed1000 Speed = 1000
)

// Link is the outcome of negotiation. It is not persisted: every init
// renegotiates from scratch.
type Link struct {
	Speed      Speed
	FullDuplex bool
}

// InterfaceMode is the MAC-to-PHY signaling mode from platform config.
type InterfaceMode int

const (
	ModeMII InterfaceMode = iota
	ModeRMII
	ModeGMII
	ModeSGMII
	ModeRGMII
	ModeRGMIIID
	ModeRGMIIRxID
	ModeRGMIITxID
)

var modeNames = map[string]InterfaceMode{
	"mii":        ModeMII,
	"rmii":       ModeRMII,
	"gmii":       ModeGMII,
	"sgmii":      ModeSGMII,
	"rgmii":      ModeRGMII,
	"rgmii-id":   ModeRGMIIID,
	"rgmii-rxid": ModeRGMIIRxID,
	"rgmii-txid": ModeRGMIITxID,
}

// ErrUnknownMode reports an unsupported or missing phy-mode string.
var ErrUnknownMode = errors.New("phy: unknown interface mode")

// ParseMode maps a phy-mode string to an InterfaceMode.
func ParseMode(s string) (InterfaceMode, error) {
	m, ok := modeNames[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// String returns the canonical phy-mode name.
func (m InterfaceMode) String() string {
	for s, v := range modeNames {
		if v == m {
			return s
		}
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// GigabitCapable reports whether the signaling mode can carry 1000Mb/s.
func (m InterfaceMode) GigabitCapable() bool {
	switch m {
	case ModeGMII, ModeSGMII, ModeRGMII, ModeRGMIIID, ModeRGMIIRxID, ModeRGMIITxID:
		return true
	}
	return false
}

// ErrNotFound means no PHY answered on any MDIO address.
var ErrNotFound = errors.New("phy: no PHY found")

// Discover scans for a PHY, trying the pinned address first and then
// addresses 0-31. A PHY is present when its ID1 register reads anything
// other than the bus idle pattern.
func Discover(bus mdio.Bus, pinned uint8) (uint8, error) {
	if id, err := bus.Read(pinned, RegPhysID1); err == nil && id != 0xffff {
		return pinned, nil
	}
	for addr := uint8(0); addr < 32; addr++ {
		id, err := bus.Read(addr, RegPhysID1)
		if err != nil {
			return 0, fmt.Errorf("phy scan at %d: %w", addr, err)
		}
		if id != 0xffff {
			return addr, nil
		}
	}
	return 0, ErrNotFound
}

// ErrLinkDown means negotiation finished (or timed out) without link.
var ErrLinkDown = errors.New("phy: link down")

// AutonegAttempts bounds the wait for autonegotiation completion: the
// original 5s budget polled in 100µs steps.
const AutonegAttempts = 50000

// Negotiator runs the autonegotiation state machine against one PHY.
type Negotiator struct {
	Bus  mdio.Bus
	Addr uint8
	Poll hw.Poller
	Log  logrus.FieldLogger
}

// restart programs the standard 10/100 advertisement and restarts
// autonegotiation, then waits (bounded) for the complete bit.
func (n *Negotiator) restart() error {
	if err := n.Bus.Write(n.Addr, RegAdvertise, AdvCSMA|AdvAll); err != nil {
		return err
	}
	n.Log.Info("starting autonegotiation")
	if err := n.Bus.Write(n.Addr, RegBMCR, BMCRANEnable|BMCRANRestart); err != nil {
		return err
	}

	var status uint16
	done := n.Poll.Poll(func() bool {
		s, err := n.Bus.Read(n.Addr, RegBMSR)
		if err != nil {
			return false
		}
		status = s
		return s&BMSRANegComplete != 0
	})
	if !done {
		n.Log.WithField("status", fmt.Sprintf("%#04x", status)).
			Warn("autonegotiation timed out")
		return nil // link status decides below, as the hardware does
	}
	n.Log.Info("autonegotiation complete")
	return nil
}

// Run negotiates and resolves the link. gigabit enables the 1000BASE-T
// resolution path when both controller and signaling mode support it.
func (n *Negotiator) Run(gigabit bool) (Link, error) {
	status, err := n.Bus.Read(n.Addr, RegBMSR)
	if err != nil {
		return Link{}, err
	}
	if status&BMSRLinkStatus == 0 {
		// No link yet: renegotiate and wait for the status bit.
		if err := n.restart(); err != nil {
			return Link{}, err
		}
		n.Poll.Poll(func() bool {
			s, err := n.Bus.Read(n.Addr, RegBMSR)
			if err != nil {
				return false
			}
			status = s
			return s&BMSRLinkStatus != 0
		})
	}
	if status&BMSRLinkStatus == 0 {
		n.Log.WithField("status", fmt.Sprintf("%#04x", status)).Info("link down")
		return Link{}, ErrLinkDown
	}

	if gigabit {
		lpa, err := n.Bus.Read(n.Addr, RegStat1000)
		if err != nil {
			return Link{}, err
		}
		if lpa&(LPA1000Full|LPA1000Half|LPA1000XFull|LPA1000XHalf) != 0 {
			link := Link{
				Speed:      Speed1000,
				FullDuplex: lpa&(LPA1000Full|LPA1000XFull) != 0,
			}
			n.logLink(link, lpa)
			return link, nil
		}
	}

	adv, err := n.Bus.Read(n.Addr, RegAdvertise)
	if err != nil {
		return Link{}, err
	}
	lpa, err := n.Bus.Read(n.Addr, RegLPA)
	if err != nil {
		return Link{}, err
	}
	link := Resolve(adv, lpa)
	n.logLink(link, lpa)
	return link, nil
}

func (n *Negotiator) logLink(l Link, lpa uint16) {
	duplex := "half"
	if l.FullDuplex {
		duplex = "full"
	}
	n.Log.WithFields(logrus.Fields{
		"speed":  int(l.Speed),
		"duplex": duplex,
		"lpa":    fmt.Sprintf("%#04x", lpa),
	}).Info("link up")
}

// Resolve intersects our advertisement with the partner's ability and
// picks the best common 10/100 mode, in standard priority order.
func Resolve(adv, lpa uint16) Link {
	common := adv & lpa
	switch {
	case common&Adv100Full != 0:
		return Link{Speed: Speed100, FullDuplex: true}
	case common&Adv100Half != 0:
		return Link{Speed: Speed100}
	case common&Adv10Full != 0:
		return Link{Speed: Speed10, FullDuplex: true}
	default:
		return Link{Speed: Speed10}
	}
}
