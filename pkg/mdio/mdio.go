// Package mdio provides Clause 22 MDIO bus access through the MACB/GEM
// PHY maintenance register.
package mdio

import (
	"errors"

	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// ErrTimeout is returned when the maintenance shift register never
// reports idle within the poll bound.
var ErrTimeout = errors.New("mdio: transaction timed out")

// Bus is a Clause 22 MDIO master. Register addresses are 0-31.
type Bus interface {
	Read(phyAddr, reg uint8) (uint16, error)
	Write(phyAddr, reg uint8, value uint16) error
}

// IdleAttempts bounds the busy-wait for the maintenance register.
const IdleAttempts = 1000

// MACBus drives MDIO through the controller's MAN register: enable the
// management port, push a frame, wait for NSR idle, read the reply.
type MACBus struct {
	io   hw.RegisterIO
	poll hw.Poller
}

// New builds a MACBus over the register block. delay runs between idle
// polls; nil means spin.
func New(io hw.RegisterIO, delay func()) *MACBus {
	return &MACBus{
		io:   io,
		poll: hw.Poller{MaxAttempts: IdleAttempts, Delay: delay},
	}
}

// Read implements Bus.
func (b *MACBus) Read(phyAddr, reg uint8) (uint16, error) {
	b.enableManagement(true)
	defer b.enableManagement(false)

	b.io.Write32(regs.MAN, regs.MDIOReadFrame(phyAddr, reg))
	if !b.waitIdle() {
		return 0, ErrTimeout
	}
	return uint16(b.io.Read32(regs.MAN) & regs.ManDataMask), nil
}

// Write implements Bus.
func (b *MACBus) Write(phyAddr, reg uint8, value uint16) error {
	b.enableManagement(true)
	defer b.enableManagement(false)

	b.io.Write32(regs.MAN, regs.MDIOWriteFrame(phyAddr, reg, value))
	if !b.waitIdle() {
		return ErrTimeout
	}
	return nil
}

func (b *MACBus) enableManagement(on bool) {
	ncr := b.io.Read32(regs.NCR)
	if on {
		ncr |= regs.NCRMdioEnable
	} else {
		ncr &^= regs.NCRMdioEnable
	}
	b.io.Write32(regs.NCR, ncr)
}

func (b *MACBus) waitIdle() bool {
	return b.poll.Poll(func() bool {
		return b.io.Read32(regs.NSR)&regs.NSRMdioIdle != 0
	})
}
