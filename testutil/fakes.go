// Package testutil holds the fake hardware used by unit tests: a
// register block with MDIO emulation, recording cache maintenance, a
// DMA arena, and a scriptable PHY.
package testutil

import (
	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// ArenaBase is the bus address of the fake DMA arena.
const ArenaBase = 0x80000000

// ArenaSize is the fake DMA arena capacity.
const ArenaSize = 256 * 1024

// Range records one cache maintenance call.
type Range struct {
	Bus  uint64
	Size int
}

// FakePHY emulates one Clause 22 PHY behind the MAN register. Regs is
// the register file; OnRead, when set, overrides reads per register.
type FakePHY struct {
	Addr   uint8
	Regs   map[uint8]uint16
	OnRead func(reg uint8) (uint16, bool)

	Writes []PHYWrite
}

// PHYWrite records one MDIO write as seen by the PHY.
type PHYWrite struct {
	Reg   uint8
	Value uint16
}

func (p *FakePHY) read(reg uint8) uint16 {
	if p.OnRead != nil {
		if v, ok := p.OnRead(reg); ok {
			return v
		}
	}
	return p.Regs[reg]
}

// FakeHW is an in-memory controller: a register file, a DMA arena, and
// recording cache maintenance. It implements hw.RegisterIO, hw.CacheOps
// and hw.Allocator.
type FakeHW struct {
	Regs map[uint32]uint32

	// OnWrite hooks a register offset; it runs after the write lands.
	OnWrite map[uint32]func(v uint32)

	// PHY, when set, answers MAN-register MDIO frames.
	PHY *FakePHY

	Flushes     []Range
	Invalidates []Range
	Barriers    int

	arena []byte
	off   int
}

// NewFakeHW builds a fake with an empty register file and a fresh arena.
func NewFakeHW() *FakeHW {
	return &FakeHW{
		Regs:    make(map[uint32]uint32),
		OnWrite: make(map[uint32]func(uint32)),
		arena:   make([]byte, ArenaSize),
	}
}

// Read32 implements hw.RegisterIO.
func (f *FakeHW) Read32(off uint32) uint32 { return f.Regs[off] }

// Write32 implements hw.RegisterIO.
func (f *FakeHW) Write32(off uint32, v uint32) {
	f.Regs[off] = v
	if off == regs.MAN && f.PHY != nil {
		f.serveMDIO(v)
	}
	if hook, ok := f.OnWrite[off]; ok {
		hook(v)
	}
}

// serveMDIO decodes a Clause 22 frame, completes it instantly, and
// raises the NSR idle bit.
func (f *FakeHW) serveMDIO(frame uint32) {
	phyAddr := uint8(frame >> 23 & 0x1f)
	reg := uint8(frame >> 18 & 0x1f)
	switch frame >> 28 & 0x3 {
	case 2: // read
		var data uint16 = 0xffff
		if phyAddr == f.PHY.Addr {
			data = f.PHY.read(reg)
		}
		f.Regs[regs.MAN] = frame&^uint32(regs.ManDataMask) | uint32(data)
	case 1: // write
		if phyAddr == f.PHY.Addr {
			f.PHY.Writes = append(f.PHY.Writes, PHYWrite{Reg: reg, Value: uint16(frame)})
			if f.PHY.Regs != nil {
				f.PHY.Regs[reg] = uint16(frame)
			}
		}
	}
	f.Regs[regs.NSR] |= regs.NSRMdioIdle
}

// FlushRange implements hw.CacheOps.
func (f *FakeHW) FlushRange(bus uint64, size int) {
	f.Flushes = append(f.Flushes, Range{Bus: bus, Size: size})
}

// InvalidateRange implements hw.CacheOps.
func (f *FakeHW) InvalidateRange(bus uint64, size int) {
	f.Invalidates = append(f.Invalidates, Range{Bus: bus, Size: size})
}

// Barrier implements hw.CacheOps.
func (f *FakeHW) Barrier() { f.Barriers++ }

// Alloc implements hw.Allocator with a bump pointer over the arena.
func (f *FakeHW) Alloc(size, align int) (*hw.Region, error) {
	off := hw.AlignUp(f.off, align)
	if off+size > len(f.arena) {
		return nil, &arenaFullError{}
	}
	f.off = off + size
	return hw.NewRegion(f.arena[off:off+size:off+size], ArenaBase+uint64(off)), nil
}

type arenaFullError struct{}

func (*arenaFullError) Error() string { return "testutil: fake arena exhausted" }

// Mem returns the arena bytes backing [bus, bus+size), so tests can
// inspect or seed DMA memory the device only knows by bus address.
func (f *FakeHW) Mem(bus uint64, size int) []byte {
	off := int(bus - ArenaBase)
	return f.arena[off : off+size]
}

// FakeClocks is an hw.ClockController with per-line state. Rates maps
// clock names to rates; missing names return hw.ErrNoClock.
type FakeClocks struct {
	Rates   map[string]int64
	Enabled map[string]bool

	SetRates []ClockSet
}

// ClockSet records one SetRate call.
type ClockSet struct {
	Name string
	Hz   int64
}

// NewFakeClocks builds a controller knowing the given clock lines.
func NewFakeClocks(rates map[string]int64) *FakeClocks {
	return &FakeClocks{Rates: rates, Enabled: make(map[string]bool)}
}

func (c *FakeClocks) Enable(name string) error {
	if _, ok := c.Rates[name]; !ok {
		return hw.ErrNoClock
	}
	c.Enabled[name] = true
	return nil
}

func (c *FakeClocks) Disable(name string) error {
	if _, ok := c.Rates[name]; !ok {
		return hw.ErrNoClock
	}
	c.Enabled[name] = false
	return nil
}

func (c *FakeClocks) Rate(name string) (int64, error) {
	hz, ok := c.Rates[name]
	if !ok {
		return 0, hw.ErrNoClock
	}
	return hz, nil
}

func (c *FakeClocks) SetRate(name string, hz int64) error {
	if _, ok := c.Rates[name]; !ok {
		return hw.ErrNoClock
	}
	c.Rates[name] = hz
	c.SetRates = append(c.SetRates, ClockSet{Name: name, Hz: hz})
	return nil
}
