// Package hw defines the narrow hardware capabilities the driver core is
// built against: register access, cache maintenance, clock control, and
// DMA-coherent memory. Real Linux implementations live in this package;
// fakes for tests live in testutil.
package hw

import "errors"

// RegisterIO provides 32-bit access to a memory-mapped register block.
// Implementations handle the controller's endianness mode.
type RegisterIO interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}

// CacheOps maintains coherency between CPU caches and device-visible
// memory. FlushRange makes CPU writes in [bus, bus+size) visible to the
// device; InvalidateRange discards stale CPU cache lines so device writes
// become visible. Barrier orders CPU memory accesses around the DMA
// hand-off.
type CacheOps interface {
	FlushRange(bus uint64, size int)
	InvalidateRange(bus uint64, size int)
	Barrier()
}

// NoopCache is the CacheOps implementation for cache-coherent platforms,
// where the interconnect snoops CPU caches and no maintenance is needed.
type NoopCache struct{}

func (NoopCache) FlushRange(uint64, int)      {}
func (NoopCache) InvalidateRange(uint64, int) {}
func (NoopCache) Barrier()                    {}

// ErrNoClock is returned by ClockController implementations when the
// named clock line does not exist on the platform.
var ErrNoClock = errors.New("hw: no such clock")

// ClockController gates and rates named clock lines (pclk, hclk, tx_clk).
type ClockController interface {
	Enable(name string) error
	Disable(name string) error
	Rate(name string) (int64, error)
	SetRate(name string, hz int64) error
}

// Region is a piece of DMA-coherent-capable memory with both a CPU view
// and a device (bus) address. Regions never move once allocated.
type Region struct {
	b   []byte
	bus uint64
}

// NewRegion wraps an existing CPU mapping at the given bus address.
func NewRegion(b []byte, bus uint64) *Region {
	return &Region{b: b, bus: bus}
}

// Bytes returns the CPU view of the region.
func (r *Region) Bytes() []byte { return r.b }

// Bus returns the device-visible address of the region's first byte.
func (r *Region) Bus() uint64 { return r.bus }

// Size returns the region length in bytes.
func (r *Region) Size() int { return len(r.b) }

// Allocator carves DMA-capable regions out of platform memory.
type Allocator interface {
	Alloc(size, align int) (*Region, error)
}

// AlignUp rounds n up to the next multiple of align (a power of two).
func AlignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
