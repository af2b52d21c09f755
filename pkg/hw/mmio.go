package hw

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

const pageSize = 4096

// MMIO is a RegisterIO over an mmapped register block. The bigEndian flag
// selects the byte order the controller was synthesized with.
type MMIO struct {
	full      []byte // whole page-aligned mapping, kept for Munmap
	mem       []byte
	bigEndian bool
}

// MapMMIO maps size bytes of physical address space at base through
// /dev/mem. base need not be page aligned.
func MapMMIO(base uint64, size int, bigEndian bool) (*MMIO, error) {
	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/mem: %w", err)
	}
	defer unix.Close(fd)

	pageOff := int(base % pageSize)
	mapLen := AlignUp(pageOff+size, pageSize)
	mem, err := unix.Mmap(fd, int64(base)-int64(pageOff), mapLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap registers at %#x: %w", base, err)
	}
	return &MMIO{full: mem, mem: mem[pageOff : pageOff+size], bigEndian: bigEndian}, nil
}

// Read32 implements RegisterIO.
func (m *MMIO) Read32(off uint32) uint32 {
	if m.bigEndian {
		return binary.BigEndian.Uint32(m.mem[off:])
	}
	return binary.LittleEndian.Uint32(m.mem[off:])
}

// Write32 implements RegisterIO.
func (m *MMIO) Write32(off uint32, v uint32) {
	if m.bigEndian {
		binary.BigEndian.PutUint32(m.mem[off:], v)
		return
	}
	binary.LittleEndian.PutUint32(m.mem[off:], v)
}

// Close unmaps the register block.
func (m *MMIO) Close() error {
	mem := m.full
	m.full = nil
	m.mem = nil
	return unix.Munmap(mem)
}

// FileArena is an Allocator carving regions out of one mmapped file
// (a reserved-memory carveout or CMA-backed device node) whose physical
// base address is known. Allocation is bump-pointer; regions live until
// the arena is closed.
type FileArena struct {
	mem []byte
	bus uint64
	off int
}

// MapArena maps size bytes of the file at path. bus is the physical
// address the file's first byte is visible at on the DMA bus.
func MapArena(path string, bus uint64, size int) (*FileArena, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, 0, AlignUp(size, pageSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &FileArena{mem: mem, bus: bus}, nil
}

// Alloc implements Allocator.
func (a *FileArena) Alloc(size, align int) (*Region, error) {
	off := AlignUp(a.off, align)
	if off+size > len(a.mem) {
		return nil, fmt.Errorf("dma arena exhausted: need %d bytes, %d left", size, len(a.mem)-off)
	}
	a.off = off + size
	return NewRegion(a.mem[off:off+size:off+size], a.bus+uint64(off)), nil
}

// Close unmaps the arena. Regions handed out become invalid.
func (a *FileArena) Close() error {
	mem := a.mem
	a.mem = nil
	return unix.Munmap(mem)
}
