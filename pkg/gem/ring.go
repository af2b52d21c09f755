package gem

import (
	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// Ring geometry. Fixed at build time; rings never resize after
// allocation.
const (
	RxRingSize = 32
	TxRingSize = 16

	// PktAlign is the platform packet alignment every cache-maintenance
	// range is rounded to.
	PktAlign = 32

	// RxBufferMultiple divides every RX buffer size; the DMA config
	// register expresses buffer sizes in these units.
	RxBufferMultiple = 64

	GemRxBufferSize  = 2048
	MacbRxBufferSize = 128

	// TxBufferSize bounds a single transmit frame. The TX descriptor
	// length field is 11 bits, so this is also the largest encodable
	// length + 1.
	TxBufferSize = 2048
)

// descRing couples a descriptor area with the cache maintenance needed
// to share it with the controller.
type descRing struct {
	file  *regs.DescriptorFile
	mem   *hw.Region
	cache hw.CacheOps
}

func newDescRing(alloc hw.Allocator, cache hw.CacheOps, n int, wide bool, align int) (*descRing, error) {
	mem, err := alloc.Alloc(regs.DescBytes(n, wide), align)
	if err != nil {
		return nil, err
	}
	return &descRing{
		file:  regs.NewDescriptorFile(mem.Bytes(), wide),
		mem:   mem,
		cache: cache,
	}, nil
}

// flush pushes the whole descriptor area out to the device. Ranges cover
// the full ring: with several descriptors per cache line, partial
// flushes would race the controller's own writes.
func (r *descRing) flush() {
	r.cache.FlushRange(r.mem.Bus(), hw.AlignUp(r.mem.Size(), PktAlign))
}

// invalidate discards the CPU's cached view of the descriptor area
// before reading controller-written status.
func (r *descRing) invalidate() {
	r.cache.InvalidateRange(r.mem.Bus(), hw.AlignUp(r.mem.Size(), PktAlign))
}

// initRings rebuilds both rings for a fresh start: every RX slot points
// at its pool buffer with the wrap bit on the last slot, every TX slot
// is marked available to software. Cursors reset to zero.
func (d *Device) initRings() {
	paddr := d.rxPool.Bus()
	for i := 0; i < RxRingSize; i++ {
		var flags uint32
		if i == RxRingSize-1 {
			flags = regs.RxWrap
		}
		d.rxRing.file.SetCtrl(i, 0)
		d.rxRing.file.SetAddr(i, paddr, flags)
		paddr += uint64(d.rxBufSize)
	}
	d.rxRing.flush()
	d.cache.FlushRange(d.rxPool.Bus(), hw.AlignUp(d.rxPool.Size(), PktAlign))

	for i := 0; i < TxRingSize; i++ {
		ctrl := uint32(regs.TxUsed)
		if i == TxRingSize-1 {
			ctrl |= regs.TxWrap
		}
		d.txRing.file.SetAddr(i, 0, 0)
		d.txRing.file.SetCtrl(i, ctrl)
	}
	d.txRing.flush()

	d.rxTail = 0
	d.txHead = 0
	d.nextRxTail = 0
	d.wrapped = false
}

// reclaimMask returns the logical-index mask selecting the last
// descriptor of a cache line. In 64-bit mode each logical descriptor
// spans two physical slots, halving the count per line.
func (d *Device) reclaimMask() int {
	stride := regs.DescSize
	if d.cfg.DMACap64 {
		stride *= 2
	}
	per := d.cacheLine / stride
	if per < 1 {
		per = 1
	}
	return per - 1
}

// reclaimSlot hands descriptor idx back to the controller, deferred to
// cache-line granularity: a flush covers the whole line, so clearing one
// descriptor's used bit early would destroy controller writes to its
// line-mates. Only when idx is the last descriptor of its line does the
// whole line get cleared in one pass.
func (d *Device) reclaimSlot(idx, mask int) {
	if idx&mask != mask {
		return
	}
	for i := idx &^ mask; i <= idx; i++ {
		d.rxRing.file.SetAddrWord(i, d.rxRing.file.AddrWord(i)&^regs.RxUsed)
	}
}

// reclaimTo recycles descriptors in [rxTail, newTail), wrap-aware, then
// flushes the ring once and advances the tail. This is the only mutator
// of rxTail.
func (d *Device) reclaimTo(newTail int) {
	mask := d.reclaimMask()
	i := d.rxTail

	d.rxRing.invalidate()
	for i > newTail {
		d.reclaimSlot(i, mask)
		i++
		if i >= RxRingSize {
			i = 0
		}
	}
	for i < newTail {
		d.reclaimSlot(i, mask)
		i++
	}

	d.cache.Barrier()
	d.rxRing.flush()
	d.rxTail = newTail
}
