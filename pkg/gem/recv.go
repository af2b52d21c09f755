package gem

import (
	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// Receive returns the next complete frame, or ErrWouldBlock when none
// has landed yet. The returned slice aliases driver-owned memory and
// stays valid only until the matching Free call; callers that keep the
// data must copy it out first.
//
// A frame can span several RX buffers and can wrap around the end of
// the ring. Straight runs are returned zero-copy out of the buffer
// pool; wrapped frames are stitched into a scratch buffer.
func (d *Device) Receive() ([]byte, error) {
	// Partial scans from a previous call that ended in would-block start
	// over: the descriptors have not been reclaimed, so the frame is
	// still there, now possibly complete.
	d.nextRxTail = d.rxTail
	d.wrapped = false

	idx := d.rxTail
	for scanned := 0; scanned < RxRingSize; scanned++ {
		d.rxRing.invalidate()
		d.cache.Barrier()

		addr := d.rxRing.file.AddrWord(idx)
		if addr&regs.RxUsed == 0 {
			return nil, newError(StatusWouldBlock, "gem: no frame ready")
		}
		ctrl := d.rxRing.file.Ctrl(idx)

		if ctrl&regs.RxSOF != 0 {
			// A new frame start invalidates anything before it; hand
			// those descriptors straight back.
			if idx != d.rxTail {
				d.reclaimTo(idx)
			}
			d.wrapped = false
		}

		if ctrl&regs.RxEOF != 0 {
			length := int(ctrl & regs.RxLenMask)
			d.cache.InvalidateRange(d.rxPool.Bus(), hw.AlignUp(d.rxPool.Size(), PktAlign))

			var frame []byte
			if d.wrapped {
				headlen := d.rxBufSize * (RxRingSize - d.rxTail)
				if headlen > length {
					headlen = length
				}
				copy(d.scratch[:headlen], d.rxPool.Bytes()[d.rxBufSize*d.rxTail:])
				copy(d.scratch[headlen:length], d.rxPool.Bytes())
				frame = d.scratch[:length]
			} else {
				off := d.rxBufSize * d.rxTail
				frame = d.rxPool.Bytes()[off : off+length]
			}

			if idx == RxRingSize-1 {
				idx = 0
			} else {
				idx++
			}
			d.nextRxTail = idx
			d.stats.RxFrames++
			return frame, nil
		}

		if idx == RxRingSize-1 {
			idx = 0
			d.wrapped = true
		} else {
			idx++
		}
	}
	return nil, newError(StatusWouldBlock, "gem: no frame boundary found")
}

// Free recycles the descriptors of the frame returned by the last
// Receive. The frame slice must not be touched afterwards.
func (d *Device) Free() {
	if d.nextRxTail != d.rxTail {
		d.reclaimTo(d.nextRxTail)
	}
}
