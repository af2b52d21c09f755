package gem

import (
	"time"

	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// Send transmits one frame and waits (bounded) for the controller to
// hand the descriptor back. A completion timeout or a TX error is
// counted and logged but does not fail the call: by the time the poll
// gives up the frame is already on the wire or unrecoverable, and the
// caller has nothing useful to do about either.
func (d *Device) Send(frame []byte) error {
	if len(frame) == 0 || len(frame) > TxBufferSize {
		return newError(StatusInvalidArgument, "gem: bad frame length")
	}

	idx := d.txHead
	copy(d.txStage.Bytes(), frame)
	d.cache.FlushRange(d.txStage.Bus(), hw.AlignUp(len(frame), PktAlign))

	ctrl := uint32(len(frame))&regs.TxLenMask | regs.TxLast
	if idx == TxRingSize-1 {
		ctrl |= regs.TxWrap
		d.txHead = 0
	} else {
		d.txHead = idx + 1
	}

	// Control word first, with its used bit clear; once the address
	// lands the slot belongs to the controller.
	d.txRing.file.SetCtrl(idx, ctrl)
	d.txRing.file.SetAddr(idx, d.txStage.Bus(), 0)

	d.cache.Barrier()
	d.txRing.flush()
	d.io.Write32(regs.NCR, regs.NCRTxEnable|regs.NCRRxEnable|regs.NCRTxStart)

	var status uint32
	p := hw.Poller{MaxAttempts: TxTimeoutAttempts, Delay: func() { d.sleep(time.Microsecond) }}
	done := p.Poll(func() bool {
		d.txRing.invalidate()
		d.cache.Barrier()
		status = d.txRing.file.Ctrl(idx)
		return status&regs.TxUsed != 0
	})

	d.stats.TxFrames++
	if !done {
		d.stats.TxTimeouts++
		d.log.WithField("slot", idx).Warn("TX completion timed out")
		return nil
	}
	if status&regs.TxUnderrun != 0 {
		d.stats.TxUnderruns++
		d.log.WithField("slot", idx).Warn("TX underrun")
	}
	if status&regs.TxBufExhausted != 0 {
		d.stats.TxBufExhausted++
		d.log.WithField("slot", idx).Warn("TX buffers exhausted in mid frame")
	}
	return nil
}
