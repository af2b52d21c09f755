package gem

import (
	"bytes"
	"errors"
	"testing"

	"github.com/emergingrobotics/go-gem/pkg/regs"
	"github.com/emergingrobotics/go-gem/testutil"
)

// landFrame plays the controller side: fill pool buffers starting at
// slot start with the frame bytes and mark the descriptors used, with
// SOF on the first and EOF (plus total length) on the last.
func landFrame(d *Device, start int, frame []byte) {
	n := (len(frame) + d.rxBufSize - 1) / d.rxBufSize
	off := 0
	for i := 0; i < n; i++ {
		slot := (start + i) % RxRingSize
		end := off + d.rxBufSize
		if end > len(frame) {
			end = len(frame)
		}
		chunk := frame[off:end]
		copy(d.rxPool.Bytes()[slot*d.rxBufSize:], chunk)
		off = end

		var ctrl uint32
		if i == 0 {
			ctrl |= regs.RxSOF
		}
		if i == n-1 {
			ctrl |= regs.RxEOF | uint32(len(frame))&regs.RxLenMask
		}
		d.rxRing.file.SetCtrl(slot, ctrl)
		d.rxRing.file.SetAddrWord(slot, d.rxRing.file.AddrWord(slot)|regs.RxUsed)
	}
}

func TestReceiveWouldBlockWhenEmpty(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])

	if _, err := d.Receive(); !errors.Is(err, ErrWouldBlock) {
		t.Errorf("Receive on empty ring = %v, want ErrWouldBlock", err)
	}
}

func TestReceiveSingleBuffer(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])

	frame := bytes.Repeat([]byte{0x5a}, 64)
	landFrame(d, 0, frame)

	got, err := d.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("frame mismatch: %d bytes", len(got))
	}
	if d.nextRxTail != 1 {
		t.Errorf("nextRxTail = %d, want 1", d.nextRxTail)
	}
	if s := d.Stats(); s.RxFrames != 1 {
		t.Errorf("RxFrames = %d", s.RxFrames)
	}
}

func TestReceiveMultiBuffer(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])

	frame := make([]byte, d.rxBufSize+500)
	for i := range frame {
		frame[i] = byte(i)
	}
	landFrame(d, 0, frame)

	got, err := d.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("multi-buffer frame mismatch")
	}
	if d.nextRxTail != 2 {
		t.Errorf("nextRxTail = %d, want 2", d.nextRxTail)
	}
}

func TestReceiveWrappedFrame(t *testing.T) {
	// MACB buffers (128 bytes) keep a multi-slot frame inside the
	// 12-bit length field.
	f := testutil.NewMACBHW(t)
	d := startedDevice(t, f, Variants()["default"])
	d.rxTail = RxRingSize - 2
	d.nextRxTail = d.rxTail

	frame := make([]byte, 3*d.rxBufSize+100)
	for i := range frame {
		frame[i] = byte(i * 7)
	}
	landFrame(d, RxRingSize-2, frame)

	got, err := d.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("wrapped frame not reconstructed byte for byte")
	}
	// Wrapped frames come back out of the scratch buffer, not the pool.
	if &got[0] == &d.rxPool.Bytes()[(RxRingSize-2)*d.rxBufSize] {
		t.Error("wrapped frame aliases the pool")
	}
	if d.nextRxTail != 2 {
		t.Errorf("nextRxTail = %d, want 2", d.nextRxTail)
	}
}

func TestReceiveSkipsStaleStart(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])

	// Slot 0 holds a frame fragment with no EOF; a complete frame
	// starts at slot 1. The fragment's descriptors get recycled.
	d.rxRing.file.SetCtrl(0, regs.RxSOF)
	d.rxRing.file.SetAddrWord(0, d.rxRing.file.AddrWord(0)|regs.RxUsed)
	frame := bytes.Repeat([]byte{0xee}, 80)
	landFrame(d, 1, frame)

	got, err := d.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("frame after stale fragment mismatch")
	}
	if d.rxTail != 1 {
		t.Errorf("rxTail = %d, stale fragment not reclaimed", d.rxTail)
	}
}

func TestReceiveRestartsScanAfterWouldBlock(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])

	// First half of a frame lands, then Receive sees no EOF.
	d.rxRing.file.SetCtrl(0, regs.RxSOF)
	d.rxRing.file.SetAddrWord(0, d.rxRing.file.AddrWord(0)|regs.RxUsed)
	if _, err := d.Receive(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("partial frame Receive = %v", err)
	}

	// The rest arrives; the same frame is now returned whole.
	frame := make([]byte, d.rxBufSize+40)
	for i := range frame {
		frame[i] = byte(i + 3)
	}
	landFrame(d, 0, frame)

	got, err := d.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("frame mismatch after retry")
	}
}

func TestFreeRecyclesDescriptors(t *testing.T) {
	f := testutil.NewMACBHW(t)
	d := startedDevice(t, f, Variants()["default"])

	frame := make([]byte, 4*d.rxBufSize)
	landFrame(d, 0, frame)
	if _, err := d.Receive(); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	d.Free()

	if d.rxTail != 4 {
		t.Errorf("rxTail = %d, want 4", d.rxTail)
	}
	// One complete cache line of descriptors went back to the
	// controller.
	for i := 0; i < 4; i++ {
		if d.rxRing.file.AddrWord(i)&regs.RxUsed != 0 {
			t.Errorf("slot %d still used after Free", i)
		}
	}
}

func TestFreeWithoutFrameIsNoop(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])
	flushes := len(f.Flushes)
	d.Free()
	if len(f.Flushes) != flushes {
		t.Error("Free touched the ring with nothing to recycle")
	}
}
