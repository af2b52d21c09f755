package gem

import (
	"bytes"
	"errors"
	"testing"

	"github.com/emergingrobotics/go-gem/pkg/regs"
	"github.com/emergingrobotics/go-gem/testutil"
)

func startedDevice(t *testing.T, f *testutil.FakeHW, cfg Config) *Device {
	t.Helper()
	f.PHY = testutil.LinkUpPHY(0)
	d := newTestDevice(t, f, cfg, nil)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d
}

// completeTx makes the fake controller finish every transmit as soon as
// TSTART is written, optionally ORing extra status bits into the
// descriptor.
func completeTx(f *testutil.FakeHW, d *Device, status uint32) {
	f.OnWrite[regs.NCR] = func(v uint32) {
		if v&regs.NCRTxStart == 0 {
			return
		}
		idx := d.txHead - 1
		if idx < 0 {
			idx = TxRingSize - 1
		}
		d.txRing.file.SetCtrl(idx, d.txRing.file.Ctrl(idx)|regs.TxUsed|status)
	}
}

func TestSendProgramsDescriptor(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])
	completeTx(f, d, 0)

	frame := bytes.Repeat([]byte{0xa5}, 100)
	if err := d.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctrl := d.txRing.file.Ctrl(0)
	if ctrl&regs.TxLenMask != 100 {
		t.Errorf("length field = %d", ctrl&regs.TxLenMask)
	}
	if ctrl&regs.TxLast == 0 {
		t.Error("last-buffer bit missing")
	}
	if ctrl&regs.TxWrap != 0 {
		t.Error("wrap bit set before the last slot")
	}
	if d.txRing.file.AddrWord(0) != uint32(d.txStage.Bus()) {
		t.Errorf("descriptor addr = %#x", d.txRing.file.AddrWord(0))
	}
	if !bytes.Equal(d.txStage.Bytes()[:100], frame) {
		t.Error("frame not staged")
	}
	if d.txHead != 1 {
		t.Errorf("txHead = %d, want 1", d.txHead)
	}
	if s := d.Stats(); s.TxFrames != 1 || s.TxTimeouts != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSendWrapsRing(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])
	completeTx(f, d, 0)

	for i := 0; i < TxRingSize; i++ {
		if err := d.Send([]byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if d.txHead != 0 {
		t.Errorf("txHead = %d after a full lap, want 0", d.txHead)
	}
	if d.txRing.file.Ctrl(TxRingSize-1)&regs.TxWrap == 0 {
		t.Error("wrap bit missing on the last slot")
	}
}

func TestSendTimeoutDoesNotFail(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])
	// No completion hook: the used bit never comes back.

	if err := d.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send after timeout = %v, want nil", err)
	}
	if s := d.Stats(); s.TxTimeouts != 1 {
		t.Errorf("TxTimeouts = %d, want 1", s.TxTimeouts)
	}
	// The ring still advances; the next frame uses the next slot.
	if d.txHead != 1 {
		t.Errorf("txHead = %d, want 1", d.txHead)
	}
}

func TestSendCountsErrors(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])
	completeTx(f, d, regs.TxUnderrun|regs.TxBufExhausted)

	if err := d.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send = %v, want nil despite TX errors", err)
	}
	s := d.Stats()
	if s.TxUnderruns != 1 || s.TxBufExhausted != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSendRejectsBadLengths(t *testing.T) {
	f := testutil.NewGEMHW(t)
	d := startedDevice(t, f, Variants()["default"])

	if err := d.Send(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Send(nil) = %v", err)
	}
	if err := d.Send(make([]byte, TxBufferSize+1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized Send = %v", err)
	}
	if d.txHead != 0 {
		t.Errorf("txHead advanced on rejected frames")
	}
}
