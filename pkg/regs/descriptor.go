package regs

import "encoding/binary"

// DMA descriptor layout. Each physical slot is 16 bytes: word 0 is the
// buffer address (low half in 64-bit mode), word 1 is control/status, and
// the remaining 8 bytes are reserved. In 64-bit addressing mode a logical
// descriptor occupies two consecutive slots; word 0 of the second slot
// holds the high address word.
const (
	DescSize = 16

	descAddrOff = 0
	descCtrlOff = 4
)

// RX descriptor address-word bits. The controller only uses addresses
// aligned to 4 bytes, freeing the low two bits for flags.
const (
	RxUsed     = 1 << 0 // descriptor handed back to software
	RxWrap     = 1 << 1 // last descriptor in the ring
	RxAddrMask = ^uint32(RxUsed | RxWrap)
)

// RX descriptor control-word bits.
const (
	RxLenMask = 0x00000fff
	RxSOF     = 1 << 14
	RxEOF     = 1 << 15
)

// TX descriptor control-word bits.
const (
	TxLenMask      = 0x000007ff
	TxLast         = 1 << 15 // last buffer of the frame
	TxBufExhausted = 1 << 27
	TxUnderrun     = 1 << 28
	TxError        = 1 << 29
	TxWrap         = 1 << 30 // last descriptor in the ring
	TxUsed         = 1 << 31 // owned by software
)

// DescriptorFile is a typed view over a DMA descriptor area shared with
// the controller. All methods take logical descriptor indices; the
// translation to physical slots (doubled in 64-bit addressing mode)
// happens in one place, physOff, and nowhere else.
type DescriptorFile struct {
	buf  []byte
	wide bool
}

// NewDescriptorFile wraps a descriptor area. cap logical descriptors fit
// in len(buf) bytes; callers size the area with DescBytes.
func NewDescriptorFile(buf []byte, wide bool) *DescriptorFile {
	return &DescriptorFile{buf: buf, wide: wide}
}

// DescBytes returns the byte size of a descriptor area holding n logical
// descriptors under the given addressing width.
func DescBytes(n int, wide bool) int {
	if wide {
		n *= 2
	}
	return n * DescSize
}

// Wide reports whether the file uses 64-bit (two-slot) descriptors.
func (f *DescriptorFile) Wide() bool { return f.wide }

// Cap returns the logical descriptor capacity of the area.
func (f *DescriptorFile) Cap() int {
	n := len(f.buf) / DescSize
	if f.wide {
		n /= 2
	}
	return n
}

func (f *DescriptorFile) physOff(i int) int {
	if f.wide {
		i *= 2
	}
	return i * DescSize
}

// AddrWord returns the raw low address word of descriptor i, including
// the RX flag bits.
func (f *DescriptorFile) AddrWord(i int) uint32 {
	return binary.LittleEndian.Uint32(f.buf[f.physOff(i)+descAddrOff:])
}

// SetAddrWord stores the raw low address word of descriptor i. The high
// word, if any, is left untouched; use SetAddr to program a full buffer
// address.
func (f *DescriptorFile) SetAddrWord(i int, w uint32) {
	binary.LittleEndian.PutUint32(f.buf[f.physOff(i)+descAddrOff:], w)
}

// SetAddr programs the buffer address of descriptor i, ORing flags into
// the low word. In 64-bit mode the high half lands in the adjacent slot;
// in 32-bit mode the odd slots are never written.
func (f *DescriptorFile) SetAddr(i int, bus uint64, flags uint32) {
	off := f.physOff(i)
	binary.LittleEndian.PutUint32(f.buf[off+descAddrOff:], uint32(bus)|flags)
	if f.wide {
		binary.LittleEndian.PutUint32(f.buf[off+DescSize+descAddrOff:], uint32(bus>>32))
	}
}

// Ctrl returns the control/status word of descriptor i.
func (f *DescriptorFile) Ctrl(i int) uint32 {
	return binary.LittleEndian.Uint32(f.buf[f.physOff(i)+descCtrlOff:])
}

// SetCtrl stores the control/status word of descriptor i.
func (f *DescriptorFile) SetCtrl(i int, v uint32) {
	binary.LittleEndian.PutUint32(f.buf[f.physOff(i)+descCtrlOff:], v)
}
