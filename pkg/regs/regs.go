// Package regs describes the Cadence MACB/GEM register file and the DMA
// descriptor wire format. Offsets and bit positions follow the controller
// datasheet; nothing in this package touches hardware.
package regs

// Register offsets from the controller base address.
const (
	NCR    = 0x0000 // network control
	NCFGR  = 0x0004 // network configuration
	NSR    = 0x0008 // network status
	UsrIO  = 0x000c // GEM user I/O (MACB uses UsrIOMacb)
	DMACFG = 0x0010 // GEM DMA configuration
	TSR    = 0x0014 // transmit status
	RBQP   = 0x0018 // RX descriptor ring base, queue 0
	TBQP   = 0x001c // TX descriptor ring base, queue 0
	RSR    = 0x0020 // receive status
	ISR    = 0x0024 // interrupt status
	IER    = 0x0028 // interrupt enable
	IDR    = 0x002c // interrupt disable
	MAN    = 0x0034 // PHY maintenance (MDIO shift register)
	SA1B   = 0x0088 // specific address 1, bottom 32 bits
	SA1T   = 0x008c // specific address 1, top 16 bits
	MID    = 0x00fc // module identification

	UsrIOMacb = 0x00c0 // MACB user I/O

	DCFG1 = 0x0280 // design configuration 1
	DCFG6 = 0x0294 // design configuration 6

	TBQPH = 0x04c8 // TX ring base high word, queue 0 (64-bit DMA)
	RBQPH = 0x04d4 // RX ring base high word, queue 0 (64-bit DMA)

	SegAllocLower = 0x05a0 // TX SRAM segment allocation, queues 0-7
	SegAllocUpper = 0x05a4 // TX SRAM segment allocation, queues 8-15
)

// Per-queue ring base registers for queues 1 and up. Queue 0 uses
// RBQP/TBQP (and RBQPH/TBQPH) above.
func QueueTBQP(q int) uint32  { return 0x0440 + uint32(q-1)*4 }
func QueueRBQP(q int) uint32  { return 0x0480 + uint32(q-1)*4 }
func QueueTBQPH(q int) uint32 { return 0x04cc + uint32(q-1)*4 }
func QueueRBQPH(q int) uint32 { return 0x04d8 + uint32(q-1)*4 }

// NCR bits.
const (
	NCRLoopbackLocal = 1 << 1
	NCRRxEnable      = 1 << 2
	NCRTxEnable      = 1 << 3
	NCRMdioEnable    = 1 << 4
	NCRClearStats    = 1 << 5
	NCRTxStart       = 1 << 9
	NCRTxHalt        = 1 << 10
)

// NCFGR bits. The MDC clock divider field moved from bits 10-11 (MACB) to
// bits 18-20 (GEM) because GEM claims bit 10 for gigabit enable.
const (
	NCFGRSpeed100   = 1 << 0
	NCFGRFullDuplex = 1 << 1
	NCFGRGigabit    = 1 << 10 // GEM only
	NCFGRPCSSel     = 1 << 11 // GEM only
	NCFGRSGMIIEn    = 1 << 27 // GEM only

	MacbClkShift = 10
	MacbClkMask  = 0x3 << MacbClkShift
	GemClkShift  = 18
	GemClkMask   = 0x7 << GemClkShift
	GemDBWShift  = 21
	GemDBWMask   = 0x7 << GemDBWShift
)

// MDC divider field values.
const (
	MacbClkDiv8  = 0
	MacbClkDiv16 = 1
	MacbClkDiv32 = 2
	MacbClkDiv64 = 3

	GemClkDiv8   = 0
	GemClkDiv16  = 1
	GemClkDiv32  = 2
	GemClkDiv48  = 3
	GemClkDiv64  = 4
	GemClkDiv96  = 5
	GemClkDiv128 = 6
	GemClkDiv224 = 7
)

// MdcClkDiv returns the NCFGR MDC clock divider field for the given
// peripheral clock rate. GEM carries an extended divider table.
func MdcClkDiv(pclkHz int64, gem bool) uint32 {
	if !gem {
		var div uint32
		switch {
		case pclkHz < 20_000_000:
			div = MacbClkDiv8
		case pclkHz < 40_000_000:
			div = MacbClkDiv16
		case pclkHz < 80_000_000:
			div = MacbClkDiv32
		default:
			div = MacbClkDiv64
		}
		return div << MacbClkShift
	}
	var div uint32
	switch {
	case pclkHz < 20_000_000:
		div = GemClkDiv8
	case pclkHz < 40_000_000:
		div = GemClkDiv16
	case pclkHz < 80_000_000:
		div = GemClkDiv32
	case pclkHz < 160_000_000:
		div = GemClkDiv48
	case pclkHz < 240_000_000:
		div = GemClkDiv96
	case pclkHz < 320_000_000:
		div = GemClkDiv128
	default:
		div = GemClkDiv224
	}
	return div << GemClkShift
}

// DBWField decodes DCFG1's default bus width and returns the matching
// NCFGR DBW field to program.
func DBWField(dcfg1 uint32) uint32 {
	switch (dcfg1 >> 25) & 0x7 {
	case 4:
		return 4 << GemDBWShift // 128-bit
	case 2:
		return 2 << GemDBWShift // 64-bit
	default:
		return 1 << GemDBWShift // 32-bit
	}
}

// NSR bits.
const (
	NSRMdioIdle = 1 << 2
)

// TSR bits.
const (
	TSRUsedBitRead = 1 << 0
	TSRCollision   = 1 << 1
	TSRRetryLimit  = 1 << 2
	TSRTxGo        = 1 << 3
	TSRTxComplete  = 1 << 5
	TSRUnderrun    = 1 << 6
)

// DMACFG (GEM) fields.
const (
	DMAFBLDOMask   = 0x1f      // fixed burst length
	DMAEndiaPkt    = 1 << 6    // endianness swap on packet data
	DMAEndiaDesc   = 1 << 7    // endianness swap on descriptor words
	DMARxBMSFull   = 0x3 << 8  // full RX packet-buffer memory
	DMATxPBMS      = 1 << 10   // full TX packet-buffer memory
	DMARxBSShift   = 16        // RX buffer size in units of 64 bytes
	DMARxBSMask    = 0xff << DMARxBSShift
	DMAAddr64      = 1 << 30   // 64-bit descriptor addressing
)

// DCFG6 bits.
const (
	DCFG6DAW64     = 1 << 23 // controller supports 64-bit DMA addressing
	DCFG6QueueMask = 0xffff  // supported queue bitmap, bit 0 unused
)

// MDIO maintenance frame fields (Clause 22).
const (
	manSOF       = 1 << 30
	manWrite     = 1 << 28
	manRead      = 2 << 28
	manPhyShift  = 23
	manRegShift  = 18
	manCode      = 2 << 16
	ManDataMask  = 0xffff
)

// MDIOWriteFrame builds a Clause 22 write frame for the MAN register.
func MDIOWriteFrame(phyAddr, reg uint8, value uint16) uint32 {
	return manSOF | manWrite | uint32(phyAddr&0x1f)<<manPhyShift |
		uint32(reg&0x1f)<<manRegShift | manCode | uint32(value)
}

// MDIOReadFrame builds a Clause 22 read frame for the MAN register. The
// PHY's reply lands in the low 16 bits of MAN once NSR reports idle.
func MDIOReadFrame(phyAddr, reg uint8) uint32 {
	return manSOF | manRead | uint32(phyAddr&0x1f)<<manPhyShift |
		uint32(reg&0x1f)<<manRegShift | manCode
}

// IsGEM reports whether the module identification register describes a
// GEM-flavored controller (larger buffers, DMA config, multi-queue).
func IsGEM(mid uint32) bool {
	return (mid>>16)&0xfff >= 0x2
}
