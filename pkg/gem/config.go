package gem

import "github.com/emergingrobotics/go-gem/pkg/hw"

// USRIOConfig is the per-platform USR-I/O bit table: the register values
// selecting the MAC-to-PHY signaling mode and the clock-enable bit.
type USRIOConfig struct {
	MII   uint32
	RMII  uint32
	RGMII uint32
	ClkEn uint32
}

// DefaultUSRIO matches the stock controller integration where bit 0
// selects the signaling mode and bit 1 enables the clock output.
var DefaultUSRIO = USRIOConfig{
	MII:   1 << 0,
	RMII:  1 << 0,
	RGMII: 1 << 0,
	ClkEn: 1 << 1,
}

// Caps flags describe controller integration quirks.
type Caps uint32

const (
	// CapUSRIOHasClkEn ORs the clock-enable bit into every USR-I/O write.
	CapUSRIOHasClkEn Caps = 1 << 0
	// CapNoGigabit marks GEM instances synthesized for 10/100 only.
	CapNoGigabit Caps = 1 << 1
)

// ClockInitFunc is an optional platform hook run instead of the default
// tx_clk rate change whenever the link speed resolves. rateHz is the
// target transmit clock rate for the new speed.
type ClockInitFunc func(clocks hw.ClockController, rateHz int64) error

// Config is the per-variant device configuration, supplied at
// construction. It replaces compiled-in board tables: the registry below
// is plain data and callers may build their own.
type Config struct {
	DMABurstLength uint32
	DMACap64       bool
	Caps           Caps

	// DMACFGOverride, when nonzero, is written verbatim to DMACFG
	// instead of the computed value (Zynq-style static setup).
	DMACFGOverride uint32

	// QueueMask filters the controller's advertised queue bitmap.
	// Zero means no filtering. Queue 0 is always kept.
	QueueMask uint32

	DisableQueuesAtHalt     bool
	DisableQueuesAtInit     bool
	AllocateSegmentsEqually bool
	DisableClocksAtStop     bool

	ClockInit ClockInitFunc
	USRIO     USRIOConfig
}

// Variants returns the known per-board configurations, keyed by the
// platform compatible name. The map is freshly built on every call so
// callers can tweak entries without aliasing.
func Variants() map[string]Config {
	return map[string]Config{
		"default": {
			DMABurstLength: 16,
			USRIO:          DefaultUSRIO,
		},
		"sama5d4": {
			DMABurstLength: 4,
			Caps:           CapNoGigabit,
			USRIO:          DefaultUSRIO,
		},
		"zynq": {
			DMABurstLength: 16,
			DMACFGOverride: zynqDMACFG,
			USRIO:          DefaultUSRIO,
		},
		"sifive": {
			DMABurstLength: 16,
			// Attach SiFiveClockInit with the GEMGXL management block
			// mapped separately.
			USRIO: DefaultUSRIO,
		},
		"sama7g5-gmac": {
			DMABurstLength: 16,
			ClockInit:      sama7g5GmacClockInit,
			USRIO:          USRIOConfig{MII: 0, RMII: 1, RGMII: 2, ClkEn: 1 << 2},
		},
		"sama7g5-emac": {
			DMABurstLength: 16,
			Caps:           CapUSRIOHasClkEn,
			USRIO:          USRIOConfig{MII: 0, RMII: 1, RGMII: 2, ClkEn: 1 << 2},
		},
		"hailo15": {
			DMACap64:                true,
			QueueMask:               0x3,
			DisableQueuesAtHalt:     true,
			DisableQueuesAtInit:     true,
			AllocateSegmentsEqually: true,
			DisableClocksAtStop:     true,
			USRIO:                   DefaultUSRIO,
		},
	}
}

// Zynq integrations program DMACFG once with a fixed value: INCR4 AHB
// bursts, full addressable TX/RX space, 128-byte RX buffers.
const zynqDMACFG = 0x00000004 | 0x00000300 | 0x00000400 | 0x00020000
