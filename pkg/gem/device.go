// Package gem drives the Cadence MACB/GEM Ethernet controller in polled
// mode: DMA descriptor rings in shared memory, MDIO-attached PHY
// negotiation, and explicit cache maintenance for non-coherent
// platforms.
package gem

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/mdio"
	"github.com/emergingrobotics/go-gem/pkg/phy"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// TxTimeoutAttempts bounds the per-frame wait for transmit completion.
const TxTimeoutAttempts = 1000

// Multi-queue geometry: the controller can expose up to 16 queues and
// carves its TX SRAM into 16 segments shared among them.
const (
	MaxQueues      = 16
	SegmentsNum    = 16
	LowerSegQueues = 8
)

// mdioDelay paces MDIO idle polling and autonegotiation polling.
const mdioDelay = 100 * time.Microsecond

// FixedLink describes a link whose parameters are known ahead of time
// (direct MAC-to-MAC wiring, or a PHY managed elsewhere). When set,
// negotiation is skipped entirely.
type FixedLink struct {
	Speed      phy.Speed
	FullDuplex bool
}

// Options collects everything Device needs at construction. IO, Alloc
// and Config are mandatory; the rest defaults sensibly.
type Options struct {
	IO     hw.RegisterIO
	Cache  hw.CacheOps
	Alloc  hw.Allocator
	Clocks hw.ClockController
	Config Config

	Mode      phy.InterfaceMode
	PHYAddr   uint8
	FixedLink *FixedLink

	// CacheLineSize is the platform data cache line size; 0 means 64.
	CacheLineSize int

	// BigEndianCPU makes the controller byte-swap descriptor words so
	// the in-memory view matches a big-endian CPU.
	BigEndianCPU bool

	// LinkClock overrides the default tx_clk retuning strategy.
	LinkClock LinkClock

	Log   logrus.FieldLogger
	Sleep func(time.Duration)
}

// Stats counts transmit-path anomalies. The send path deliberately does
// not fail on them; the counters are the only durable record.
type Stats struct {
	TxFrames       uint64
	TxTimeouts     uint64
	TxUnderruns    uint64
	TxBufExhausted uint64
	RxFrames       uint64
}

// Device is one MACB/GEM controller instance. Not safe for concurrent
// use; callers serialize access.
type Device struct {
	io        hw.RegisterIO
	cache     hw.CacheOps
	clocks    hw.ClockController
	linkClock LinkClock
	cfg       Config
	log       logrus.FieldLogger
	sleep     func(time.Duration)

	isGEM     bool
	pclkRate  int64
	cacheLine int
	bigEndian bool

	rxRing  *descRing
	txRing  *descRing
	rxPool  *hw.Region
	dummy   *hw.Region
	txStage *hw.Region
	scratch [4096]byte

	rxBufSize  int
	rxTail     int
	nextRxTail int
	wrapped    bool
	txHead     int

	mode    phy.InterfaceMode
	phyAddr uint8
	fixed   *FixedLink
	bus     *mdio.MACBus

	stats Stats
}

// New maps a Device over an already-probed controller: enables the
// peripheral clock, sizes the RX buffers from the controller flavor, and
// allocates all DMA memory up front. The controller is left stopped;
// call Start to bring the link up.
func New(opts Options) (*Device, error) {
	if opts.IO == nil || opts.Alloc == nil {
		return nil, newError(StatusInvalidConfig, "gem: missing register IO or allocator")
	}
	if opts.Cache == nil {
		opts.Cache = hw.NoopCache{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.CacheLineSize == 0 {
		opts.CacheLineSize = 64
	}

	d := &Device{
		io:        opts.IO,
		cache:     opts.Cache,
		clocks:    opts.Clocks,
		cfg:       opts.Config,
		log:       opts.Log,
		sleep:     opts.Sleep,
		cacheLine: opts.CacheLineSize,
		bigEndian: opts.BigEndianCPU,
		mode:      opts.Mode,
		phyAddr:   opts.PHYAddr,
		fixed:     opts.FixedLink,
	}

	if opts.Clocks != nil {
		if err := opts.Clocks.Enable("pclk"); err != nil {
			return nil, wrapError(StatusInvalidConfig, "gem: enable pclk", err)
		}
		rate, err := opts.Clocks.Rate("pclk")
		if err != nil {
			return nil, wrapError(StatusInvalidConfig, "gem: read pclk rate", err)
		}
		d.pclkRate = rate
	}

	d.isGEM = regs.IsGEM(opts.IO.Read32(regs.MID))
	if d.isGEM {
		d.rxBufSize = GemRxBufferSize
	} else {
		d.rxBufSize = MacbRxBufferSize
	}

	d.linkClock = opts.LinkClock
	if d.linkClock == nil {
		d.linkClock = &clockRateStrategy{clocks: opts.Clocks, init: opts.Config.ClockInit}
	}

	if err := d.allocate(opts.Alloc); err != nil {
		return nil, err
	}

	// MDC must be safe before any PHY traffic.
	ncfgr := regs.MdcClkDiv(d.pclkRate, d.isGEM)
	if d.isGEM {
		ncfgr |= regs.DBWField(opts.IO.Read32(regs.DCFG1))
	}
	opts.IO.Write32(regs.NCFGR, ncfgr)

	d.bus = mdio.New(opts.IO, func() { d.sleep(mdioDelay) })
	return d, nil
}

func (d *Device) allocate(alloc hw.Allocator) error {
	wide := d.cfg.DMACap64
	var err error
	if d.rxRing, err = newDescRing(alloc, d.cache, RxRingSize, wide, d.cacheLine); err != nil {
		return wrapError(StatusResourceExhausted, "gem: alloc rx ring", err)
	}
	if d.txRing, err = newDescRing(alloc, d.cache, TxRingSize, wide, d.cacheLine); err != nil {
		return wrapError(StatusResourceExhausted, "gem: alloc tx ring", err)
	}
	if d.rxPool, err = alloc.Alloc(d.rxBufSize*RxRingSize, PktAlign); err != nil {
		return wrapError(StatusResourceExhausted, "gem: alloc rx pool", err)
	}
	if d.txStage, err = alloc.Alloc(TxBufferSize, PktAlign); err != nil {
		return wrapError(StatusResourceExhausted, "gem: alloc tx staging", err)
	}
	if d.dummy, err = alloc.Alloc(regs.DescBytes(1, wide), PktAlign); err != nil {
		return wrapError(StatusResourceExhausted, "gem: alloc dummy descriptor", err)
	}
	return nil
}

// IsGEM reports the controller flavor read from the module ID register.
func (d *Device) IsGEM() bool { return d.isGEM }

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats { return d.stats }

// MDIO exposes the controller's MDIO master for external PHY tooling.
func (d *Device) MDIO() mdio.Bus { return d.bus }

func (d *Device) gigabitCapable() bool {
	return d.isGEM && d.cfg.Caps&CapNoGigabit == 0 && d.mode.GigabitCapable()
}

// Start programs the rings and datapath registers, brings the link up,
// and enables TX and RX. It may be called again after Stop.
func (d *Device) Start() error {
	if d.cfg.DisableClocksAtStop && d.clocks != nil {
		if err := d.clocks.Enable("pclk"); err != nil {
			return wrapError(StatusInvalidConfig, "gem: enable pclk", err)
		}
		if err := d.clocks.Enable("hclk"); err != nil {
			return wrapError(StatusInvalidConfig, "gem: enable hclk", err)
		}
	}

	d.initRings()

	d.io.Write32(regs.RBQP, uint32(d.rxRing.mem.Bus()))
	d.io.Write32(regs.TBQP, uint32(d.txRing.mem.Bus()))
	if d.cfg.DMACap64 {
		d.io.Write32(regs.RBQPH, uint32(d.rxRing.mem.Bus()>>32))
		d.io.Write32(regs.TBQPH, uint32(d.txRing.mem.Bus()>>32))
	}

	if d.isGEM {
		d.initMultiQueues()
		d.configureDMA()

		usrio := d.usrioValue()
		if d.mode == phy.ModeSGMII {
			ncfgr := d.io.Read32(regs.NCFGR)
			d.io.Write32(regs.NCFGR, ncfgr|regs.NCFGRSGMIIEn|regs.NCFGRPCSSel)
		}
		d.io.Write32(regs.UsrIO, usrio)
	} else {
		d.io.Write32(regs.UsrIOMacb, d.usrioValue())
	}

	if err := d.phyInit(); err != nil {
		return err
	}

	d.io.Write32(regs.NCR, regs.NCRTxEnable|regs.NCRRxEnable)
	d.log.Info("datapath enabled")
	return nil
}

// usrioValue picks the USR-I/O bits for the configured signaling mode.
func (d *Device) usrioValue() uint32 {
	var v uint32
	switch d.mode {
	case phy.ModeRGMII, phy.ModeRGMIIID, phy.ModeRGMIIRxID, phy.ModeRGMIITxID, phy.ModeGMII:
		v = d.cfg.USRIO.RGMII
	case phy.ModeRMII:
		v = d.cfg.USRIO.RMII
	case phy.ModeMII:
		v = d.cfg.USRIO.MII
	}
	if d.cfg.Caps&CapUSRIOHasClkEn != 0 {
		v |= d.cfg.USRIO.ClkEn
	}
	return v
}

// configureDMA programs the GEM DMA shape: burst length, packet buffer
// memory sizes, RX buffer size, and 64-bit addressing. A nonzero
// per-variant override wins outright.
func (d *Device) configureDMA() {
	if d.cfg.DMACFGOverride != 0 {
		d.io.Write32(regs.DMACFG, d.cfg.DMACFGOverride)
		return
	}
	cfg := d.io.Read32(regs.DMACFG)
	if d.cfg.DMABurstLength != 0 {
		cfg = (cfg &^ uint32(regs.DMAFBLDOMask)) | (d.cfg.DMABurstLength & regs.DMAFBLDOMask)
	}
	cfg &^= uint32(regs.DMAEndiaPkt)
	if d.bigEndian {
		cfg |= regs.DMAEndiaDesc
	} else {
		cfg &^= uint32(regs.DMAEndiaDesc)
	}
	cfg |= regs.DMARxBMSFull | regs.DMATxPBMS
	cfg = (cfg &^ uint32(regs.DMARxBSMask)) |
		(uint32(d.rxBufSize/RxBufferMultiple) << regs.DMARxBSShift)
	if d.cfg.DMACap64 && d.io.Read32(regs.DCFG6)&regs.DCFG6DAW64 != 0 {
		cfg |= regs.DMAAddr64
	} else {
		cfg &^= uint32(regs.DMAAddr64)
	}
	d.io.Write32(regs.DMACFG, cfg)
}

// initMultiQueues parks the queues the datapath does not use on a
// permanently-used dummy descriptor and splits the TX SRAM segments
// across the queues that remain.
func (d *Device) initMultiQueues() {
	if d.cfg.DisableQueuesAtInit {
		for q := 1; q < MaxQueues; q++ {
			d.io.Write32(regs.QueueTBQP(q), 1)
			d.io.Write32(regs.QueueRBQP(q), 1)
		}
	}

	hwMask := d.io.Read32(regs.DCFG6)&regs.DCFG6QueueMask | 1
	mask := hwMask
	if d.cfg.QueueMask != 0 {
		mask &= d.cfg.QueueMask | 1
	}
	num := bits.OnesCount32(mask)

	df := regs.NewDescriptorFile(d.dummy.Bytes(), d.cfg.DMACap64)
	df.SetCtrl(0, regs.TxUsed)
	df.SetAddr(0, 0, 0)
	d.cache.FlushRange(d.dummy.Bus(), hw.AlignUp(d.dummy.Size(), PktAlign))

	// Queues present in hardware but excluded from the datapath still
	// need a valid ring base.
	for q := 1; q < MaxQueues; q++ {
		if hwMask&(1<<q) == 0 || mask&(1<<q) != 0 {
			continue
		}
		d.io.Write32(regs.QueueTBQP(q), uint32(d.dummy.Bus()))
		d.io.Write32(regs.QueueRBQP(q), uint32(d.dummy.Bus()))
		if d.cfg.DMACap64 {
			d.io.Write32(regs.QueueTBQPH(q), uint32(d.dummy.Bus()>>32))
			d.io.Write32(regs.QueueRBQPH(q), uint32(d.dummy.Bus()>>32))
		}
	}

	if d.cfg.AllocateSegmentsEqually {
		d.writeSegmentAllocation(mask, num)
	}
}

// writeSegmentAllocation splits the 16 TX SRAM segments equally across
// the enabled queues, encoded as a log2 segment count per queue nibble.
func (d *Device) writeSegmentAllocation(mask uint32, num int) {
	if num == 0 {
		return
	}
	segPerQueue := SegmentsNum / num
	logSeg := uint32(bits.Len(uint(segPerQueue)) - 1)

	var lower, upper uint32
	for q := 0; q < MaxQueues; q++ {
		if mask&(1<<q) == 0 {
			continue
		}
		if q < LowerSegQueues {
			lower |= logSeg << (q * 4)
		} else {
			upper |= logSeg << ((q - LowerSegQueues) * 4)
		}
	}
	d.io.Write32(regs.SegAllocLower, lower)
	d.io.Write32(regs.SegAllocUpper, upper)
}

// phyInit brings the link up: discover the PHY, negotiate (or apply the
// fixed link) and program the MAC side to match.
func (d *Device) phyInit() error {
	if d.fixed != nil {
		d.log.WithFields(logrus.Fields{
			"speed":  int(d.fixed.Speed),
			"duplex": d.fixed.FullDuplex,
		}).Info("using fixed link")
		return d.programLink(phy.Link{Speed: d.fixed.Speed, FullDuplex: d.fixed.FullDuplex})
	}

	addr, err := phy.Discover(d.bus, d.phyAddr)
	if err != nil {
		return wrapError(StatusNoDevice, "gem: phy discovery", err)
	}
	if addr != d.phyAddr {
		d.log.WithField("addr", addr).Info("PHY found at scanned address")
		d.phyAddr = addr
	}

	neg := &phy.Negotiator{
		Bus:  d.bus,
		Addr: addr,
		Poll: hw.Poller{
			MaxAttempts: phy.AutonegAttempts,
			Delay:       func() { d.sleep(mdioDelay) },
		},
		Log: d.log,
	}
	link, err := neg.Run(d.gigabitCapable())
	if err != nil {
		if errors.Is(err, phy.ErrLinkDown) {
			return wrapError(StatusLinkDown, "gem: phy", err)
		}
		return wrapError(StatusNoDevice, "gem: phy negotiation", err)
	}
	return d.programLink(link)
}

// programLink retunes the transmit clock for the negotiated speed, then
// rewrites the NCFGR speed and duplex bits. The clock changes first so
// the MAC never runs at the new speed off the old clock.
func (d *Device) programLink(link phy.Link) error {
	if err := d.linkClock.SetSpeed(link.Speed); err != nil {
		return wrapError(StatusInvalidConfig, "gem: link clock", err)
	}

	ncfgr := d.io.Read32(regs.NCFGR)
	ncfgr &^= uint32(regs.NCFGRSpeed100 | regs.NCFGRFullDuplex | regs.NCFGRGigabit)
	switch link.Speed {
	case phy.Speed100:
		ncfgr |= regs.NCFGRSpeed100
	case phy.Speed1000:
		if !d.gigabitCapable() {
			return newError(StatusInvalidConfig,
				fmt.Sprintf("gem: 1000Mb/s link on non-gigabit setup (%s)", d.mode))
		}
		ncfgr |= regs.NCFGRGigabit
	}
	if link.FullDuplex {
		ncfgr |= regs.NCFGRFullDuplex
	}
	d.io.Write32(regs.NCFGR, ncfgr)
	return nil
}

// SetHardwareAddr programs the station MAC address into specific
// address register 1.
func (d *Device) SetHardwareAddr(addr [6]byte) {
	bottom := uint32(addr[0]) | uint32(addr[1])<<8 |
		uint32(addr[2])<<16 | uint32(addr[3])<<24
	top := uint32(addr[4]) | uint32(addr[5])<<8
	d.io.Write32(regs.SA1B, bottom)
	d.io.Write32(regs.SA1T, top)
}

// halt quiesces the transmitter: request halt, wait (bounded) for the
// TX state machine to stop, then clear the statistics and disable the
// datapath.
func (d *Device) halt() {
	ncr := d.io.Read32(regs.NCR)
	d.io.Write32(regs.NCR, ncr|regs.NCRTxHalt)

	p := hw.Poller{MaxAttempts: TxTimeoutAttempts, Delay: func() { d.sleep(time.Microsecond) }}
	if !p.Poll(func() bool { return d.io.Read32(regs.TSR)&regs.TSRTxGo == 0 }) {
		d.log.Warn("transmitter did not halt")
	}

	d.io.Write32(regs.NCR, regs.NCRClearStats)

	if d.cfg.DisableQueuesAtHalt {
		d.io.Write32(regs.RBQP, 1)
		d.io.Write32(regs.TBQP, 1)
		for q := 1; q < MaxQueues; q++ {
			d.io.Write32(regs.QueueTBQP(q), 1)
		}
	}
}

// Stop halts the controller and, on variants that ask for it, gates the
// bus clocks until the next Start.
func (d *Device) Stop() {
	d.halt()
	if d.cfg.DisableClocksAtStop && d.clocks != nil {
		if err := d.clocks.Disable("hclk"); err != nil {
			d.log.WithError(err).Warn("disable hclk")
		}
		if err := d.clocks.Disable("pclk"); err != nil {
			d.log.WithError(err).Warn("disable pclk")
		}
	}
}
