package gem

import (
	"errors"

	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/phy"
)

// LinkClock retunes the transmit clock when the negotiated link speed
// changes. Injected at construction; the default implementation is
// derived from the device's clock controller and config.
type LinkClock interface {
	SetSpeed(speed phy.Speed) error
}

// RateForSpeed maps a link speed to its transmit clock rate.
func RateForSpeed(speed phy.Speed) int64 {
	switch speed {
	case phy.Speed10:
		return 2_500_000
	case phy.Speed100:
		return 25_000_000
	case phy.Speed1000:
		return 125_000_000
	}
	return 0
}

// NopLinkClock ignores speed changes, for platforms whose clock tree
// retunes itself.
type NopLinkClock struct{}

func (NopLinkClock) SetSpeed(phy.Speed) error { return nil }

// SiFiveClockInit returns the FU540 GEMGXL hook: the management
// register selects GMII mode (internal 125MHz clock) for gigabit links
// and MII mode (external TX_CLK) for everything slower.
func SiFiveClockInit(mgmt hw.RegisterIO) ClockInitFunc {
	return func(_ hw.ClockController, rateHz int64) error {
		var mode uint32
		if rateHz != 125_000_000 {
			mode = 1
		}
		mgmt.Write32(0, mode)
		return nil
	}
}

// sama7g5GmacClockInit only ungates tx_clk; the generated clock block
// retunes itself from the link state.
func sama7g5GmacClockInit(clocks hw.ClockController, _ int64) error {
	if clocks == nil {
		return nil
	}
	return clocks.Enable("tx_clk")
}

// clockRateStrategy is the default LinkClock: run the platform's
// clock-init hook when one is configured, otherwise set the optional
// tx_clk line to the target rate. A missing tx_clk is not an error.
type clockRateStrategy struct {
	clocks hw.ClockController
	init   ClockInitFunc
}

func (c *clockRateStrategy) SetSpeed(speed phy.Speed) error {
	rate := RateForSpeed(speed)
	if rate == 0 {
		return nil
	}
	if c.init != nil {
		return c.init(c.clocks, rate)
	}
	if c.clocks == nil {
		return nil
	}
	if err := c.clocks.SetRate("tx_clk", rate); err != nil && !errors.Is(err, hw.ErrNoClock) {
		return err
	}
	return nil
}
