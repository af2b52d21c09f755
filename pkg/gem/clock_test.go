package gem

import (
	"testing"

	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/phy"
	"github.com/emergingrobotics/go-gem/testutil"
)

func TestClockRateStrategySetsTxClk(t *testing.T) {
	clocks := testutil.NewFakeClocks(map[string]int64{"tx_clk": 125_000_000})
	s := &clockRateStrategy{clocks: clocks}

	if err := s.SetSpeed(phy.Speed100); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if got, _ := clocks.Rate("tx_clk"); got != 25_000_000 {
		t.Errorf("tx_clk = %d, want 25MHz", got)
	}
}

func TestClockRateStrategyToleratesMissingTxClk(t *testing.T) {
	clocks := testutil.NewFakeClocks(map[string]int64{"pclk": 125_000_000})
	s := &clockRateStrategy{clocks: clocks}

	if err := s.SetSpeed(phy.Speed1000); err != nil {
		t.Errorf("SetSpeed without a tx_clk line = %v, want nil", err)
	}
}

func TestClockRateStrategyPrefersInitHook(t *testing.T) {
	clocks := testutil.NewFakeClocks(map[string]int64{"tx_clk": 0})
	var hookRate int64
	s := &clockRateStrategy{
		clocks: clocks,
		init: func(_ hw.ClockController, rate int64) error {
			hookRate = rate
			return nil
		},
	}

	if err := s.SetSpeed(phy.Speed10); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if hookRate != 2_500_000 {
		t.Errorf("hook rate = %d, want 2.5MHz", hookRate)
	}
	if len(clocks.SetRates) != 0 {
		t.Error("default tx_clk path ran despite the init hook")
	}
}

func TestSiFiveClockInitSelectsMode(t *testing.T) {
	f := testutil.NewFakeHW()
	init := SiFiveClockInit(f)

	if err := init(nil, 125_000_000); err != nil {
		t.Fatalf("gigabit init: %v", err)
	}
	if f.Regs[0] != 0 {
		t.Errorf("GEMGXL mode = %d, want GMII (0) at 125MHz", f.Regs[0])
	}

	if err := init(nil, 25_000_000); err != nil {
		t.Fatalf("100M init: %v", err)
	}
	if f.Regs[0] != 1 {
		t.Errorf("GEMGXL mode = %d, want MII (1) below 125MHz", f.Regs[0])
	}
}
