package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/emergingrobotics/go-gem/pkg/gem"
	"github.com/emergingrobotics/go-gem/pkg/hw"
	"github.com/emergingrobotics/go-gem/pkg/phy"
	"github.com/emergingrobotics/go-gem/pkg/regs"
)

// Version information (set by ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "info":
		if len(args) < 1 {
			fmt.Println("Usage: gemctl info <base-addr>")
			os.Exit(1)
		}
		controllerInfo(args[0])
	case "link":
		if len(args) < 2 {
			fmt.Println("Usage: gemctl link <base-addr> <variant> [phy-mode]")
			os.Exit(1)
		}
		bringLinkUp(args)
	case "send":
		if len(args) < 4 {
			fmt.Println("Usage: gemctl send <base-addr> <variant> <mac> <hex-frame>")
			os.Exit(1)
		}
		sendFrame(args)
	case "variants":
		listVariants()
	case "version":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Cadence GEM/MACB control CLI")
	fmt.Println()
	fmt.Println("Usage: gemctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  info <base-addr>                          Identify the controller")
	fmt.Println("  link <base-addr> <variant> [phy-mode]     Bring the link up and report it")
	fmt.Println("  send <base-addr> <variant> <mac> <frame>  Transmit one hex-encoded frame")
	fmt.Println("  variants                                  List known board variants")
	fmt.Println("  version                                   Print version information")
	fmt.Println("  help                                      Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  GEMCTL_DMA_FILE  DMA memory file (default /dev/gem-dma)")
	fmt.Println("  GEMCTL_DMA_BASE  Bus address of the DMA file (hex)")
}

func printVersion() {
	fmt.Printf("gemctl version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Go version: %s\n", GoVersion)
}

func listVariants() {
	for name, cfg := range gem.Variants() {
		fmt.Printf("  %-14s dma64=%v queues=%#x\n", name, cfg.DMACap64, cfg.QueueMask)
	}
}

func parseBase(s string) uint64 {
	base, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		fmt.Printf("Bad base address %q: %v\n", s, err)
		os.Exit(1)
	}
	return base
}

func controllerInfo(baseArg string) {
	base := parseBase(baseArg)
	io, err := hw.MapMMIO(base, 0x1000, false)
	if err != nil {
		fmt.Printf("Error mapping registers: %v\n", err)
		os.Exit(1)
	}
	defer io.Close()

	mid := io.Read32(regs.MID)
	flavor := "MACB"
	if regs.IsGEM(mid) {
		flavor = "GEM"
	}
	fmt.Printf("Controller at %#x\n", base)
	fmt.Printf("  Module ID: %#08x (%s)\n", mid, flavor)
	if regs.IsGEM(mid) {
		dcfg6 := io.Read32(regs.DCFG6)
		fmt.Printf("  Queues: %#04x\n", dcfg6&regs.DCFG6QueueMask|1)
		fmt.Printf("  64-bit DMA: %v\n", dcfg6&regs.DCFG6DAW64 != 0)
	}
}

func openDevice(baseArg, variant, modeArg string) *gem.Device {
	base := parseBase(baseArg)
	cfg, ok := gem.Variants()[variant]
	if !ok {
		fmt.Printf("Unknown variant %q (try: gemctl variants)\n", variant)
		os.Exit(1)
	}
	mode := phy.ModeRGMII
	if modeArg != "" {
		m, err := phy.ParseMode(modeArg)
		if err != nil {
			fmt.Printf("Bad phy-mode: %v\n", err)
			os.Exit(1)
		}
		mode = m
	}

	io, err := hw.MapMMIO(base, 0x1000, false)
	if err != nil {
		fmt.Printf("Error mapping registers: %v\n", err)
		os.Exit(1)
	}

	dmaFile := os.Getenv("GEMCTL_DMA_FILE")
	if dmaFile == "" {
		dmaFile = "/dev/gem-dma"
	}
	dmaBase := uint64(0)
	if s := os.Getenv("GEMCTL_DMA_BASE"); s != "" {
		dmaBase = parseBase(s)
	}
	arena, err := hw.MapArena(dmaFile, dmaBase, 1<<20)
	if err != nil {
		fmt.Printf("Error mapping DMA memory: %v\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	dev, err := gem.New(gem.Options{
		IO:     io,
		Cache:  hw.NoopCache{},
		Alloc:  arena,
		Config: cfg,
		Mode:   mode,
		Log:    log,
	})
	if err != nil {
		fmt.Printf("Error setting up controller: %v\n", err)
		os.Exit(1)
	}
	return dev
}

func bringLinkUp(args []string) {
	modeArg := ""
	if len(args) > 2 {
		modeArg = args[2]
	}
	dev := openDevice(args[0], args[1], modeArg)
	defer dev.Stop()

	if err := dev.Start(); err != nil {
		if errors.Is(err, gem.ErrLinkDown) {
			fmt.Println("No link (cable unplugged?)")
			os.Exit(1)
		}
		fmt.Printf("Error starting controller: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Link up")
}

func sendFrame(args []string) {
	mac, err := net.ParseMAC(args[2])
	if err != nil || len(mac) != 6 {
		fmt.Printf("Bad MAC address %q\n", args[2])
		os.Exit(1)
	}
	frame, err := hex.DecodeString(args[3])
	if err != nil {
		fmt.Printf("Bad hex frame: %v\n", err)
		os.Exit(1)
	}

	dev := openDevice(args[0], args[1], "")
	defer dev.Stop()

	var addr [6]byte
	copy(addr[:], mac)
	dev.SetHardwareAddr(addr)

	if err := dev.Start(); err != nil {
		fmt.Printf("Error starting controller: %v\n", err)
		os.Exit(1)
	}
	if err := dev.Send(frame); err != nil {
		fmt.Printf("Error sending frame: %v\n", err)
		os.Exit(1)
	}

	stats := dev.Stats()
	fmt.Printf("Sent %d bytes (tx frames: %d, timeouts: %d)\n",
		len(frame), stats.TxFrames, stats.TxTimeouts)
}
