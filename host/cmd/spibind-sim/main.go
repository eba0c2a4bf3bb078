package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spibind/board"
	"spibind/core"
	"spibind/host/hostgpio"
	"spibind/sim"
)

var (
	configPath = flag.String("config", "", "Board configuration file (JSON)")
	boardName  = flag.String("board", "xmc4800-relax", "Built-in board preset (xmc4800-relax, pico-display)")
	gpioKind   = flag.String("gpio", "sim", "GPIO backend: sim or periph")
	verbose    = flag.Bool("verbose", false, "Log every chip select and command/data transition")
)

func main() {
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger.Sugar()); err != nil {
		logger.Error("spibind-sim failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func loadConfig() (board.Config, error) {
	if *configPath != "" {
		cfg, err := board.LoadConfigFile(*configPath)
		if err != nil {
			return board.Config{}, err
		}
		return *cfg, nil
	}
	cfg, ok := board.Preset(*boardName)
	if !ok {
		return board.Config{}, errors.Errorf("unknown board preset %q", *boardName)
	}
	return cfg, nil
}

func run(logger *zap.SugaredLogger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Binding trace goes through the same logger as everything else
	core.SetDebugWriter(func(s string) { logger.Debug(s) })
	core.SetDebugEnabled(*verbose)

	bank := sim.NewBank()
	var gpio core.GPIODriver = bank
	switch *gpioKind {
	case "sim":
	case "periph":
		d, err := hostgpio.Open()
		if err != nil {
			return err
		}
		gpio = d
	default:
		return errors.Errorf("unknown gpio backend %q", *gpioKind)
	}

	b, err := board.New(cfg, gpio)
	if err != nil {
		return err
	}
	logger.Infow("board bound", "board", b.Name(), "buses", len(b.Buses()))

	if err := b.Initialize(); err != nil {
		// Lines that did configure are still usable
		logger.Warnw("initialize reported failures", "error", err)
	}

	spi := sim.NewSPI(bank, watchedPins(cfg)...)
	for _, id := range b.Buses() {
		ops, _ := b.Bus(id)
		// Bit-banged buses clock through the GPIO backend instead
		bus := core.NewBus(id, b.SPIDriver(id, spi), ops)
		if err := bus.Configure(0, 1000000); err != nil {
			return errors.Wrapf(err, "configure %s", id)
		}
		busCfg, _ := cfg.Bus(id)
		devices := busCfg.Devices
		if len(devices) == 0 {
			// A bus-level select line serves whatever is attached
			devices = []board.DeviceConfig{{ID: 0}}
		}
		for _, dev := range devices {
			exercise(logger, bus, dev)
		}
	}

	if *gpioKind == "sim" {
		printTrace(bank, spi)
	}
	return nil
}

// exercise runs one status query and one command/data transaction against dev
func exercise(logger *zap.SugaredLogger, bus *core.Bus, dev board.DeviceConfig) {
	d := bus.Device(dev.ID)
	st := d.Status()
	logger.Infow("device",
		"bus", bus.ID().String(),
		"devid", dev.ID,
		"name", dev.Name,
		"present", st.Has(core.StatusPresent),
		"write_protected", st.Has(core.StatusWriteProtected),
	)

	err := d.WriteCommandData([]byte{0x2a}, []byte{0x00, 0x7f})
	switch {
	case errors.Is(err, core.ErrCmdDataUnsupported):
		// Plain transfer on buses without the command/data feature
		err = d.Tx([]byte{0x9f, 0x00, 0x00}, nil)
	case errors.Is(err, core.ErrCmdDataRejected):
		logger.Warnw("cmd/data rejected", "bus", bus.ID().String(), "devid", dev.ID, "error", err)
		return
	}
	if err != nil {
		logger.Warnw("transfer failed", "bus", bus.ID().String(), "devid", dev.ID, "error", err)
	}
}

func watchedPins(cfg board.Config) []core.GPIOPin {
	var pins []core.GPIOPin
	for _, bus := range cfg.Buses {
		if bus.CS != nil {
			pins = append(pins, bus.CS.Pin)
		}
		for _, dev := range bus.Devices {
			for _, l := range []*board.Line{dev.CS, dev.CmdData} {
				if l != nil {
					pins = append(pins, l.Pin)
				}
			}
		}
	}
	return pins
}

func printTrace(bank *sim.Bank, spi *sim.SPI) {
	fmt.Println("Pin trace:")
	for _, ev := range bank.Events() {
		fmt.Printf("  gpio%-3d %-7s %v\n", ev.Pin, ev.Op, ev.Level)
	}
	fmt.Println("Frames:")
	for _, f := range spi.Frames() {
		fmt.Printf("  %s tx=% x lines=%v\n", f.Bus, f.Tx, f.Lines)
	}
}
