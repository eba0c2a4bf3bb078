//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers"

	"spibind/board"
	"spibind/core"
)

// LCD controller commands used during bring-up
const (
	lcdSleepOut  = 0x11
	lcdColorMode = 0x3a
	lcdDisplayOn = 0x29

	flashReadID = 0x9f

	// MAX6675-style converter: 16-bit frame, temperature in bits 14..3 in
	// quarter degrees, bit 2 set when the thermocouple is open
	tcOpen     = 1 << 2
	tcInterval = time.Second
)

func main() {
	// Disable watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitDebug()

	gpio := NewRPGPIODriver()
	core.SetGPIODriver(gpio)

	b, err := board.New(board.PicoDisplay(), core.MustGPIO())
	if err != nil {
		core.DebugPrintln("board: " + err.Error())
		halt()
	}
	// Failures are logged by the binding; keep going with what configured
	_ = b.Initialize()

	spi := NewRP2040SPIDriver(board.PicoSDBus)

	sdOps, _ := b.Bus(board.PicoSDBus)
	sdBus := core.NewBus(board.PicoSDBus, spi, sdOps)
	if err := sdBus.Configure(0, 400000); err != nil {
		core.DebugPrintln("sd bus: " + err.Error())
	}

	lcdOps, _ := b.Bus(board.PicoLCDBus)
	lcdBus := core.NewBus(board.PicoLCDBus, spi, lcdOps)
	if err := lcdBus.Configure(0, 31250000); err != nil {
		core.DebugPrintln("lcd bus: " + err.Error())
	}

	initLCD(lcdBus.Device(board.PicoLCD))
	readFlashID(lcdBus.Device(board.PicoFlash))

	// Bit-banged on GPIO2-4; b.SPIDriver hands back the board's soft driver
	tcOps, _ := b.Bus(board.PicoSensorBus)
	tcBus := core.NewBus(board.PicoSensorBus, b.SPIDriver(board.PicoSensorBus, spi), tcOps)
	if err := tcBus.Configure(1, 1000000); err != nil {
		core.DebugPrintln("sensor bus: " + err.Error())
	}
	tc := tcBus.Device(board.PicoTemp)

	sd := sdBus.Device(board.PicoSD)
	present := false
	lastTemp := time.Now()
	for {
		// Report card insert/remove
		now := sd.Status().Has(core.StatusPresent)
		if now != present {
			present = now
			if present {
				core.DebugAsync("sdcard inserted")
			} else {
				core.DebugAsync("sdcard removed")
			}
		}
		if time.Since(lastTemp) >= tcInterval {
			lastTemp = time.Now()
			readTemperature(tc)
			if n := core.DebugDropped(); n > 0 {
				core.DebugAsync("debug: " + core.Utoa(n) + " lines dropped")
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// readTemperature logs one conversion in whole degrees Celsius
func readTemperature(tc drivers.SPI) {
	rx := make([]byte, 2)
	if err := tc.Tx([]byte{0, 0}, rx); err != nil {
		core.DebugAsync("thermocouple: " + err.Error())
		return
	}
	raw := uint32(rx[0])<<8 | uint32(rx[1])
	if raw&tcOpen != 0 {
		core.DebugAsync("thermocouple: open")
		return
	}
	core.DebugAsync("thermocouple: " + core.Utoa(raw>>5) + " C")
}

func initLCD(lcd *core.Device) {
	if err := lcd.WriteCommand([]byte{lcdSleepOut}); err != nil {
		core.DebugPrintln("lcd: " + err.Error())
		return
	}
	time.Sleep(120 * time.Millisecond)

	// 16 bits per pixel
	if err := lcd.WriteCommandData([]byte{lcdColorMode}, []byte{0x55}); err != nil {
		core.DebugPrintln("lcd: " + err.Error())
		return
	}
	if err := lcd.WriteCommand([]byte{lcdDisplayOn}); err != nil {
		core.DebugPrintln("lcd: " + err.Error())
	}
}

// readFlashID reads the JEDEC id over the generic drivers.SPI interface
func readFlashID(dev drivers.SPI) {
	tx := []byte{flashReadID, 0, 0, 0}
	rx := make([]byte, len(tx))
	if err := dev.Tx(tx, rx); err != nil {
		core.DebugPrintln("flash: " + err.Error())
		return
	}
	core.DebugPrintln("flash JEDEC id " + hex(rx[1]) + " " + hex(rx[2]) + " " + hex(rx[3]))
}

func halt() {
	for {
		time.Sleep(time.Second)
	}
}
