//go:build rp2040 || rp2350

package main

import (
	"machine"

	"spibind/core"
)

// InitDebug routes binding debug output to USB CDC. machine.Serial is USB
// CDC on RP2040 with the default TinyGo runtime.
func InitDebug() {
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return
	}

	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte(s))
		machine.Serial.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	// USB CDC stalls with no host attached; the poll loop must not
	core.StartAsyncDebug(16)

	core.DebugPrintln("=== spibind RP2040 ===")
}

// hex formats a byte as two hex digits
func hex(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}
