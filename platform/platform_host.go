//go:build !rp2040 && !rp2350

package platform

import (
	"io"
	"os"
	"time"

	"tinygo.org/x/drivers"

	"pico-cec/drivers/cecbus"
	"pico-cec/services/hid"
	"pico-cec/services/indicator"
)

// Host builds run against a simulated CEC line with free-running virtual
// time, so the firmware binary starts and exercises its whole startup
// path on a development machine.

var sim = cecbus.NewSimBus()

func CECLine() cecbus.Line   { return sim }
func TxAlarm() cecbus.Alarm  { return sim.TxAlarm() }
func AckAlarm() cecbus.Alarm { return sim.AckAlarm() }

func BindInterrupts(c *cecbus.Controller) {
	sim.Attach(c)
	go func() {
		for {
			if !sim.Step() {
				time.Sleep(200 * time.Microsecond)
			}
		}
	}()
}

// ---- DDC ----

// hostI2C serves no EDID; the physical address stays unknown unless
// configured.
type hostI2C struct{}

func (hostI2C) Tx(addr uint16, w, r []byte) error {
	for i := range r {
		r[i] = 0
	}
	return nil
}

func DDCBus() drivers.I2C { return hostI2C{} }

// ---- Trace ----

func TraceWriter() io.Writer { return os.Stdout }

// ---- Status LED ----

type hostLED struct{}

func (hostLED) Set(bool) {}

func StatusLED() indicator.LED { return hostLED{} }

// ---- Keys ----

// hostKeys prints reports instead of raising USB interrupts.
type hostKeys struct{}

func (hostKeys) WriteReport(report []byte) error {
	if report[2] == 0 {
		println("key: release")
	} else {
		println("key:", report[2])
	}
	return nil
}

func KeyWriter() hid.ReportWriter { return hostKeys{} }
